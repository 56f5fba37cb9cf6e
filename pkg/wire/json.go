package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// decimalWire is the wire encoding of a doc.Decimal: plain JSON numbers
// decode to doc.Int (or, if they carry a fractional/exponent part, are
// rejected — the wire format has no implicit float type, matching the
// codec's closed value set) and a decimal must be spelled out so the
// magnitude/fraction split survives the round trip exactly.
type decimalWire struct {
	Magnitude int64 `json:"magnitude"`
	Fraction  int64 `json:"fraction"`
}

// MarshalDoc renders v as the wire JSON representation used by every
// put/get/find/search payload.
func MarshalDoc(v doc.Value) (json.RawMessage, error) {
	out, err := marshalDocValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func marshalDocValue(v doc.Value) (any, error) {
	switch v.Kind() {
	case doc.KindNull:
		return nil, nil
	case doc.KindBool:
		return v.Bool(), nil
	case doc.KindInt:
		return v.Int(), nil
	case doc.KindDecimal:
		d := v.Decimal()
		return map[string]any{"$decimal": decimalWire{Magnitude: d.Magnitude, Fraction: d.Fraction}}, nil
	case doc.KindString:
		return v.String(), nil
	case doc.KindArray:
		items := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			rendered, err := marshalDocValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case doc.KindObject:
		o := v.Object()
		out := make(map[string]any, o.Len())
		for _, k := range o.Keys() {
			val, _ := o.Get(k)
			rendered, err := marshalDocValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: unknown document kind %d", v.Kind())
	}
}

// UnmarshalDoc parses raw as a wire-format document body.
func UnmarshalDoc(raw json.RawMessage) (doc.Value, error) {
	if len(raw) == 0 {
		return doc.Null(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return doc.Value{}, dberr.Wrap(dberr.InvalidEncoding, err, "invalid document JSON")
	}
	return unmarshalAny(v)
}

func unmarshalAny(v any) (doc.Value, error) {
	switch t := v.(type) {
	case nil:
		return doc.Null(), nil
	case bool:
		return doc.Bool(t), nil
	case json.Number:
		return numberToValue(t)
	case string:
		return doc.String(t), nil
	case []any:
		items := make([]doc.Value, len(t))
		for i, item := range t {
			val, err := unmarshalAny(item)
			if err != nil {
				return doc.Value{}, err
			}
			items[i] = val
		}
		return doc.Array(items...), nil
	case map[string]any:
		if raw, ok := t["$decimal"]; ok && len(t) == 1 {
			return decimalFromAny(raw)
		}
		o := doc.NewObject()
		for k, item := range t {
			val, err := unmarshalAny(item)
			if err != nil {
				return doc.Value{}, err
			}
			o.Set(k, val)
		}
		return doc.ObjectValue(o), nil
	default:
		return doc.Value{}, dberr.New(dberr.InvalidEncoding, "unsupported JSON value of type %T", v)
	}
}

func numberToValue(n json.Number) (doc.Value, error) {
	if i, err := n.Int64(); err == nil {
		return doc.Int(i), nil
	}
	return doc.Value{}, dberr.New(dberr.InvalidEncoding, "number %q is not a representable integer; use {\"$decimal\":{...}} for fixed-point values", n)
}

func decimalFromAny(raw any) (doc.Value, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return doc.Value{}, dberr.Wrap(dberr.InvalidEncoding, err, "invalid $decimal value")
	}
	var d decimalWire
	if err := json.Unmarshal(b, &d); err != nil {
		return doc.Value{}, dberr.Wrap(dberr.InvalidEncoding, err, "invalid $decimal value")
	}
	return doc.DecimalValue(doc.Decimal{Magnitude: d.Magnitude, Fraction: d.Fraction}), nil
}
