// Package doc defines shelfdb's recursive document value type and the
// per-record header every persisted document carries (spec §3 "Document").
package doc

import "fmt"

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindString
	KindArray
	KindObject
)

// Decimal is a fixed-point decimal: magnitude * 10^-fraction's-scale,
// represented directly as the two int64 fields the codec persists (spec
// §4.1 markers 0x07/0x08).
type Decimal struct {
	Magnitude int64
	Fraction  int64
}

// Value is a recursive document value: null, bool, signed integer,
// fixed-point decimal, string, ordered array of values, or an object
// mapping property names to values.
type Value struct {
	kind    Kind
	boolV   bool
	intV    int64
	decV    Decimal
	strV    string
	arrV    []Value
	objV    *Object
}

// Object is an ordered mapping from property name to Value. Insertion
// order is preserved for round-tripping; canonical encode order is
// computed by pkg/codec from the kind's token map, not from this order.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set inserts or overwrites a property.
func (o *Object) Set(name string, v Value) {
	if _, exists := o.values[name]; !exists {
		o.keys = append(o.keys, name)
	}
	o.values[name] = v
}

// Get looks up a property by name.
func (o *Object) Get(name string) (Value, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Delete removes a property, if present.
func (o *Object) Delete(name string) {
	if _, ok := o.values[name]; !ok {
		return
	}
	delete(o.values, name)
	for i, k := range o.keys {
		if k == name {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns property names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of properties.
func (o *Object) Len() int { return len(o.keys) }

// Constructors.

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, boolV: b} }
func Int(i int64) Value          { return Value{kind: KindInt, intV: i} }
func DecimalValue(d Decimal) Value { return Value{kind: KindDecimal, decV: d} }
func String(s string) Value      { return Value{kind: KindString, strV: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arrV: items} }
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, objV: o}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool         { return v.boolV }
func (v Value) Int() int64         { return v.intV }
func (v Value) Decimal() Decimal   { return v.decV }
func (v Value) String() string     { return v.strV }
func (v Value) Array() []Value     { return v.arrV }
func (v Value) Object() *Object    { return v.objV }

// IsNull reports whether v holds the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal reports deep equality between two document values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolV == b.boolV
	case KindInt:
		return a.intV == b.intV
	case KindDecimal:
		return a.decV == b.decV
	case KindString:
		return a.strV == b.strV
	case KindArray:
		if len(a.arrV) != len(b.arrV) {
			return false
		}
		for i := range a.arrV {
			if !Equal(a.arrV[i], b.arrV[i]) {
				return false
			}
		}
		return true
	case KindObject:
		ao, bo := a.objV, b.objV
		if ao == nil || bo == nil {
			return ao == bo
		}
		if ao.Len() != bo.Len() {
			return false
		}
		for _, k := range ao.keys {
			bv, ok := bo.Get(k)
			if !ok || !Equal(ao.values[k], bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Header is the fixed metadata every persisted document carries in
// addition to its body (spec §3, §4.1 "Record header").
type Header struct {
	ID      string // boundary base64 form of id.Id
	KindID  string // "name:version"
	Rev     int64
	Deleted bool
}

func (h Header) String() string {
	return fmt.Sprintf("Header{id=%s kind=%s rev=%d del=%v}", h.ID, h.KindID, h.Rev, h.Deleted)
}

// Record pairs a Header with its document body.
type Record struct {
	Header Header
	Body   Value
}
