package codec

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// EncodeValue serializes a document value using tokens to resolve
// property/string-value names to their kind-scoped token where one has
// been allocated, falling back to the 0x04 string form otherwise.
func EncodeValue(v doc.Value, tokens TokenEncoder) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, tokens); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v doc.Value, tokens TokenEncoder) error {
	switch v.Kind() {
	case doc.KindNull:
		buf.WriteByte(byte(MarkerNull))
	case doc.KindBool:
		if v.Bool() {
			buf.WriteByte(byte(MarkerTrue))
		} else {
			buf.WriteByte(byte(MarkerFalse))
		}
	case doc.KindInt:
		encodeInt(buf, v.Int())
	case doc.KindDecimal:
		d := v.Decimal()
		if d.Magnitude < 0 {
			buf.WriteByte(byte(MarkerDecNeg))
		} else {
			buf.WriteByte(byte(MarkerDecPos))
		}
		writeInt64(buf, d.Magnitude)
		writeInt64(buf, d.Fraction)
	case doc.KindString:
		encodeStringValue(buf, v.String(), tokens)
	case doc.KindArray:
		buf.WriteByte(byte(MarkerArray))
		for _, item := range v.Array() {
			if err := encodeValue(buf, item, tokens); err != nil {
				return err
			}
		}
		buf.WriteByte(byte(MarkerEnd))
	case doc.KindObject:
		buf.WriteByte(byte(MarkerObject))
		if err := encodeObjectEntries(buf, v.Object(), tokens); err != nil {
			return err
		}
		buf.WriteByte(byte(MarkerEnd))
	default:
		return dberr.New(dberr.InvalidEncoding, "unknown value kind %d", v.Kind())
	}
	return nil
}

// encodeStringValue encodes a string, using its token if the encoder
// knows one (string *values*, not just property names, may be
// tokenized — spec §4.1 "string-value token").
func encodeStringValue(buf *bytes.Buffer, s string, tokens TokenEncoder) {
	if tokens != nil {
		if tok, ok := tokens.TokenFor(s); ok {
			buf.WriteByte(tok)
			return
		}
	}
	buf.WriteByte(byte(MarkerString))
	buf.WriteString(s)
	buf.WriteByte(0x00)
}

type objectEntry struct {
	name  string
	token byte
	has   bool
	value doc.Value
}

// encodeObjectEntries writes (property-marker, value) pairs in canonical
// order: ascending token-id for tokenized names, then ascending
// lexicographic order for untokenized names (spec §4.1 contract,
// Open Question resolved in DESIGN.md).
func encodeObjectEntries(buf *bytes.Buffer, o *doc.Object, tokens TokenEncoder) error {
	if o == nil {
		return nil
	}
	var tokenized, plain []objectEntry
	for _, name := range o.Keys() {
		v, _ := o.Get(name)
		e := objectEntry{name: name, value: v}
		if tokens != nil {
			if tok, ok := tokens.TokenFor(name); ok {
				e.token, e.has = tok, true
				tokenized = append(tokenized, e)
				continue
			}
		}
		plain = append(plain, e)
	}
	sort.Slice(tokenized, func(i, j int) bool { return tokenized[i].token < tokenized[j].token })
	sort.Slice(plain, func(i, j int) bool { return plain[i].name < plain[j].name })

	for _, e := range tokenized {
		buf.WriteByte(e.token)
		if err := encodeValue(buf, e.value, tokens); err != nil {
			return err
		}
	}
	for _, e := range plain {
		buf.WriteByte(byte(MarkerString))
		buf.WriteString(e.name)
		buf.WriteByte(0x00)
		if err := encodeValue(buf, e.value, tokens); err != nil {
			return err
		}
	}
	return nil
}

// encodeInt picks the minimal-width positive marker, or the negative/zero
// markers, per spec §4.1.
func encodeInt(buf *bytes.Buffer, v int64) {
	switch {
	case v == 0:
		buf.WriteByte(byte(MarkerIntZero))
	case v < 0:
		buf.WriteByte(byte(MarkerIntNeg))
		writeInt64(buf, -v)
	case v <= 0xFF:
		buf.WriteByte(byte(MarkerUint8))
		buf.WriteByte(byte(v))
	case v <= 0xFFFF:
		buf.WriteByte(byte(MarkerUint16))
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	case v <= 0xFFFFFFFF:
		buf.WriteByte(byte(MarkerUint32))
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	default:
		buf.WriteByte(byte(MarkerInt64))
		writeInt64(buf, v)
	}
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

// DecodeValue decodes a single document value from the front of b,
// returning the value and the number of bytes consumed. Decoding is
// total: any malformed input fails with dberr.InvalidEncoding without
// panicking or reading past the slice.
func DecodeValue(b []byte, tokens TokenDecoder) (doc.Value, int, error) {
	return decodeValue(b, tokens)
}

func decodeValue(b []byte, tokens TokenDecoder) (doc.Value, int, error) {
	if len(b) == 0 {
		return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "truncated input")
	}
	m := Marker(b[0])
	switch m {
	case MarkerNull:
		return doc.Null(), 1, nil
	case MarkerFalse:
		return doc.Bool(false), 1, nil
	case MarkerTrue:
		return doc.Bool(true), 1, nil
	case MarkerIntZero:
		return doc.Int(0), 1, nil
	case MarkerIntNeg:
		mag, n, err := readInt64(b[1:])
		if err != nil {
			return doc.Value{}, 0, err
		}
		return doc.Int(-mag), 1 + n, nil
	case MarkerUint8:
		if len(b) < 2 {
			return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "truncated uint8")
		}
		return doc.Int(int64(b[1])), 2, nil
	case MarkerUint16:
		if len(b) < 3 {
			return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "truncated uint16")
		}
		return doc.Int(int64(binary.BigEndian.Uint16(b[1:3]))), 3, nil
	case MarkerUint32:
		if len(b) < 5 {
			return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "truncated uint32")
		}
		return doc.Int(int64(binary.BigEndian.Uint32(b[1:5]))), 5, nil
	case MarkerInt64:
		v, n, err := readInt64(b[1:])
		if err != nil {
			return doc.Value{}, 0, err
		}
		return doc.Int(v), 1 + n, nil
	case MarkerDecNeg, MarkerDecPos:
		if len(b) < 17 {
			return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "truncated decimal")
		}
		mag := int64(binary.BigEndian.Uint64(b[1:9]))
		frac := int64(binary.BigEndian.Uint64(b[9:17]))
		return doc.DecimalValue(doc.Decimal{Magnitude: mag, Fraction: frac}), 17, nil
	case MarkerString:
		s, n, err := readCString(b[1:])
		if err != nil {
			return doc.Value{}, 0, err
		}
		return doc.String(s), 1 + n, nil
	case MarkerArray:
		items, n, err := decodeSequence(b[1:], tokens)
		if err != nil {
			return doc.Value{}, 0, err
		}
		return doc.Array(items...), 1 + n, nil
	case MarkerObject:
		obj, n, err := decodeObject(b[1:], tokens)
		if err != nil {
			return doc.Value{}, 0, err
		}
		return doc.ObjectValue(obj), 1 + n, nil
	default:
		if byte(m) >= byte(FirstToken) {
			name, ok := resolveToken(tokens, byte(m))
			if !ok {
				return doc.Value{}, 0, dberr.New(dberr.UnknownToken, "token 0x%02x", byte(m))
			}
			return doc.String(name), 1, nil
		}
		return doc.Value{}, 0, dberr.New(dberr.InvalidEncoding, "unknown marker 0x%02x", byte(m))
	}
}

func resolveToken(tokens TokenDecoder, tok byte) (string, bool) {
	if tokens == nil {
		return "", false
	}
	return tokens.NameFor(tok)
}

func readInt64(b []byte) (int64, int, error) {
	if len(b) < 8 {
		return 0, 0, dberr.New(dberr.InvalidEncoding, "truncated int64")
	}
	return int64(binary.BigEndian.Uint64(b[:8])), 8, nil
}

func readCString(b []byte) (string, int, error) {
	idx := bytes.IndexByte(b, 0x00)
	if idx < 0 {
		return "", 0, dberr.New(dberr.InvalidEncoding, "unterminated string")
	}
	return string(b[:idx]), idx + 1, nil
}

// decodeSequence decodes array elements until MarkerEnd, returning the
// elements and the number of bytes consumed including the terminator.
func decodeSequence(b []byte, tokens TokenDecoder) ([]doc.Value, int, error) {
	var items []doc.Value
	off := 0
	for {
		if off >= len(b) {
			return nil, 0, dberr.New(dberr.InvalidEncoding, "unterminated array")
		}
		if Marker(b[off]) == MarkerEnd {
			return items, off + 1, nil
		}
		v, n, err := decodeValue(b[off:], tokens)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
		off += n
	}
}

// decodeObject decodes (property-marker, value) pairs until MarkerEnd.
func decodeObject(b []byte, tokens TokenDecoder) (*doc.Object, int, error) {
	o := doc.NewObject()
	off := 0
	for {
		if off >= len(b) {
			return nil, 0, dberr.New(dberr.InvalidEncoding, "unterminated object")
		}
		m := Marker(b[off])
		if m == MarkerEnd {
			return o, off + 1, nil
		}
		var name string
		var consumed int
		switch {
		case m == MarkerString:
			s, n, err := readCString(b[off+1:])
			if err != nil {
				return nil, 0, err
			}
			name = s
			consumed = 1 + n
		case byte(m) >= byte(FirstToken):
			n, ok := resolveToken(tokens, byte(m))
			if !ok {
				return nil, 0, dberr.New(dberr.UnknownToken, "token 0x%02x", byte(m))
			}
			name = n
			consumed = 1
		default:
			return nil, 0, dberr.New(dberr.InvalidEncoding, "invalid property marker 0x%02x", byte(m))
		}
		off += consumed
		if off >= len(b) {
			return nil, 0, dberr.New(dberr.InvalidEncoding, "truncated object value")
		}
		v, n, err := decodeValue(b[off:], tokens)
		if err != nil {
			return nil, 0, err
		}
		o.Set(name, v)
		off += n
	}
}
