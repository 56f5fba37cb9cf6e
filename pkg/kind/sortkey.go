package kind

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/shelfdb/shelfdb/pkg/doc"
)

// Sort-key type tags. Index keys are never decoded back into field
// values (only their byte order matters, plus the trailing object id),
// so these just need to order correctly across and within types — null
// sorts before bool before number before string, matching a reasonable
// total order over mixed-type documents.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
)

func collatorFor(strength Collation) *collate.Collator {
	var lvl colLevel
	switch strength {
	case CollationSecondary:
		lvl = collate.Secondary
	case CollationTertiary:
		lvl = collate.Tertiary
	case CollationQuaternary:
		lvl = collate.Quaternary
	case CollationIdentical:
		lvl = collate.Identical
	default:
		lvl = collate.Primary
	}
	return collate.New(language.Und, collate.Strength(lvl))
}

// colLevel is an alias so collatorFor reads naturally; collate.Level is
// unexported-looking but is in fact the package's own exported type.
type colLevel = collate.Level

// appendNumberKey appends an order-preserving fixed-width encoding of an
// int64: flip the sign bit so two's-complement ordering becomes
// unsigned big-endian byte ordering.
func appendNumberKey(buf []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	return append(buf, b[:]...)
}

// appendEscapedBytes appends a NUL-escaped, NUL-terminated copy of raw so
// that byte-wise comparison of the result matches raw's natural ordering
// and no valid encoding is a strict prefix of another's (0x00 bytes in
// raw are escaped to 0x00 0xFF; the terminator is 0x00 0x00). This is
// what lets composite index keys concatenate per-property segments and
// still compare as the correct tuple order.
func appendEscapedBytes(buf []byte, raw []byte) []byte {
	for _, c := range raw {
		if c == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, 0x00, 0x00)
}

// segmentForScalar encodes one non-object, non-array document value as
// a self-delimiting sort-key segment at the given collation strength.
// Arrays are handled by the extractor (cross-product), objects are not
// valid leaf values for an index property.
func segmentForScalar(v doc.Value, strength Collation, tokenize Tokenize) []byte {
	switch v.Kind() {
	case doc.KindNull:
		return []byte{tagNull}
	case doc.KindBool:
		if v.Bool() {
			return []byte{tagTrue}
		}
		return []byte{tagFalse}
	case doc.KindInt:
		return appendNumberKey([]byte{tagNumber}, v.Int())
	case doc.KindDecimal:
		d := v.Decimal()
		buf := []byte{tagNumber}
		buf = appendNumberKey(buf, d.Magnitude)
		buf = appendNumberKey(buf, d.Fraction)
		return buf
	case doc.KindString:
		s := normalizeForTokenize(v.String(), tokenize)
		c := collatorFor(strength)
		var cbuf collate.Buffer
		key := c.KeyFromString(&cbuf, s)
		return appendEscapedBytes([]byte{tagString}, key)
	default:
		return []byte{tagNull}
	}
}

// EncodeBoundKey encodes a single query-literal value as the sort-key
// segment an index range bound compares against, at the given collation
// strength. Exported for pkg/query's index-range construction, which
// needs to build the same byte encoding the extractor produced when the
// index was written, without duplicating the tag-byte scheme.
func EncodeBoundKey(v doc.Value, strength Collation) []byte {
	return segmentForScalar(v, strength, TokenizeNone)
}

func normalizeForTokenize(s string, mode Tokenize) string {
	switch mode {
	case TokenizeDefault:
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return s
	}
}

// tokensOf splits s into the word tokens TokenizeAll produces: one sort
// key segment per word, lower-cased.
func tokensOf(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return []string{""}
	}
	return fields
}
