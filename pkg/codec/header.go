package codec

import (
	"bytes"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// HeaderVersion is the only record-header format version shelfdb writes.
const HeaderVersion byte = 1

// EncodeHeader writes the fixed per-record header: version byte, kind-id
// (as an integer value), _rev (as an integer value), optional _del,
// terminated by MarkerHeaderEnd (spec §4.1 "Record header").
func EncodeHeader(h doc.Header, kindIDs KindIDEncoder) ([]byte, error) {
	numericKind, ok := kindIDs.KindIDFor(h.KindID)
	if !ok {
		return nil, dberr.New(dberr.KindNotRegistered, "kind %s has no allocated numeric id", h.KindID)
	}
	var buf bytes.Buffer
	buf.WriteByte(HeaderVersion)
	encodeInt(&buf, numericKind)
	encodeInt(&buf, h.Rev)
	if h.Deleted {
		buf.WriteByte(byte(MarkerTrue))
	}
	buf.WriteByte(byte(MarkerHeaderEnd))
	return buf.Bytes(), nil
}

// DecodeHeader reads the fixed header prefix from b and returns the
// decoded Header (without ID, which is the storage key, not a header
// field) plus the number of bytes consumed.
func DecodeHeader(b []byte, kindIDs KindIDDecoder) (doc.Header, int, error) {
	if len(b) < 1 {
		return doc.Header{}, 0, dberr.New(dberr.InvalidEncoding, "truncated header")
	}
	if b[0] != HeaderVersion {
		return doc.Header{}, 0, dberr.New(dberr.InvalidEncoding, "unsupported header version %d", b[0])
	}
	off := 1
	numericKind, n, err := decodeHeaderInt(b[off:])
	if err != nil {
		return doc.Header{}, 0, err
	}
	off += n
	kindID, ok := kindIDs.KindNameFor(numericKind)
	if !ok {
		return doc.Header{}, 0, dberr.New(dberr.UnknownToken, "numeric kind id %d", numericKind)
	}

	rev, n, err := decodeHeaderInt(b[off:])
	if err != nil {
		return doc.Header{}, 0, err
	}
	off += n

	var deleted bool
	if off >= len(b) {
		return doc.Header{}, 0, dberr.New(dberr.InvalidEncoding, "truncated header")
	}
	if Marker(b[off]) == MarkerTrue {
		deleted = true
		off++
	} else if Marker(b[off]) == MarkerFalse {
		off++
	}
	if off >= len(b) || Marker(b[off]) != MarkerHeaderEnd {
		return doc.Header{}, 0, dberr.New(dberr.InvalidEncoding, "missing header terminator")
	}
	off++

	return doc.Header{KindID: kindID, Rev: rev, Deleted: deleted}, off, nil
}

// decodeHeaderInt decodes one of the integer-value markers used for
// header fields (kind-id, rev): zero/neg/uint8/uint16/uint32/int64.
func decodeHeaderInt(b []byte) (int64, int, error) {
	v, n, err := decodeValue(b, nil)
	if err != nil {
		return 0, 0, err
	}
	if v.Kind() != doc.KindInt {
		return 0, 0, dberr.New(dberr.InvalidEncoding, "expected integer header field")
	}
	return v.Int(), n, nil
}
