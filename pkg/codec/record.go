package codec

import "github.com/shelfdb/shelfdb/pkg/doc"

// EncodeRecord writes a primary-record value: header followed by the
// document body, as persisted under the objects sub-database (spec §6).
func EncodeRecord(h doc.Header, body doc.Value, tokens TokenEncoder, kindIDs KindIDEncoder) ([]byte, error) {
	hb, err := EncodeHeader(h, kindIDs)
	if err != nil {
		return nil, err
	}
	vb, err := EncodeValue(body, tokens)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(hb)+len(vb))
	out = append(out, hb...)
	out = append(out, vb...)
	return out, nil
}

// DecodeRecord reads a header followed by a document body from b. The
// header's bytes are stripped before the body is handed to the document
// decoder (spec §4.1), but both contribute to quota accounting by the
// caller, which should size its charge against len(b), not just the
// body.
func DecodeRecord(b []byte, tokens TokenDecoder, kindIDs KindIDDecoder) (doc.Header, doc.Value, error) {
	h, n, err := DecodeHeader(b, kindIDs)
	if err != nil {
		return doc.Header{}, doc.Value{}, err
	}
	body, _, err := DecodeValue(b[n:], tokens)
	if err != nil {
		return doc.Header{}, doc.Value{}, err
	}
	return h, body, nil
}
