// Package codec implements shelfdb's bijective binary document encoding
// (spec §4.1): a single leading marker byte selects the encoding of what
// follows, objects serialize in canonical token order, and decoding is
// total — any byte sequence that isn't a valid encoding fails with
// dberr.InvalidEncoding without consuming further input.
package codec

// Marker is the leading byte of every encoded value.
type Marker byte

const (
	MarkerEnd        Marker = 0x00 // object-end / array-end
	MarkerNull       Marker = 0x01
	MarkerObject     Marker = 0x02
	MarkerArray      Marker = 0x03
	MarkerString     Marker = 0x04
	MarkerFalse      Marker = 0x05
	MarkerTrue       Marker = 0x06
	MarkerDecNeg     Marker = 0x07
	MarkerDecPos     Marker = 0x08
	MarkerIntNeg     Marker = 0x09
	MarkerIntZero    Marker = 0x0A
	MarkerUint8      Marker = 0x0B
	MarkerUint16     Marker = 0x0C
	MarkerUint32     Marker = 0x0D
	MarkerInt64      Marker = 0x0E
	MarkerExtension  Marker = 0x0F
	MarkerHeaderEnd  Marker = 0x10

	// FirstToken is the smallest byte value that denotes a token id
	// rather than a fixed marker. Chosen so no token collides with a
	// marker byte.
	FirstToken Marker = 0x20
)
