// Package id implements shelfdb's 128-bit object identifier: a 32-bit shard
// id and a 96-bit local id, so that any object id uniquely identifies its
// home shard (spec §3 "Id").
package id

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// MainShardID is the reserved shard id for the main (always-mounted) shard.
const MainShardID uint32 = 0

// Len is the encoded byte length of an Id: 4 bytes of shard id followed by
// 12 bytes of local id.
const Len = 16

// Id is a 128-bit object identifier composed of a shard id and a local id.
// The zero Id is not a valid object id.
type Id struct {
	Shard uint32
	Local [12]byte
}

// New builds an Id from a shard id and a 96-bit local id (big-endian
// significant bytes in local[:]).
func New(shard uint32, local [12]byte) Id {
	return Id{Shard: shard, Local: local}
}

// Bytes returns the 16-byte big-endian encoding: shard id then local id.
// This is also the sort order used as the suffix of index keys.
func (i Id) Bytes() [Len]byte {
	var b [Len]byte
	binary.BigEndian.PutUint32(b[0:4], i.Shard)
	copy(b[4:16], i.Local[:])
	return b
}

// FromBytes decodes a 16-byte big-endian Id encoding produced by Bytes.
func FromBytes(b []byte) (Id, error) {
	if len(b) != Len {
		return Id{}, fmt.Errorf("id: invalid length %d, want %d", len(b), Len)
	}
	var out Id
	out.Shard = binary.BigEndian.Uint32(b[0:4])
	copy(out.Local[:], b[4:16])
	return out, nil
}

// String renders the id as the boundary base64 form used by the wire
// protocol.
func (i Id) String() string {
	b := i.Bytes()
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Parse decodes the boundary base64 form produced by String.
func Parse(s string) (Id, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Id{}, fmt.Errorf("id: invalid base64: %w", err)
	}
	return FromBytes(b)
}

// Compare gives the total order on ids used pervasively as the suffix
// ordering of index keys: shard id first, then local id, both big-endian.
func Compare(a, b Id) int {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// IsZero reports whether the id is the zero value (never a valid object
// id).
func (i Id) IsZero() bool {
	if i.Shard != 0 {
		return false
	}
	for _, b := range i.Local {
		if b != 0 {
			return false
		}
	}
	return true
}
