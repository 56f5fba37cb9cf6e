package id

import "encoding/binary"

// SequenceSource is the minimal interface pkg/storage.Sequence satisfies,
// kept here to avoid an import cycle between pkg/id and pkg/storage.
type SequenceSource interface {
	// Next returns the next monotonic value from the sequence.
	Next() (int64, error)
}

// Reserve allocates count contiguous local ids on the given shard by
// drawing count values from seq and packing each into a 96-bit local id
// (the low 8 bytes carry the sequence value, the top 4 bytes are zero).
// This backs the wire "reserveIds" operation (spec §6), used by bulk
// loaders that want to mint ids before the records they describe exist.
func Reserve(shard uint32, seq SequenceSource, count int) ([]Id, error) {
	if count <= 0 {
		return nil, nil
	}
	out := make([]Id, 0, count)
	for n := 0; n < count; n++ {
		v, err := seq.Next()
		if err != nil {
			return nil, err
		}
		var local [12]byte
		binary.BigEndian.PutUint64(local[4:12], uint64(v))
		out = append(out, New(shard, local))
	}
	return out, nil
}
