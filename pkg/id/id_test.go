package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripBytes(t *testing.T) {
	local := [12]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	want := New(42, local)
	b := want.Bytes()
	got, err := FromBytes(b[:])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoundTripString(t *testing.T) {
	local := [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	want := New(7, local)
	s := want.String()
	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompareOrdersByShardThenLocal(t *testing.T) {
	a := New(1, [12]byte{0})
	b := New(1, [12]byte{1})
	c := New(2, [12]byte{0})
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, -1, Compare(b, c))
	assert.Equal(t, 0, Compare(a, a))
	assert.Equal(t, 1, Compare(c, a))
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIsZero(t *testing.T) {
	assert.True(t, Id{}.IsZero())
	assert.False(t, New(0, [12]byte{1}).IsZero())
	assert.False(t, New(1, [12]byte{}).IsZero())
}

type fakeSeq struct{ n int64 }

func (f *fakeSeq) Next() (int64, error) {
	f.n++
	return f.n, nil
}

func TestReserveAllocatesContiguousIds(t *testing.T) {
	seq := &fakeSeq{}
	ids, err := Reserve(5, seq, 3)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for _, i := range ids {
		assert.Equal(t, uint32(5), i.Shard)
	}
	assert.True(t, Compare(ids[0], ids[1]) < 0)
	assert.True(t, Compare(ids[1], ids[2]) < 0)
}
