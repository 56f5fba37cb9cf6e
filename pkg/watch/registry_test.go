package watch

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNotifyFiresMatchingWatchers(t *testing.T) {
	r := NewRegistry()
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	r.Add(1, "byX", w)

	r.Notify(1, "byX", []byte("m"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestRegistryNotifyDifferentShardDoesNotFire(t *testing.T) {
	r := NewRegistry()
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	r.Add(1, "byX", w)

	r.Notify(2, "byX", []byte("m"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestRegistryPrunesFiredWatchers(t *testing.T) {
	r := NewRegistry()
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() {})
	require.NoError(t, w.Activate([]byte("a")))
	r.Add(1, "byX", w)
	assert.Equal(t, 1, r.Count(1, "byX"))

	r.Notify(1, "byX", []byte("m"))
	assert.Equal(t, 0, r.Count(1, "byX"))
}

func TestNotifyKindDroppedForceFiresEveryNamedIndex(t *testing.T) {
	r := NewRegistry()
	var fired1, fired2 int32
	w1 := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired1, 1) })
	w2 := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired2, 1) })
	require.NoError(t, w1.Activate([]byte("a")))
	require.NoError(t, w2.Activate([]byte("a")))
	r.Add(1, "byX", w1)
	r.Add(1, "byY", w2)

	r.NotifyKindDropped(1, []string{"byX", "byY"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired2))
	assert.Equal(t, 0, r.Count(1, "byX"))
	assert.Equal(t, 0, r.Count(1, "byY"))
}

func TestNotifyKindDroppedIgnoresOtherShards(t *testing.T) {
	r := NewRegistry()
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	r.Add(1, "byX", w)

	r.NotifyKindDropped(2, []string{"byX"})
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, 1, r.Count(1, "byX"))
}
