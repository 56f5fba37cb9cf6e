package watch

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiresOnMatchingKeyAfterActivate(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("m")))

	w.Fire([]byte("n"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, StateInvalid, w.State())
}

func TestWatcherDoesNotFireBeforeActivate(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	w.Fire([]byte("m"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, StatePending, w.State())
}

func TestWatcherIgnoresKeyOutsideRange(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("b")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.Fire([]byte("z"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, StateActive, w.State())
}

func TestWatcherIgnoresKeyOnWrongSideOfCursorAscending(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("m")))
	// Ascending watcher only cares about keys after the cursor.
	w.Fire([]byte("b"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestWatcherDescendingDirectionReversed(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, true, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("m")))
	w.Fire([]byte("b")) // before cursor in key order, which is "ahead" for a descending scan
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestWatcherFiresOnlyOnce(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.Fire([]byte("m"))
	w.Fire([]byte("n"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestWatcherAbandonNeverFires(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.Abandon()
	w.Fire([]byte("m"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, StateInvalid, w.State())
}

func TestActivateTwiceFails(t *testing.T) {
	w := New(nil, false, func() {})
	require.NoError(t, w.Activate([]byte("a")))
	err := w.Activate([]byte("b"))
	assert.Error(t, err)
}

func TestUnboundedHighRangeMatchesAnyKeyAbove(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: nil}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.Fire([]byte("zzzzzzzz"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestForceFireBypassesRangeAndCursor(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("b")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.ForceFire()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, StateInvalid, w.State())
}

func TestForceFireFiresOnlyOnce(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.ForceFire()
	w.ForceFire()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestForceFireOnAbandonedWatcherDoesNothing(t *testing.T) {
	var fired int32
	w := New([]KeyRange{{Low: []byte("a"), High: []byte("z")}}, false, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, w.Activate([]byte("a")))
	w.Abandon()
	w.ForceFire()
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
