package signal

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFireInvokesArmedSlot(t *testing.T) {
	b := NewBroker()
	var called int32
	b.Arm(func() { atomic.AddInt32(&called, 1) })
	b.Fire()
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestCancelBeforeFirePreventsCallback(t *testing.T) {
	b := NewBroker()
	var called int32
	slot := b.Arm(func() { atomic.AddInt32(&called, 1) })
	slot.Cancel()
	b.Fire()
	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
}

func TestCancelAfterFireIsNoOp(t *testing.T) {
	b := NewBroker()
	var called int32
	slot := b.Arm(func() { atomic.AddInt32(&called, 1) })
	b.Fire()
	slot.Cancel() // must not panic or affect anything
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestFireOnlyRunsEachSlotOnce(t *testing.T) {
	b := NewBroker()
	var called int32
	b.Arm(func() { atomic.AddInt32(&called, 1) })
	b.Fire()
	b.Fire() // second Fire should see no pending slots
	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestConcurrentCancelAndFireResolveToOneWinner(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := NewBroker()
		var called int32
		slot := b.Arm(func() { atomic.AddInt32(&called, 1) })

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); slot.Cancel() }()
		go func() { defer wg.Done(); b.Fire() }()
		wg.Wait()

		assert.LessOrEqual(t, atomic.LoadInt32(&called), int32(1))
	}
}

func TestPendingCountReflectsArmAndCancel(t *testing.T) {
	b := NewBroker()
	assert.Equal(t, 0, b.PendingCount())
	slot := b.Arm(func() {})
	assert.Equal(t, 1, b.PendingCount())
	slot.Cancel()
	assert.Equal(t, 0, b.PendingCount())
}

func TestNewSlotAfterFireHasFreshGeneration(t *testing.T) {
	b := NewBroker()
	var firstCalled, secondCalled int32
	b.Arm(func() { atomic.AddInt32(&firstCalled, 1) })
	b.Fire()

	second := b.Arm(func() { atomic.AddInt32(&secondCalled, 1) })
	second.Cancel()
	b.Fire()

	assert.Equal(t, int32(1), atomic.LoadInt32(&firstCalled))
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondCalled))
}
