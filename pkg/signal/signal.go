// Package signal implements a generation-tagged, cancel-safe single-shot
// observer primitive. It replaces the original implementation's
// refcounted signal/slot graph (spec §9 design note: "a simpler
// cancel-safe primitive is preferable to porting the reference-counted
// slot graph verbatim") with something Go's concurrency model expresses
// more directly: an armed slot either fires exactly once or is
// cancelled exactly once, and a slot racing both outcomes always
// resolves to a single winner.
//
// Grounded on cuemby-warren/pkg/events.Broker's subscriber-map-under-
// mutex shape, generalized from a fan-out pub/sub channel bus to
// single-shot, per-slot fire-or-cancel semantics pkg/watch needs.
package signal

import "sync"

// Slot is one armed observer. Calling Cancel after Fire (or
// concurrently with it) is safe and a no-op if Fire already won.
type Slot struct {
	broker *Broker
	id     uint64
	gen    uint64
}

// Cancel disarms the slot. If the broker already fired this
// generation, Cancel has no effect — the callback already ran (or is
// running) and cannot be un-run.
func (s *Slot) Cancel() {
	s.broker.cancel(s.id, s.gen)
}

// Broker holds a set of armed slots awaiting a single Fire. Each Fire
// advances the generation counter, so any Slot obtained before that
// Fire can no longer be cancelled (its callback already ran), matching
// the watch subsystem's Active -> Invalid transition being terminal.
type Broker struct {
	mu      sync.Mutex
	nextID  uint64
	gen     uint64
	pending map[uint64]func()
}

// NewBroker returns an empty broker at generation 0.
func NewBroker() *Broker {
	return &Broker{pending: make(map[uint64]func())}
}

// Arm registers fn to run on the broker's next Fire, returning a Slot
// that can cancel it beforehand. fn runs at most once, ever.
func (b *Broker) Arm(fn func()) *Slot {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.pending[id] = fn
	return &Slot{broker: b, id: id, gen: b.gen}
}

func (b *Broker) cancel(id, gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return // already fired; nothing to cancel
	}
	delete(b.pending, id)
}

// Fire invokes every currently-armed slot's callback exactly once, then
// advances the generation so any in-flight Cancel calls for this batch
// become no-ops rather than racing a reused id against a fresh Arm.
// Callbacks run synchronously, in no particular order, after the
// broker's lock is released (so a callback may itself call Arm/Cancel
// without deadlocking).
func (b *Broker) Fire() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.pending))
	for _, fn := range b.pending {
		fns = append(fns, fn)
	}
	b.pending = make(map[uint64]func())
	b.gen++
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// PendingCount reports the number of currently armed, uncancelled
// slots.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
