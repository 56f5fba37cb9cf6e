// Package watch implements live query watches: a single-shot notification
// that fires the first time a commit writes an index key falling inside
// the watched query's key ranges, on the correct side of the cursor's
// last-returned position (spec §4.7 "Watches"). Grounded on
// original_source/inc/db/MojDbWatcher.h's Pending/Active/Invalid state
// machine and arm/fire/abandon verbs, built on pkg/signal instead of the
// original's MojSignal slot graph.
package watch

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/shelfdb/shelfdb/pkg/signal"
)

// State is a Watcher's lifecycle stage.
type State int

const (
	// StatePending: constructed, not yet armed against a query result.
	StatePending State = iota
	// StateActive: armed and listening for a matching commit.
	StateActive
	// StateInvalid: fired or abandoned; terminal.
	StateInvalid
)

// KeyRange is one ordered-key range a watcher monitors, matching the
// range(s) a query's index scan would cover.
type KeyRange struct {
	Low  []byte // inclusive
	High []byte // exclusive; nil means unbounded above
}

func (r KeyRange) contains(key []byte) bool {
	if bytes.Compare(key, r.Low) < 0 {
		return false
	}
	if r.High != nil && bytes.Compare(key, r.High) >= 0 {
		return false
	}
	return true
}

// Watcher observes a query's key ranges for the next write that would
// change its result set. It fires at most once, only on commit — an
// aborted transaction never triggers it (spec §4.7 invariant).
type Watcher struct {
	mu       sync.Mutex
	state    State
	ranges   []KeyRange
	desc     bool
	limitKey []byte

	broker *signal.Broker
	slot   *signal.Slot
}

// New returns a Pending watcher for the given ranges. handler runs at
// most once, the first time Fire observes a matching key after
// Activate.
func New(ranges []KeyRange, desc bool, handler func()) *Watcher {
	w := &Watcher{
		state:  StatePending,
		ranges: ranges,
		desc:   desc,
		broker: signal.NewBroker(),
	}
	w.slot = w.broker.Arm(handler)
	return w
}

// Activate transitions Pending -> Active, recording the cursor's
// last-returned key so Fire only reacts to writes beyond it (a write
// the caller's own query already observed must not re-fire the watch).
func (w *Watcher) Activate(limitKey []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePending {
		return fmt.Errorf("watcher is not pending (state=%d)", w.state)
	}
	w.limitKey = append([]byte(nil), limitKey...)
	w.state = StateActive
	return nil
}

// Fire is called by the commit path for every index key a just-
// committed transaction added within this watcher's index.
// If key falls within the watched ranges and on the correct side of the
// activation cursor, the watcher fires its handler exactly once and
// becomes Invalid. Calling Fire on a non-Active watcher is a no-op.
func (w *Watcher) Fire(key []byte) {
	w.mu.Lock()
	if w.state != StateActive {
		w.mu.Unlock()
		return
	}
	if !w.matches(key) {
		w.mu.Unlock()
		return
	}
	w.state = StateInvalid
	w.mu.Unlock()

	w.broker.Fire()
}

func (w *Watcher) matches(key []byte) bool {
	inRange := false
	for _, r := range w.ranges {
		if r.contains(key) {
			inRange = true
			break
		}
	}
	if !inRange {
		return false
	}
	if w.limitKey == nil {
		return true
	}
	if w.desc {
		return bytes.Compare(key, w.limitKey) < 0
	}
	return bytes.Compare(key, w.limitKey) > 0
}

// ForceFire fires the watcher's handler unconditionally, bypassing the
// range and cursor-position checks Fire applies — used when the kind a
// watch's query ranges over is dropped out from under it rather than
// written to (spec §6 "delKind": the watch still fires exactly once).
func (w *Watcher) ForceFire() {
	w.mu.Lock()
	if w.state != StateActive {
		w.mu.Unlock()
		return
	}
	w.state = StateInvalid
	w.mu.Unlock()

	w.broker.Fire()
}

// Abandon marks the watcher Invalid without ever firing its handler —
// used when the underlying query or shard goes away before a match
// (spec §4.7 "abandon").
func (w *Watcher) Abandon() {
	w.mu.Lock()
	if w.state == StateInvalid {
		w.mu.Unlock()
		return
	}
	w.state = StateInvalid
	w.mu.Unlock()

	w.slot.Cancel()
}

// State reports the watcher's current lifecycle stage.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
