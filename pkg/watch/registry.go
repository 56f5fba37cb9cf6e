package watch

import (
	"fmt"
	"sync"
)

// Registry tracks every Active watcher by the shard+index it observes,
// so a commit can look up exactly which watchers to test against the
// index keys it just wrote (spec §4.7: a watch is registered against
// one query's index, not broadcast database-wide).
type Registry struct {
	mu       sync.Mutex
	watchers map[string][]*Watcher
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{watchers: make(map[string][]*Watcher)}
}

// groupKey identifies one shard+index combination.
func groupKey(shard uint32, indexName string) string {
	return fmt.Sprintf("%d\x00%s", shard, indexName)
}

// Add registers w under shard+indexName. Call after Activate.
func (r *Registry) Add(shard uint32, indexName string, w *Watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := groupKey(shard, indexName)
	r.watchers[key] = append(r.watchers[key], w)
}

// Notify fires every registered watcher on shard+indexName whose range
// matches key, pruning watchers that are no longer Active (already
// fired or abandoned) from the group as it goes.
func (r *Registry) Notify(shard uint32, indexName string, key []byte) {
	r.mu.Lock()
	group := r.watchers[groupKey(shard, indexName)]
	live := group[:0]
	var toFire []*Watcher
	for _, w := range group {
		if w.State() == StateActive {
			live = append(live, w)
			toFire = append(toFire, w)
		}
	}
	r.watchers[groupKey(shard, indexName)] = live
	r.mu.Unlock()

	for _, w := range toFire {
		w.Fire(key)
	}
}

// NotifyKindDropped force-fires every active watcher registered against
// any of indexNames on shard and forgets the group, used when delKind
// removes the kind those indexes belonged to: a watch armed on a
// now-gone kind must still fire exactly once rather than hang forever
// (spec §6 "delKind", §8 scenario 3).
func (r *Registry) NotifyKindDropped(shard uint32, indexNames []string) {
	r.mu.Lock()
	var toFire []*Watcher
	for _, name := range indexNames {
		key := groupKey(shard, name)
		for _, w := range r.watchers[key] {
			if w.State() == StateActive {
				toFire = append(toFire, w)
			}
		}
		delete(r.watchers, key)
	}
	r.mu.Unlock()

	for _, w := range toFire {
		w.ForceFire()
	}
}

// Count returns the number of tracked (not necessarily still Active)
// watchers on shard+indexName.
func (r *Registry) Count(shard uint32, indexName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers[groupKey(shard, indexName)])
}
