package kind

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/shelfdb/shelfdb/pkg/dberr"
)

// Registry is a shard's in-memory kind catalog: every PutKind/DelKind
// goes through storage first (spec §4.3 "Kinds" are themselves documents
// in a reserved kind), then updates this cache under lock. It also
// hands out the small numeric kind-ids the record header persists in
// place of the "name:version" string (spec §4.1).
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Kind
	byNumeric map[int64]string
	nextID    int64
}

// NewRegistry returns an empty registry. nextID starts at 1 so 0 stays
// free to mean "no kind" in contexts that need a zero value.
func NewRegistry() *Registry {
	return &Registry{
		byID:      make(map[string]*Kind),
		byNumeric: make(map[int64]string),
		nextID:    1,
	}
}

// GetKind looks up a kind by "name:version" id.
func (r *Registry) GetKind(kindID string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byID[kindID]
	return k, ok
}

// KindIDFor implements codec.KindIDEncoder.
func (r *Registry) KindIDFor(kindID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byID[kindID]
	if !ok {
		return 0, false
	}
	return k.NumericID, true
}

// KindNameFor implements codec.KindIDDecoder.
func (r *Registry) KindNameFor(numeric int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byNumeric[numeric]
	return name, ok
}

// PutKindResult reports how a schema update compares to what was
// registered before it, so the caller can decide whether a reindex pass
// is required (spec §4.3 "Reindexing").
type PutKindResult struct {
	Created       bool
	ContentChanged bool
	AddedIndexes  []string
	DroppedIndexes []string
}

// PutKind registers k, allocating a numeric id on first sight and
// computing its content hash from the index and permission definitions.
// Index deltas against any prior version of the same kind id are
// reported so the caller can schedule incremental reindexing instead of
// a full rebuild when only indexes were added.
func (r *Registry) PutKind(k *Kind) (PutKindResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k.ContentHash = contentHash(k)

	prev, existed := r.byID[k.ID]
	if !existed {
		k.NumericID = r.nextID
		r.nextID++
		r.byID[k.ID] = k
		r.byNumeric[k.NumericID] = k.ID
		return PutKindResult{Created: true}, nil
	}

	if prev.ContentHash == k.ContentHash {
		return PutKindResult{}, nil
	}

	k.NumericID = prev.NumericID
	added, dropped := indexDelta(prev.Indexes, k.Indexes)
	r.byID[k.ID] = k
	return PutKindResult{
		ContentChanged: true,
		AddedIndexes:   added,
		DroppedIndexes: dropped,
	}, nil
}

// Count returns the number of kinds currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// DelKind removes a kind from the registry. The numeric id is never
// reassigned (mirrors the token-allocation invariant).
func (r *Registry) DelKind(kindID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[kindID]; !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q not found", kindID)
	}
	delete(r.byID, kindID)
	return nil
}

// contentHash fingerprints a kind's schema-relevant fields: its index
// definitions and permission matrix. Owner/Extends participate too
// since they affect permission composition.
func contentHash(k *Kind) uint64 {
	h := xxhash.New()
	write := func(s string) { h.Write([]byte(s)); h.Write([]byte{0}) }

	write(k.ID)
	write(k.Owner)
	for _, e := range sortedCopy(k.Extends) {
		write(e)
	}
	for _, idx := range k.Indexes {
		write(idx.Name)
		if idx.IncDel {
			write("incDel")
		}
		for _, p := range idx.Props {
			write(p.Path)
			write(string(rune('0' + p.Collation)))
			write(string(rune('0' + p.Tokenize)))
			if p.Multi {
				write("multi")
			}
		}
	}
	for _, caller := range sortedKeys(k.Permissions) {
		write(caller)
		ops := k.Permissions[caller]
		for _, op := range sortedOps(ops) {
			if ops[op] {
				write(string(op))
			}
		}
	}
	return h.Sum64()
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func sortedKeys(m Permissions) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedOps(m map[Op]bool) []Op {
	out := make([]Op, 0, len(m))
	for op := range m {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// indexDelta reports which index names were added or dropped between
// two versions of a kind's index set, by name only: a property-level
// change to an existing index name is treated as drop+add so the caller
// always rebuilds it from scratch.
func indexDelta(prev, next []IndexDef) (added, dropped []string) {
	prevByName := make(map[string]IndexDef, len(prev))
	for _, idx := range prev {
		prevByName[idx.Name] = idx
	}
	nextByName := make(map[string]IndexDef, len(next))
	for _, idx := range next {
		nextByName[idx.Name] = idx
	}

	for _, idx := range next {
		old, existed := prevByName[idx.Name]
		if !existed || !sameIndexDef(old, idx) {
			added = append(added, idx.Name)
		}
		if existed && !sameIndexDef(old, idx) {
			dropped = append(dropped, idx.Name)
		}
	}
	for _, idx := range prev {
		if _, ok := nextByName[idx.Name]; !ok {
			dropped = append(dropped, idx.Name)
		}
	}
	sort.Strings(added)
	sort.Strings(dropped)
	return added, dropped
}

func sameIndexDef(a, b IndexDef) bool {
	if a.Name != b.Name || a.IncDel != b.IncDel || len(a.Props) != len(b.Props) {
		return false
	}
	for i := range a.Props {
		if a.Props[i] != b.Props[i] {
			return false
		}
	}
	return true
}
