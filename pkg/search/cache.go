// Package search implements shelfdb's search cursor: the global-sort
// pipeline over bounded in-memory candidate materialization the spec's
// find cursor (pkg/query) doesn't provide, plus the revision-keyed
// result cache that lets repeated searches skip re-materializing (spec
// §4.6). Grounded on `original_source/src/db/MojDbSearchCache.cpp`'s
// (kind, canonicalized-query, revision) cache key and whole/per-kind
// invalidation, reimplemented over `hashicorp/golang-lru`.
package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/shelfdb/shelfdb/pkg/id"
)

// CacheKey identifies one cached result id-list: the kind queried, the
// query with page/limit stripped (so pagination of the same search
// shares a cache entry), and the kind's revision at materialization
// time (so a schema/index change naturally misses rather than serving
// stale ids).
type CacheKey struct {
	KindID        string
	CanonicalJSON string
	KindRevision  uint64
}

func (k CacheKey) cacheKey() string {
	h := sha256.Sum256([]byte(k.KindID + "\x00" + k.CanonicalJSON))
	return k.KindID + ":" + hex.EncodeToString(h[:8]) + ":" + itoa(k.KindRevision)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Cache holds materialized candidate-id lists keyed by CacheKey,
// wiped wholesale on any shard-status change and pruned per-kind on
// schema/index change (spec §4.6 "Search cache").
type Cache struct {
	mu      sync.RWMutex
	byKind  map[string]map[string]struct{} // kindID -> set of cache keys, for DropKind
	entries *lru.Cache
}

// NewCache returns a cache bounded to size entries (config
// SearchConfig.CacheSize).
func NewCache(size int) *Cache {
	entries, err := lru.New(size)
	if err != nil {
		// lru.New only errors on size <= 0; a misconfigured cache size is
		// a programmer error, not a runtime condition to recover from.
		panic(err)
	}
	return &Cache{byKind: make(map[string]map[string]struct{}), entries: entries}
}

// Get returns the cached id list for key, if present.
func (c *Cache) Get(key CacheKey) ([]id.Id, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries.Get(key.cacheKey())
	if !ok {
		return nil, false
	}
	return v.([]id.Id), true
}

// Put stores ids under key.
func (c *Cache) Put(key CacheKey, ids []id.Id) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.cacheKey()
	c.entries.Add(k, ids)
	set, ok := c.byKind[key.KindID]
	if !ok {
		set = make(map[string]struct{})
		c.byKind[key.KindID] = set
	}
	set[k] = struct{}{}
}

// DropKind evicts every cached entry for kindID (spec §4.6: "any kind
// schema/index change drops all entries for that kind").
func (c *Cache) DropKind(kindID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.byKind[kindID] {
		c.entries.Remove(k)
	}
	delete(c.byKind, kindID)
}

// WipeAll clears the entire cache (spec §4.6: "any change to shard
// status wipes the whole cache").
func (c *Cache) WipeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.byKind = make(map[string]map[string]struct{})
}
