package storage

import (
	"fmt"
	"sync"

	"github.com/shelfdb/shelfdb/pkg/dberr"
)

// Engine owns the set of mounted shards and hands out multi-shard
// transactions over them.
type Engine struct {
	mu     sync.RWMutex
	dir    string
	shards map[uint32]*Shard
}

// NewEngine returns an engine rooted at dir. Shards are opened lazily
// via MountShard, not eagerly on construction.
func NewEngine(dir string) *Engine {
	return &Engine{dir: dir, shards: make(map[uint32]*Shard)}
}

// MountShard opens (creating if absent) the shard file for id and
// registers it for use in transactions. Mounting an already-mounted
// shard is a no-op returning the existing handle.
func (e *Engine) MountShard(id uint32) (*Shard, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.shards[id]; ok {
		return s, nil
	}
	s, err := OpenShard(e.dir, id)
	if err != nil {
		return nil, err
	}
	e.shards[id] = s
	return s, nil
}

// UnmountShard closes and forgets a mounted shard.
func (e *Engine) UnmountShard(id uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.shards[id]
	if !ok {
		return nil
	}
	delete(e.shards, id)
	return s.Close()
}

// Shard returns an already-mounted shard, or ShardInactive if it isn't.
func (e *Engine) Shard(id uint32) (*Shard, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[id]
	if !ok {
		return nil, dberr.New(dberr.ShardInactive, "shard %d is not mounted", id)
	}
	return s, nil
}

// MountedShards returns the ids of all currently mounted shards.
func (e *Engine) MountedShards() []uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]uint32, 0, len(e.shards))
	for id := range e.shards {
		out = append(out, id)
	}
	return out
}

// Begin starts a transaction spanning mainShard plus any extraShards
// (spec §4.2 "a transaction may touch more than one shard, but exactly
// one of them — the object's home shard — is its atomicity anchor").
// All touched shards must already be mounted.
func (e *Engine) Begin(mainShard uint32, extraShards ...uint32) (*Txn, error) {
	ids := append([]uint32{mainShard}, extraShards...)
	shards := make(map[uint32]*Shard, len(ids))
	for _, id := range ids {
		s, err := e.Shard(id)
		if err != nil {
			return nil, fmt.Errorf("begin txn: %w", err)
		}
		shards[id] = s
	}
	return newTxn(mainShard, shards), nil
}

// Close unmounts every mounted shard.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for id, s := range e.shards {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.shards, id)
	}
	return firstErr
}
