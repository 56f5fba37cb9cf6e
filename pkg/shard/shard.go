// Package shard manages the lifecycle of removable storage shards:
// mounting/unmounting a shard's bbolt file, tracking which device it
// lives on, and the garbage pass that reclaims an unmounted shard's
// tombstoned state. Grounded on cuemby-warren/pkg/volume's
// VolumeDriver/VolumeManager pattern, generalized from "mount a
// directory for a container" to "mount a shard's storage file and
// register its known kind set" (spec §4.9 "Shard").
package shard

import (
	"sync"

	"github.com/google/uuid"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/storage"
)

// Info describes one shard's identity and mount state, mirroring
// original_source/inc/db/MojDbShardInfo.h's field set (minus the
// human-facing device name/URI/timestamp fields, which belong to the
// external removable-media collaborator, not the storage engine).
type Info struct {
	ID       uint32
	DeviceID string // stable id for the physical device this shard lives on
	Active   bool
	// Transient marks a shard created for a single session (e.g. a
	// temporary import) that should never be treated as a durable
	// member of the main shard set.
	Transient bool
	// ParentDeviceID links a shard to the device it was copied or
	// migrated from, if any.
	ParentDeviceID string

	// KnownKinds is the set of kind content hashes this shard's stored
	// records were written against, recorded by MarkKind and compared by
	// IsStale to detect a shard carrying schema state staler than the
	// registry's (spec §4.9). Mount does not consult it.
	KnownKinds map[string]uint64

	shard *storage.Shard
}

// Storage returns the mounted shard's underlying storage handle.
func (i *Info) Storage() *storage.Shard { return i.shard }

// Pool tracks every shard known to the engine, mounted or not.
type Pool struct {
	mu     sync.RWMutex
	engine *storage.Engine
	shards map[uint32]*Info
}

// NewPool returns an empty pool backed by engine.
func NewPool(engine *storage.Engine) *Pool {
	return &Pool{engine: engine, shards: make(map[uint32]*Info)}
}

// Mount opens id's storage file (creating it if new) and registers it
// active in the pool. A fresh shard is assigned a new device id; an
// already-known shard keeps its recorded device id.
func (p *Pool) Mount(id uint32, transient bool, parentDeviceID string) (*Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.engine.MountShard(id)
	if err != nil {
		return nil, err
	}

	info, known := p.shards[id]
	if !known {
		info = &Info{
			ID:             id,
			DeviceID:       uuid.NewString(),
			Transient:      transient,
			ParentDeviceID: parentDeviceID,
			KnownKinds:     make(map[string]uint64),
		}
		p.shards[id] = info
	}
	info.shard = s
	info.Active = true
	return info, nil
}

// Unmount closes id's storage file and marks it inactive. The shard
// stays registered in the pool (with its device id and known-kinds set
// preserved) so a later Mount of the same id recognizes it.
func (p *Pool) Unmount(id uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.shards[id]
	if !ok || !info.Active {
		return dberr.New(dberr.ShardInactive, "shard %d is not mounted", id)
	}
	if err := p.engine.UnmountShard(id); err != nil {
		return err
	}
	info.Active = false
	info.shard = nil
	return nil
}

// Get returns the registered info for id, mounted or not.
func (p *Pool) Get(id uint32) (*Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.shards[id]
	return info, ok
}

// Active returns the ids of every currently mounted shard.
func (p *Pool) Active() []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []uint32
	for id, info := range p.shards {
		if info.Active {
			out = append(out, id)
		}
	}
	return out
}

// Known returns the ids of every shard the pool has ever mounted,
// mounted or not, used by callers that want to reach a shard marked
// inactive (spec §8 "shard visibility").
func (p *Pool) Known() []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uint32, 0, len(p.shards))
	for id := range p.shards {
		out = append(out, id)
	}
	return out
}

// MarkKind records that a shard has written records against the given
// kind content hash, for staleness detection on the next mount.
func (p *Pool) MarkKind(shardID uint32, kindID string, contentHash uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.shards[shardID]
	if !ok {
		return
	}
	info.KnownKinds[kindID] = contentHash
}

// IsStale reports whether shardID's recorded content hash for kindID
// differs from currentHash (it has never seen the kind's latest
// schema, so a query against it risks reading records with dropped or
// changed indexes until a reindex pass catches it up).
func (p *Pool) IsStale(shardID uint32, kindID string, currentHash uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.shards[shardID]
	if !ok {
		return false
	}
	known, ok := info.KnownKinds[kindID]
	if !ok {
		return false
	}
	return known != currentHash
}

// DropGarbage permanently forgets an inactive, transient shard's
// registration — the durable equivalent would instead wait for an
// explicit purge request (spec §6 "purge"), but a transient shard has
// no durability guarantee once unmounted.
func (p *Pool) DropGarbage() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var dropped []uint32
	for id, info := range p.shards {
		if !info.Active && info.Transient {
			delete(p.shards, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}
