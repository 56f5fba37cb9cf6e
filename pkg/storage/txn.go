package storage

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/shelfdb/shelfdb/pkg/dberr"
)

// shardState is one shard's staged overlays within a Txn, one per
// sub-database that's been touched.
type shardState struct {
	shard    *Shard
	overlays map[string]*bucketOverlay
}

func (s *shardState) overlay(bucket []byte) *bucketOverlay {
	key := string(bucket)
	o, ok := s.overlays[key]
	if !ok {
		o = newBucketOverlay()
		s.overlays[key] = o
	}
	return o
}

// Txn is a transaction spanning one or more shards. Writes land in an
// in-memory overlay and are invisible outside the Txn until Commit; on
// Commit, non-main shards apply first (continue on failure, collecting
// errors) and the main shard applies last as the transaction's
// atomicity anchor — deliberately not a two-phase commit (spec §4.2,
// §9 "Open question: cross-shard atomicity").
type Txn struct {
	mainShard uint32
	states    map[uint32]*shardState
	done      bool
}

func newTxn(mainShard uint32, shards map[uint32]*Shard) *Txn {
	states := make(map[uint32]*shardState, len(shards))
	for id, s := range shards {
		states[id] = &shardState{shard: s, overlays: make(map[string]*bucketOverlay)}
	}
	return &Txn{mainShard: mainShard, states: states}
}

// MainShard returns the transaction's atomicity-anchor shard id.
func (t *Txn) MainShard() uint32 { return t.mainShard }

// ShardIDs returns every shard id this transaction spans.
func (t *Txn) ShardIDs() []uint32 {
	out := make([]uint32, 0, len(t.states))
	for id := range t.states {
		out = append(out, id)
	}
	return out
}

func (t *Txn) state(shard uint32) (*shardState, error) {
	st, ok := t.states[shard]
	if !ok {
		return nil, dberr.New(dberr.InvalidShardID, "shard %d not part of this transaction", shard)
	}
	return st, nil
}

// Put stages a write of key -> value in bucket on shard.
func (t *Txn) Put(shard uint32, bucket, key, value []byte) error {
	st, err := t.state(shard)
	if err != nil {
		return err
	}
	st.overlay(bucket).put(key, value)
	return nil
}

// Delete stages a tombstone for key in bucket on shard.
func (t *Txn) Delete(shard uint32, bucket, key []byte) error {
	st, err := t.state(shard)
	if err != nil {
		return err
	}
	st.overlay(bucket).delete(key)
	return nil
}

// Get reads key from bucket on shard, preferring this transaction's own
// staged writes over the shard's committed state.
func (t *Txn) Get(shard uint32, bucket, key []byte) ([]byte, bool, error) {
	st, err := t.state(shard)
	if err != nil {
		return nil, false, err
	}
	if val, staged, present := st.overlay(bucket).get(key); staged {
		return val, present, nil
	}

	var (
		val   []byte
		found bool
	)
	err = st.shard.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			val = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	return val, found, nil
}

// Iterate walks bucket on shard in ascending key order starting at
// start (or from the beginning, if start is nil), merging this
// transaction's staged writes over the shard's committed state. fn
// returns false to stop early.
func (t *Txn) Iterate(shard uint32, bucket, start []byte, fn func(key, value []byte) (bool, error)) error {
	st, err := t.state(shard)
	if err != nil {
		return err
	}
	return mergeIterate(st, bucket, start, fn)
}

// mergeIterate performs a k-way merge of the overlay's staged entries
// (including tombstones, which suppress the matching base key) and the
// shard's underlying bbolt cursor, in ascending key order.
func mergeIterate(st *shardState, bucket, start []byte, fn func(key, value []byte) (bool, error)) error {
	ov := st.overlay(bucket)

	// Snapshot the overlay's ordered entries up front: bbolt's cursor
	// must stay open for the whole walk, but holding the overlay's tree
	// open across a bolt.View closure risks call re-entrancy if fn also
	// touches the same Txn, so materialize it first.
	var staged []overlayItem
	ov.ascend(start, func(item overlayItem) bool {
		staged = append(staged, item)
		return true
	})

	return st.shard.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return mergeStagedOnly(staged, fn)
		}
		c := b.Cursor()
		var k, v []byte
		if start == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(start)
		}

		si := 0
		for k != nil || si < len(staged) {
			var stagedKey []byte
			if si < len(staged) {
				stagedKey = staged[si].key
			}

			switch {
			case k == nil:
				// Base exhausted; drain remaining staged entries.
				if !staged[si].deleted {
					cont, err := fn(stagedKey, staged[si].value)
					if err != nil || !cont {
						return err
					}
				}
				si++
			case si >= len(staged) || bytes.Compare(k, stagedKey) < 0:
				cont, err := fn(k, v)
				if err != nil || !cont {
					return err
				}
				k, v = c.Next()
			case bytes.Equal(k, stagedKey):
				// Overlay shadows base.
				if !staged[si].deleted {
					cont, err := fn(stagedKey, staged[si].value)
					if err != nil || !cont {
						return err
					}
				}
				k, v = c.Next()
				si++
			default:
				if !staged[si].deleted {
					cont, err := fn(stagedKey, staged[si].value)
					if err != nil || !cont {
						return err
					}
				}
				si++
			}
		}
		return nil
	})
}

func mergeStagedOnly(staged []overlayItem, fn func(key, value []byte) (bool, error)) error {
	for _, item := range staged {
		if item.deleted {
			continue
		}
		cont, err := fn(item.key, item.value)
		if err != nil || !cont {
			return err
		}
	}
	return nil
}

// Commit applies every touched shard's staged writes. Non-main shards
// commit first; every non-main failure is collected rather than
// aborting early, so a failure on one secondary shard doesn't strand
// writes half-applied on the others. The main shard commits last and
// its result is the transaction's own — a failure there after
// non-main shards already committed is the cross-shard inconsistency
// window the spec accepts in place of two-phase commit.
func (t *Txn) Commit() error {
	if t.done {
		return dberr.New(dberr.StorageIO, "transaction already finalized")
	}
	t.done = true

	var nonMainErrs []error
	for id, st := range t.states {
		if id == t.mainShard {
			continue
		}
		if err := applyOverlays(st); err != nil {
			nonMainErrs = append(nonMainErrs, fmt.Errorf("shard %d: %w", id, err))
		}
	}

	mainErr := applyOverlays(t.states[t.mainShard])
	if mainErr != nil {
		if len(nonMainErrs) > 0 {
			return fmt.Errorf("main shard commit failed (%w); non-main shards also failed: %v", mainErr, nonMainErrs)
		}
		return fmt.Errorf("main shard commit failed: %w", mainErr)
	}
	if len(nonMainErrs) > 0 {
		return fmt.Errorf("main shard committed but non-main shards failed: %v", nonMainErrs)
	}
	return nil
}

func applyOverlays(st *shardState) error {
	if len(st.overlays) == 0 {
		return nil
	}
	return st.shard.update(func(tx *bolt.Tx) error {
		for bucketName, ov := range st.overlays {
			b := tx.Bucket([]byte(bucketName))
			if b == nil {
				var err error
				b, err = tx.CreateBucketIfNotExists([]byte(bucketName))
				if err != nil {
					return err
				}
			}
			var applyErr error
			ov.ascend(nil, func(item overlayItem) bool {
				if item.deleted {
					applyErr = b.Delete(item.key)
				} else {
					applyErr = b.Put(item.key, item.value)
				}
				return applyErr == nil
			})
			if applyErr != nil {
				return applyErr
			}
		}
		return nil
	})
}

// Abort discards all staged writes without touching any shard's
// committed state (nothing to undo: overlays never reach bbolt until
// Commit).
func (t *Txn) Abort() {
	t.done = true
}
