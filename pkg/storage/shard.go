package storage

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Sub-database names. Each shard's bbolt file carries all five as
// top-level buckets (spec §4.2 "cookies"): the primary object store,
// secondary index entries, the kind catalog, the kind-id allocator
// table, and sequence counters.
var (
	BucketObjects  = []byte("objects")
	BucketIndexes  = []byte("indexes")
	BucketKinds    = []byte("kinds")
	BucketKindIDs  = []byte("indexIds")
	BucketSequence = []byte("seq")
)

var allBuckets = [][]byte{BucketObjects, BucketIndexes, BucketKinds, BucketKindIDs, BucketSequence}

// Shard is one ordered-KV unit: a single bbolt file holding a shard's
// objects, indexes, and schema state (spec §4.9 "Shard").
type Shard struct {
	ID uint32
	db *bolt.DB
}

// OpenShard opens or creates the bbolt file backing shard id under dir,
// creating its sub-databases on first open.
func OpenShard(dir string, id uint32) (*Shard, error) {
	path := filepath.Join(dir, fmt.Sprintf("shard-%08x.db", id))
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open shard %d: %w", id, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Shard{ID: id, db: db}, nil
}

// Close releases the shard's underlying bbolt file.
func (s *Shard) Close() error {
	return s.db.Close()
}

// view runs a read-only bbolt transaction against the shard.
func (s *Shard) view(fn func(tx *bolt.Tx) error) error {
	return s.db.View(fn)
}

// update runs a read-write bbolt transaction against the shard.
func (s *Shard) update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(fn)
}

// Path returns the shard's bbolt file path.
func (s *Shard) Path() string {
	return s.db.Path()
}

// Compact performs bbolt's best-effort reclamation (spec §4.2
// "compact() — best-effort reclamation"): bbolt never shrinks its file
// in place, so this copies every bucket into a fresh file with no
// freelist garbage and swaps it in, mirroring the upstream `bolt
// compact` tool's approach.
func (s *Shard) Compact() error {
	path := s.db.Path()
	tmpPath := path + ".compact"

	dst, err := bolt.Open(tmpPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("compact shard: open scratch file: %w", err)
	}
	copyErr := s.db.View(func(tx *bolt.Tx) error {
		return dst.Update(func(dtx *bolt.Tx) error {
			return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
				nb, err := dtx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return b.ForEach(func(k, v []byte) error {
					return nb.Put(append([]byte(nil), k...), append([]byte(nil), v...))
				})
			})
		})
	})
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("compact shard: copy: %w", copyErr)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("compact shard: close original: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("compact shard: swap in: %w", err)
	}
	newDB, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("compact shard: reopen: %w", err)
	}
	s.db = newDB
	return nil
}
