package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// seqPageSize is how many ids a Sequence reserves from persisted
// storage at a time. The in-memory counter serves page-size ids off a
// single persisted write; a reopened sequence resumes at the persisted
// page boundary, so ids are never reused but up to a page of them may
// be skipped, in exchange for far fewer bbolt commits on the hot path.
const seqPageSize = 100

// Sequence is a monotonically increasing, page-allocated counter
// persisted in a shard's seq bucket, backing id.Reserve's SequenceSource
// and revision numbering. Grounded on the page-allocation pattern
// common to embedded-KV id generators (no single teacher file does this
// — cuemby-warren has no id allocator — so the scheme itself is
// standard log-structured-store practice: reserve a page, persist the
// high-water mark once, serve from memory until exhausted).
type Sequence struct {
	shard *Shard
	name  []byte

	mu       sync.Mutex
	next     int64
	pageEnd  int64
}

// OpenSequence returns the named sequence within shard, loading its
// last-persisted high-water mark (0 if never used).
func OpenSequence(shard *Shard, name string) (*Sequence, error) {
	s := &Sequence{shard: shard, name: []byte(name)}
	err := shard.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(BucketSequence)
		if b == nil {
			return nil
		}
		v := b.Get(s.name)
		if v == nil || len(v) != 8 {
			return nil
		}
		s.next = int64(binary.BigEndian.Uint64(v))
		s.pageEnd = s.next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open sequence %s: %w", name, err)
	}
	return s, nil
}

// Next returns the next value in the sequence, persisting a new
// high-water mark whenever the current page is exhausted.
func (s *Sequence) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= s.pageEnd {
		newEnd := s.pageEnd + seqPageSize
		if err := s.persist(newEnd); err != nil {
			return 0, err
		}
		s.pageEnd = newEnd
	}

	v := s.next
	s.next++
	return v, nil
}

// ReserveN atomically reserves count consecutive values, returning the
// first. Used by id.Reserve to hand out contiguous id blocks.
func (s *Sequence) ReserveN(count int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int64(count) > s.pageEnd-s.next {
		needed := s.next + int64(count)
		newEnd := s.pageEnd
		for newEnd < needed {
			newEnd += seqPageSize
		}
		if err := s.persist(newEnd); err != nil {
			return 0, err
		}
		s.pageEnd = newEnd
	}

	v := s.next
	s.next += int64(count)
	return v, nil
}

func (s *Sequence) persist(highWaterMark int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(highWaterMark))
	return s.shard.update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(BucketSequence)
		if err != nil {
			return err
		}
		return b.Put(s.name, buf[:])
	})
}
