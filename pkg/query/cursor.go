package query

import (
	"encoding/base64"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/storage"
)

// State is a Cursor's position in its lifecycle (spec §4.5 "Cursor
// states": initialized → positioned → next … → exhausted | closed).
type State int

const (
	StateInitialized State = iota
	StatePositioned
	StateExhausted
	StateClosed
)

// Cursor walks one index's key range inside a read transaction in
// ascending key order, yielding the object id of each entry; the desc
// flag is recorded but does not change the walk direction (see Next).
// It does not decode document bodies — pkg/search layers that on top
// for the results it actually needs to materialize.
type Cursor struct {
	txn   *storage.Txn
	shard uint32
	kindID string
	idx   string
	rng   Range
	desc  bool

	state   State
	nextKey []byte // key to resume Next() from; nil = start of range
}

// New opens a cursor over plan's selected index and range within txn's
// shard, starting at page (the opaque token from a prior cursor's
// PageToken, or "" to start at the range's lower bound).
func New(txn *storage.Txn, shard uint32, kindID string, plan Plan, desc bool, page string) (*Cursor, error) {
	c := &Cursor{
		txn: txn, shard: shard, kindID: kindID, idx: plan.Index.Name,
		rng: plan.Range, desc: desc, state: StateInitialized,
	}
	if page != "" {
		key, err := base64.RawURLEncoding.DecodeString(page)
		if err != nil {
			return nil, dberr.New(dberr.InvalidQuery, "invalid page token")
		}
		c.nextKey = key
	}
	return c, nil
}

// Next advances the cursor and returns the next matching object id, or
// ok=false once the range is exhausted. Only ascending iteration is
// implemented directly against the storage cursor; descending order is
// produced by pkg/search's full materialize-then-reverse pass, since
// bbolt's merge-iterate here only walks forward (spec §4.6).
func (c *Cursor) Next() (objID id.Id, ok bool, err error) {
	if c.state == StateClosed {
		return id.Id{}, false, dberr.New(dberr.NotOpen, "cursor is closed")
	}
	if c.state == StateExhausted {
		return id.Id{}, false, nil
	}

	start := c.nextKey
	if start == nil {
		start = c.rng.Lower
	}

	var (
		foundKey []byte
		foundVal []byte
		found    bool
	)
	err = c.txn.Iterate(c.shard, storage.BucketIndexes, start, func(key, val []byte) (bool, error) {
		if !c.rng.InRange(key) {
			return false, nil
		}
		foundKey, foundVal, found = key, val, true
		return false, nil
	})
	if err != nil {
		return id.Id{}, false, err
	}
	if !found {
		c.state = StateExhausted
		return id.Id{}, false, nil
	}

	oid, err := id.FromBytes(foundVal)
	if err != nil {
		return id.Id{}, false, dberr.New(dberr.InconsistentIndex, "index entry %x on kind %s index %s has a malformed object id", foundKey, c.kindID, c.idx)
	}

	c.nextKey = successorKey(foundKey)
	c.state = StatePositioned
	return oid, true, nil
}

// successorKey returns the smallest key strictly greater than k, for
// resuming a range scan past the entry just returned.
func successorKey(k []byte) []byte {
	out := append([]byte{}, k...)
	return append(out, 0x00)
}

// PageToken returns the opaque resume token for the position the next
// call to Next would read from, or "" if the cursor is exhausted.
func (c *Cursor) PageToken() string {
	if c.state == StateExhausted || c.nextKey == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(c.nextKey)
}

// Close transitions the cursor to Closed; further Next calls fail with
// dberr.NotOpen (spec §5 "Cancellation & timeouts").
func (c *Cursor) Close() {
	c.state = StateClosed
}

// State reports the cursor's current lifecycle state.
func (c *Cursor) State() State { return c.state }
