package storage

import (
	"bytes"

	"github.com/google/btree"
)

// overlayItem is one staged write against a bucket: either a value to
// write, or a tombstone marking a delete. Items are ordered purely by
// key so Ascend walks match the bucket's own byte order, letting a
// transaction's reads merge overlay and base state without resorting.
type overlayItem struct {
	key     []byte
	value   []byte
	deleted bool
}

func overlayLess(a, b overlayItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// bucketOverlay stages writes to one sub-database within one shard for
// the lifetime of a single Txn (spec §4.2 "in-flight writes are visible
// to the transaction that made them, and to no one else, until commit").
type bucketOverlay struct {
	tree *btree.BTreeG[overlayItem]
}

func newBucketOverlay() *bucketOverlay {
	return &bucketOverlay{tree: btree.NewG(32, overlayLess)}
}

func (o *bucketOverlay) put(key, value []byte) {
	o.tree.ReplaceOrInsert(overlayItem{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (o *bucketOverlay) delete(key []byte) {
	o.tree.ReplaceOrInsert(overlayItem{key: append([]byte(nil), key...), deleted: true})
}

// get returns (value, true, true) on a staged Put, (nil, true, false) on
// a staged delete (known-absent, do not fall through to base), and
// (nil, false, false) when the key isn't staged at all (consult base).
func (o *bucketOverlay) get(key []byte) (value []byte, staged bool, present bool) {
	item, ok := o.tree.Get(overlayItem{key: key})
	if !ok {
		return nil, false, false
	}
	if item.deleted {
		return nil, true, false
	}
	return item.value, true, true
}

// ascend walks staged items from start (inclusive) in ascending key
// order, including tombstones so the merge iterator can skip base keys
// that were deleted in this transaction.
func (o *bucketOverlay) ascend(start []byte, fn func(item overlayItem) bool) {
	if start == nil {
		o.tree.Ascend(func(item overlayItem) bool { return fn(item) })
		return
	}
	o.tree.AscendGreaterOrEqual(overlayItem{key: start}, func(item overlayItem) bool { return fn(item) })
}
