// Package txn implements shelfdb's document-level transaction: encoding
// and storing a record, maintaining its secondary index entries, quota
// accounting, and firing watches on commit. It sits above pkg/storage's
// byte-oriented Txn (which already orders multi-shard commits non-main-
// first, main-last) and pkg/kind's schema/extractor layer. Grounded on
// cuemby-warren/pkg/manager/fsm.go's apply-then-commit staging.
package txn

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shelfdb/shelfdb/pkg/codec"
	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/storage"
	"github.com/shelfdb/shelfdb/pkg/watch"
)

// notification is a deferred watch.Registry.Notify call, queued while
// the transaction is open and flushed only after Commit succeeds — a
// watch must never fire for a write an abort rolled back.
type notification struct {
	shard uint32
	index string
	key   []byte
}

// Txn is one document-level transaction: object reads/writes plus the
// index maintenance, quota charge, and watch notifications they imply.
type Txn struct {
	st      *storage.Txn
	reg     *kind.Registry
	ledger  *Ledger
	watches *watch.Registry
	rev     *storage.Sequence

	notifications []notification
}

// New wraps a storage.Txn with document-level semantics. rev must be a
// Sequence opened on the transaction's main shard.
func New(st *storage.Txn, reg *kind.Registry, ledger *Ledger, watches *watch.Registry, rev *storage.Sequence) *Txn {
	return &Txn{st: st, reg: reg, ledger: ledger, watches: watches, rev: rev}
}

func buildIndexKey(kindID, indexName string, sortKey []byte, objID [id.Len]byte) []byte {
	prefix := kind.IndexKeyPrefix(kindID, indexName)
	out := make([]byte, 0, len(prefix)+len(sortKey)+len(objID))
	out = append(out, prefix...)
	out = append(out, sortKey...)
	out = append(out, objID[:]...)
	return out
}

func keySet(keys [][]byte) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[string(k)] = true
	}
	return m
}

// Get reads and decodes objID's current record, if present.
func (t *Txn) Get(objID id.Id) (doc.Header, doc.Value, bool, error) {
	shard := t.st.MainShard()
	raw, found, err := t.st.Get(shard, storage.BucketObjects, keyBytes(objID))
	if err != nil || !found {
		return doc.Header{}, doc.Value{}, found, err
	}
	return t.decode(raw)
}

func keyBytes(objID id.Id) []byte {
	b := objID.Bytes()
	return b[:]
}

func (t *Txn) decode(raw []byte) (doc.Header, doc.Value, bool, error) {
	h, n, err := codec.DecodeHeader(raw, t.reg)
	if err != nil {
		return doc.Header{}, doc.Value{}, true, err
	}
	k, ok := t.reg.GetKind(h.KindID)
	if !ok {
		return doc.Header{}, doc.Value{}, true, dberr.New(dberr.KindNotRegistered, "kind %s no longer registered", h.KindID)
	}
	body, _, err := codec.DecodeValue(raw[n:], k.Tokens)
	if err != nil {
		return doc.Header{}, doc.Value{}, true, err
	}
	return h, body, true, nil
}

// Put writes objID's body under kindID, owned by owner. It assigns the
// next revision, stages index maintenance (diffing against any prior
// version of the object), charges the owner's quota, and queues watch
// notifications for newly-matched index entries, all to be made
// effective by Commit (spec §4.4/§4.7, §6 "put").
func (t *Txn) Put(objID id.Id, kindID, owner string, body doc.Value) (int64, error) {
	shard := t.st.MainShard()
	if objID.Shard != shard {
		return 0, dberr.New(dberr.InvalidShardID, "object %s does not belong to this transaction's main shard %d", objID, shard)
	}
	k, ok := t.reg.GetKind(kindID)
	if !ok {
		return 0, dberr.New(dberr.KindNotRegistered, "kind %q is not registered", kindID)
	}

	keyB := keyBytes(objID)
	oldRaw, existed, err := t.st.Get(shard, storage.BucketObjects, keyB)
	if err != nil {
		return 0, err
	}
	var oldBody doc.Value
	if existed {
		_, oldBody, _, err = t.decode(oldRaw)
		if err != nil {
			return 0, err
		}
	}

	rev, err := t.rev.Next()
	if err != nil {
		return 0, fmt.Errorf("allocate revision: %w", err)
	}
	rev++ // revisions start at 1; a fresh Sequence's first value is 0

	header := doc.Header{ID: objID.String(), KindID: kindID, Rev: rev}
	encoded, err := codec.EncodeRecord(header, body, k.Tokens, t.reg)
	if err != nil {
		return 0, err
	}

	delta := int64(len(encoded))
	if existed {
		delta -= int64(len(oldRaw))
	}
	if err := t.ledger.Reserve(owner, delta); err != nil {
		return 0, err
	}

	if err := t.st.Put(shard, storage.BucketObjects, keyB, encoded); err != nil {
		return 0, err
	}
	t.ledger.Charge(owner, delta)

	if err := t.reindex(shard, kindID, k, objID, oldBody, body, existed); err != nil {
		return 0, err
	}
	return rev, nil
}

// reindex diffs an object's old and new index key sets per declared
// index, removing entries that no longer apply and adding ones that
// newly do, queuing a watch notification for each addition.
func (t *Txn) reindex(shard uint32, kindID string, k *kind.Kind, objID id.Id, oldBody, newBody doc.Value, hadOld bool) error {
	var idBytes [id.Len]byte = objID.Bytes()

	for _, idx := range k.Indexes {
		var oldKeys [][]byte
		if hadOld {
			oldKeys = kind.ExtractKeys(idx, oldBody)
		}
		newKeys := kind.ExtractKeys(idx, newBody)
		oldSet, newSet := keySet(oldKeys), keySet(newKeys)

		for sortKey := range oldSet {
			if newSet[sortKey] {
				continue
			}
			full := buildIndexKey(kindID, idx.Name, []byte(sortKey), idBytes)
			if err := t.st.Delete(shard, storage.BucketIndexes, full); err != nil {
				return err
			}
		}
		for sortKey := range newSet {
			if oldSet[sortKey] {
				continue
			}
			full := buildIndexKey(kindID, idx.Name, []byte(sortKey), idBytes)
			if err := t.st.Put(shard, storage.BucketIndexes, full, idBytes[:]); err != nil {
				return err
			}
			t.notifications = append(t.notifications, notification{shard: shard, index: idx.Name, key: full})
		}
	}
	return nil
}

// Del tombstones objID: its index entries are removed and, unless any
// declared index has IncDel set (in which case the record is kept as a
// deleted placeholder so that index still lists it), the object record
// itself is removed too (spec §6 "del", §4.3 IndexDef.IncDel). owner's
// quota is released by the size of the record being removed.
func (t *Txn) Del(objID id.Id, kindID, owner string) error {
	shard := t.st.MainShard()
	k, ok := t.reg.GetKind(kindID)
	if !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q is not registered", kindID)
	}

	keyB := keyBytes(objID)
	oldRaw, existed, err := t.st.Get(shard, storage.BucketObjects, keyB)
	if err != nil {
		return err
	}
	if !existed {
		return dberr.New(dberr.ObjectNotFound, "object %s not found", objID)
	}
	_, oldBody, _, err := t.decode(oldRaw)
	if err != nil {
		return err
	}

	keepAsTombstone := false
	var idBytes [id.Len]byte = objID.Bytes()
	for _, idx := range k.Indexes {
		oldKeys := kind.ExtractKeys(idx, oldBody)
		for _, sortKey := range oldKeys {
			full := buildIndexKey(kindID, idx.Name, sortKey, idBytes)
			if idx.IncDel {
				keepAsTombstone = true
				continue // entry stays; a deleted record remains discoverable via this index
			}
			if err := t.st.Delete(shard, storage.BucketIndexes, full); err != nil {
				return err
			}
		}
	}

	if keepAsTombstone {
		rev, err := t.rev.Next()
		if err != nil {
			return fmt.Errorf("allocate revision: %w", err)
		}
		rev++ // same numbering as Put
		header := doc.Header{ID: objID.String(), KindID: kindID, Rev: rev, Deleted: true}
		encoded, err := codec.EncodeRecord(header, doc.Null(), k.Tokens, t.reg)
		if err != nil {
			return err
		}
		if err := t.st.Put(shard, storage.BucketObjects, keyB, encoded); err != nil {
			return err
		}
		t.ledger.Charge(owner, int64(len(encoded))-int64(len(oldRaw)))
		return nil
	}
	if err := t.st.Delete(shard, storage.BucketObjects, keyB); err != nil {
		return err
	}
	t.ledger.Charge(owner, -int64(len(oldRaw)))
	return nil
}

// PutKind registers k with the registry and persists its definition to
// every shard this transaction spans (a kind's schema is shared cluster-
// wide, unlike object data which lives on one shard), exercising the
// storage layer's multi-shard commit path. Returns the registry's
// added/dropped index delta so the caller can schedule a reindex pass.
func (t *Txn) PutKind(k *kind.Kind) (kind.PutKindResult, error) {
	res, err := t.reg.PutKind(k)
	if err != nil {
		return res, err
	}
	data, err := yaml.Marshal(kindDoc{
		ID:          k.ID,
		Owner:       k.Owner,
		Extends:     k.Extends,
		NumericID:   k.NumericID,
		ContentHash: k.ContentHash,
	})
	if err != nil {
		return res, fmt.Errorf("marshal kind %s: %w", k.ID, err)
	}
	for _, shardID := range t.st.ShardIDs() {
		if err := t.st.Put(shardID, storage.BucketKinds, []byte(k.ID), data); err != nil {
			return res, err
		}
	}
	return res, nil
}

// kindDoc is the YAML-persisted projection of a kind's catalog entry.
// Index and permission definitions are not persisted here; they live
// only in the in-memory registry. Only the fields a reader needs to
// recognize a stale shard are written.
type kindDoc struct {
	ID          string   `yaml:"id"`
	Owner       string   `yaml:"owner"`
	Extends     []string `yaml:"extends"`
	NumericID   int64    `yaml:"numericId"`
	ContentHash uint64   `yaml:"contentHash"`
}

// Storage exposes the transaction's underlying byte-oriented storage.Txn,
// used by pkg/query's cursor to scan index ranges within the same
// transaction view a document read/write sees.
func (t *Txn) Storage() *storage.Txn { return t.st }

// Reindex walks every object of kindID on this transaction's main shard,
// adding entries for each of added (newly-declared index definitions)
// and removing every entry under each of dropped (index names no longer
// declared), exercising the same staged-write path Put/Del use (spec §4.3
// "Reindexing": "put-kind... triggers full reindex of affected objects").
func (t *Txn) Reindex(k *kind.Kind, added []kind.IndexDef, dropped []string) error {
	shard := t.st.MainShard()

	for _, name := range dropped {
		prefix := kind.IndexKeyPrefix(k.ID, name)
		var stale [][]byte
		if err := t.st.Iterate(shard, storage.BucketIndexes, prefix, func(key, _ []byte) (bool, error) {
			if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
				return false, nil
			}
			stale = append(stale, append([]byte(nil), key...))
			return true, nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := t.st.Delete(shard, storage.BucketIndexes, key); err != nil {
				return err
			}
		}
	}

	if len(added) == 0 {
		return nil
	}
	return t.st.Iterate(shard, storage.BucketObjects, nil, func(key, raw []byte) (bool, error) {
		h, n, err := codec.DecodeHeader(raw, t.reg)
		if err != nil {
			return false, err
		}
		if h.KindID != k.ID || h.Deleted {
			return true, nil
		}
		body, _, err := codec.DecodeValue(raw[n:], k.Tokens)
		if err != nil {
			return false, err
		}
		objID, err := id.FromBytes(key)
		if err != nil {
			return false, dberr.New(dberr.InconsistentIndex, "object key %x on kind %s is malformed", key, k.ID)
		}
		idBytes := objID.Bytes()
		for _, idx := range added {
			for _, sortKey := range kind.ExtractKeys(idx, body) {
				full := buildIndexKey(k.ID, idx.Name, sortKey, idBytes)
				if err := t.st.Put(shard, storage.BucketIndexes, full, idBytes[:]); err != nil {
					return false, err
				}
			}
		}
		return true, nil
	})
}

// DropKindObjects removes every object and index entry belonging to
// kindID on this transaction's main shard, used by delKind (spec §6
// "delKind").
func (t *Txn) DropKindObjects(kindID string) error {
	shard := t.st.MainShard()
	k, ok := t.reg.GetKind(kindID)
	if !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q is not registered", kindID)
	}

	var objKeys [][]byte
	if err := t.st.Iterate(shard, storage.BucketObjects, nil, func(key, raw []byte) (bool, error) {
		h, _, err := codec.DecodeHeader(raw, t.reg)
		if err != nil {
			return false, err
		}
		if h.KindID == kindID {
			objKeys = append(objKeys, append([]byte(nil), key...))
		}
		return true, nil
	}); err != nil {
		return err
	}
	for _, key := range objKeys {
		if err := t.st.Delete(shard, storage.BucketObjects, key); err != nil {
			return err
		}
	}

	for _, idx := range k.Indexes {
		prefix := kind.IndexKeyPrefix(kindID, idx.Name)
		var idxKeys [][]byte
		if err := t.st.Iterate(shard, storage.BucketIndexes, prefix, func(key, _ []byte) (bool, error) {
			if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
				return false, nil
			}
			idxKeys = append(idxKeys, append([]byte(nil), key...))
			return true, nil
		}); err != nil {
			return err
		}
		for _, key := range idxKeys {
			if err := t.st.Delete(shard, storage.BucketIndexes, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Walk streams every fully decodable object on this transaction's main
// shard to fn in primary-key order, including tombstones; callers that
// need the "dump <path> [incDel]" distinction (spec §6) filter on
// doc.Header.Deleted themselves.
func (t *Txn) Walk(fn func(doc.Header, doc.Value) error) error {
	shard := t.st.MainShard()
	return t.st.Iterate(shard, storage.BucketObjects, nil, func(_, raw []byte) (bool, error) {
		h, body, _, err := t.decode(raw)
		if err != nil {
			return false, err
		}
		if err := fn(h, body); err != nil {
			return false, err
		}
		return true, nil
	})
}

// PutRecord writes objID's body under the revision and kind recorded in
// header verbatim, rather than allocating a fresh one, reindexing it
// exactly as Put would. Used by "load" to replay a prior "dump" without
// perturbing revision numbers (spec §6 "load").
func (t *Txn) PutRecord(objID id.Id, header doc.Header, body doc.Value) error {
	shard := t.st.MainShard()
	if objID.Shard != shard {
		return dberr.New(dberr.InvalidShardID, "object %s does not belong to this transaction's main shard %d", objID, shard)
	}
	k, ok := t.reg.GetKind(header.KindID)
	if !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q is not registered", header.KindID)
	}

	keyB := keyBytes(objID)
	oldRaw, existed, err := t.st.Get(shard, storage.BucketObjects, keyB)
	if err != nil {
		return err
	}
	var oldBody doc.Value
	if existed {
		_, oldBody, _, err = t.decode(oldRaw)
		if err != nil {
			return err
		}
	}

	encoded, err := codec.EncodeRecord(header, body, k.Tokens, t.reg)
	if err != nil {
		return err
	}
	if err := t.st.Put(shard, storage.BucketObjects, keyB, encoded); err != nil {
		return err
	}
	return t.reindex(shard, header.KindID, k, objID, oldBody, body, existed)
}

// PurgeTombstones permanently removes every object record on this
// transaction's main shard that is deleted (IncDel-kept) and whose
// revision is at most olderThanRev, along with the index entries that
// kept it discoverable (spec §6 "purge" — the garbage collection pass
// for Del's IncDel-preserved tombstones).
func (t *Txn) PurgeTombstones(olderThanRev int64) error {
	shard := t.st.MainShard()

	type stale struct {
		key    []byte
		kindID string
		rev    int64
	}
	var tombstones []stale
	if err := t.st.Iterate(shard, storage.BucketObjects, nil, func(key, raw []byte) (bool, error) {
		h, _, err := codec.DecodeHeader(raw, t.reg)
		if err != nil {
			return false, err
		}
		if h.Deleted && h.Rev <= olderThanRev {
			tombstones = append(tombstones, stale{key: append([]byte(nil), key...), kindID: h.KindID, rev: h.Rev})
		}
		return true, nil
	}); err != nil {
		return err
	}

	for _, ts := range tombstones {
		objID, err := id.FromBytes(ts.key)
		if err != nil {
			return dberr.New(dberr.InconsistentIndex, "tombstone key %x is malformed", ts.key)
		}
		k, ok := t.reg.GetKind(ts.kindID)
		if !ok {
			continue // kind since dropped: its index entries were already removed by DelKind
		}
		idBytes := objID.Bytes()
		// The tombstone's original body is gone (Del overwrote it with
		// null), so its surviving IncDel index entries can't be recomputed
		// from the record — instead every entry under each IncDel index
		// whose suffix is this object's id is found by scanning and
		// removed directly.
		for _, idx := range k.Indexes {
			if !idx.IncDel {
				continue
			}
			prefix := kind.IndexKeyPrefix(ts.kindID, idx.Name)
			var hits [][]byte
			if err := t.st.Iterate(shard, storage.BucketIndexes, prefix, func(key, val []byte) (bool, error) {
				if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
					return false, nil
				}
				if string(val) == string(idBytes[:]) {
					hits = append(hits, append([]byte(nil), key...))
				}
				return true, nil
			}); err != nil {
				return err
			}
			for _, key := range hits {
				if err := t.st.Delete(shard, storage.BucketIndexes, key); err != nil {
					return err
				}
			}
		}
		if err := t.st.Delete(shard, storage.BucketObjects, ts.key); err != nil {
			return err
		}
	}
	return nil
}

// Commit finalizes the transaction: the underlying storage.Txn commits
// (non-main shards first, main shard last), and only on success are
// this transaction's queued watch notifications delivered — an abort
// must never fire a watch (spec §4.7 invariant).
func (t *Txn) Commit() error {
	if err := t.st.Commit(); err != nil {
		return err
	}
	for _, n := range t.notifications {
		t.watches.Notify(n.shard, n.index, n.key)
	}
	return nil
}

// Abort discards all staged writes and queued notifications.
func (t *Txn) Abort() {
	t.st.Abort()
	t.notifications = nil
}
