package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/storage"
)

func putIndexEntry(t *testing.T, txn *storage.Txn, shard uint32, a int64, objID id.Id) {
	t.Helper()
	prefix := kind.IndexKeyPrefix("Widget:1", "byA")
	seg := kind.EncodeBoundKey(doc.Int(a), kind.CollationPrimary)
	idBytes := objID.Bytes()
	key := append(append(append([]byte{}, prefix...), seg...), idBytes[:]...)
	require.NoError(t, txn.Put(shard, storage.BucketIndexes, key, idBytes[:]))
}

func TestCursorWalksRangeInOrder(t *testing.T) {
	eng := storage.NewEngine(t.TempDir())
	_, err := eng.MountShard(id.MainShardID)
	require.NoError(t, err)

	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	ids := make([]id.Id, 3)
	for i, v := range []int64{1, 2, 3} {
		ids[i] = id.New(id.MainShardID, [12]byte{byte(i + 1)})
		putIndexEntry(t, txn, id.MainShardID, v, ids[i])
	}
	require.NoError(t, txn.Commit())

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}}}}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpGreaterEqual, Val: doc.Int(1)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)

	txn2, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	cur, err := New(txn2, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)

	var seen []id.Id
	for {
		oid, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, oid)
	}
	assert.Equal(t, ids, seen)
	assert.Equal(t, StateExhausted, cur.State())
}

func TestCursorResumesFromPageToken(t *testing.T) {
	eng := storage.NewEngine(t.TempDir())
	_, err := eng.MountShard(id.MainShardID)
	require.NoError(t, err)

	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	ids := make([]id.Id, 3)
	for i, v := range []int64{1, 2, 3} {
		ids[i] = id.New(id.MainShardID, [12]byte{byte(i + 1)})
		putIndexEntry(t, txn, id.MainShardID, v, ids[i])
	}
	require.NoError(t, txn.Commit())

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}}}}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpGreaterEqual, Val: doc.Int(1)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)

	txn2, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	cur, err := New(txn2, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)
	first, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[0], first)
	token := cur.PageToken()
	require.NotEmpty(t, token)

	txn3, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	cur2, err := New(txn3, id.MainShardID, "Widget:1", plan, false, token)
	require.NoError(t, err)
	second, ok, err := cur2.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[1], second)
}

func TestCursorCloseRejectsFurtherNext(t *testing.T) {
	eng := storage.NewEngine(t.TempDir())
	_, err := eng.MountShard(id.MainShardID)
	require.NoError(t, err)
	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}}}}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpGreaterEqual, Val: doc.Int(1)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)

	cur, err := New(txn, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)
	cur.Close()
	_, _, err = cur.Next()
	assert.Error(t, err)
}
