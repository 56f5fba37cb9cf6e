package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/query"
	"github.com/shelfdb/shelfdb/pkg/storage"
)

func setupIndex(t *testing.T, vals []int64) (*storage.Engine, map[id.Id]doc.Value) {
	t.Helper()
	eng := storage.NewEngine(t.TempDir())
	_, err := eng.MountShard(id.MainShardID)
	require.NoError(t, err)

	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	docs := make(map[id.Id]doc.Value, len(vals))
	for i, v := range vals {
		oid := id.New(id.MainShardID, [12]byte{byte(i + 1)})
		prefix := kind.IndexKeyPrefix("Widget:1", "byOrder")
		idBytes := oid.Bytes()
		// Key on insertion order (not value) so the test exercises
		// search.go's own sort, not the index's.
		key := append(append(append([]byte{}, prefix...), byte(i)), idBytes[:]...)
		require.NoError(t, txn.Put(id.MainShardID, storage.BucketIndexes, key, idBytes[:]))

		o := doc.NewObject()
		o.Set("x", doc.Int(v))
		docs[oid] = doc.ObjectValue(o)
	}
	require.NoError(t, txn.Commit())
	return eng, docs
}

func TestRunSortsByOrderBy(t *testing.T) {
	eng, docs := setupIndex(t, []int64{30, 10, 20})
	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byOrder", Props: []kind.IndexProp{{Path: "x"}}}}}
	q := query.Query{From: "Widget:1", OrderBy: "x"}
	plan := query.Plan{Index: k.Indexes[0], Range: query.Range{
		Lower: kind.IndexKeyPrefix("Widget:1", "byOrder"),
		Upper: append(kind.IndexKeyPrefix("Widget:1", "byOrder"), 0xFF),
	}}
	cur, err := query.New(txn, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)

	load := func(oid id.Id) (doc.Value, bool, error) {
		d, ok := docs[oid]
		return d, ok, nil
	}

	result, err := Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, nil, CacheKey{}, map[string]kind.IndexProp{"x": {Path: "x"}}, cur, q, load)
	require.NoError(t, err)
	require.Len(t, result.Docs, 3)

	vals := make([]int64, 3)
	for i, d := range result.Docs {
		x, _ := d.Object().Get("x")
		vals[i] = x.Int()
	}
	assert.Equal(t, []int64{10, 20, 30}, vals)
}

func TestRunDescReversesOrder(t *testing.T) {
	eng, docs := setupIndex(t, []int64{1, 2, 3})
	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byOrder", Props: []kind.IndexProp{{Path: "x"}}}}}
	q := query.Query{From: "Widget:1", OrderBy: "x", Desc: true}
	plan := query.Plan{Index: k.Indexes[0], Range: query.Range{
		Lower: kind.IndexKeyPrefix("Widget:1", "byOrder"),
		Upper: append(kind.IndexKeyPrefix("Widget:1", "byOrder"), 0xFF),
	}}
	cur, err := query.New(txn, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)

	load := func(oid id.Id) (doc.Value, bool, error) {
		d, ok := docs[oid]
		return d, ok, nil
	}

	result, err := Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, nil, CacheKey{}, map[string]kind.IndexProp{"x": {Path: "x"}}, cur, q, load)
	require.NoError(t, err)
	vals := make([]int64, len(result.Docs))
	for i, d := range result.Docs {
		x, _ := d.Object().Get("x")
		vals[i] = x.Int()
	}
	assert.Equal(t, []int64{3, 2, 1}, vals)
}

func TestRunPaginates(t *testing.T) {
	eng, docs := setupIndex(t, []int64{0, 1, 2, 3, 4})
	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byOrder", Props: []kind.IndexProp{{Path: "x"}}}}}
	q := query.Query{From: "Widget:1", OrderBy: "x", Limit: 2}
	plan := query.Plan{Index: k.Indexes[0], Range: query.Range{
		Lower: kind.IndexKeyPrefix("Widget:1", "byOrder"),
		Upper: append(kind.IndexKeyPrefix("Widget:1", "byOrder"), 0xFF),
	}}
	cur, err := query.New(txn, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)

	load := func(oid id.Id) (doc.Value, bool, error) {
		d, ok := docs[oid]
		return d, ok, nil
	}

	result, err := Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, nil, CacheKey{}, map[string]kind.IndexProp{"x": {Path: "x"}}, cur, q, load)
	require.NoError(t, err)
	require.Len(t, result.Docs, 2)
	require.NotEmpty(t, result.PageToken)

	q.Page = result.PageToken
	txn2, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)
	cur2, err := query.New(txn2, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)
	result2, err := Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, nil, CacheKey{}, map[string]kind.IndexProp{"x": {Path: "x"}}, cur2, q, load)
	require.NoError(t, err)
	require.Len(t, result2.Docs, 2)

	firstVal, _ := result.Docs[0].Object().Get("x")
	secondPageVal, _ := result2.Docs[0].Object().Get("x")
	assert.NotEqual(t, firstVal.Int(), secondPageVal.Int())
}

func TestRunUsesCacheOnSecondCall(t *testing.T) {
	eng, docs := setupIndex(t, []int64{1, 2})
	txn, err := eng.Begin(id.MainShardID)
	require.NoError(t, err)

	k := &kind.Kind{ID: "Widget:1", Indexes: []kind.IndexDef{{Name: "byOrder", Props: []kind.IndexProp{{Path: "x"}}}}}
	q := query.Query{From: "Widget:1", OrderBy: "x"}
	plan := query.Plan{Index: k.Indexes[0], Range: query.Range{
		Lower: kind.IndexKeyPrefix("Widget:1", "byOrder"),
		Upper: append(kind.IndexKeyPrefix("Widget:1", "byOrder"), 0xFF),
	}}
	cur, err := query.New(txn, id.MainShardID, "Widget:1", plan, false, "")
	require.NoError(t, err)
	load := func(oid id.Id) (doc.Value, bool, error) {
		d, ok := docs[oid]
		return d, ok, nil
	}

	cache := NewCache(8)
	key := CacheKey{KindID: "Widget:1", CanonicalJSON: CanonicalJSON(q), KindRevision: 1}
	_, err = Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, cache, key, map[string]kind.IndexProp{"x": {Path: "x"}}, cur, q, load)
	require.NoError(t, err)

	cached, ok := cache.Get(key)
	require.True(t, ok)
	assert.Len(t, cached, 2)

	// cur is exhausted now, so a second run can only get its rows from the cache.
	result, err := Run(context.Background(), Config{MaxResults: 100, WorkerPool: 2}, cache, key, map[string]kind.IndexProp{"x": {Path: "x"}}, cur, q, load)
	require.NoError(t, err)
	assert.Len(t, result.Docs, 2)
}
