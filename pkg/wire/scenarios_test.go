package wire

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/storage"
)

// These mirror the six concrete scenarios in spec §8 "Testable
// properties" one for one.

func TestScenarioRevisionMonotonicityUnderContention(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	sentinel := [12]byte{9, 9, 9}
	objID := id.New(0, sentinel).String()

	baseResp, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: objID, Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "base"}),
	}))
	require.NoError(t, err)
	var base putResp
	require.NoError(t, json.Unmarshal(baseResp, &base))
	require.Equal(t, int64(1), base.Rev)

	const threads = 8
	const perThread = 1000
	errs := make(chan error, threads)
	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perThread; j++ {
				body, merr := json.Marshal(map[string]any{"name": "base", "thread": n, "i": j})
				if merr != nil {
					errs <- merr
					return
				}
				payload, merr := json.Marshal(putReq{
					Id: objID, Kind: "Widget:1", Owner: "tester", Body: body,
				})
				if merr != nil {
					errs <- merr
					return
				}
				if _, derr := eng.Dispatch("put", payload); derr != nil {
					errs <- derr
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sentinelResp, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: objID, Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "sentinel"}),
	}))
	require.NoError(t, err)
	var final putResp
	require.NoError(t, json.Unmarshal(sentinelResp, &final))
	assert.Equal(t, base.Rev+threads*perThread+1, final.Rev)
}

func TestScenarioShardVisibility(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("putKind", mustJSON(t, kindWire{
		Id:    "Test:1",
		Owner: "tester",
		Indexes: []indexDefWire{
			{Name: "byFoo", Props: []indexPropWire{{Path: "foo"}}},
		},
	}))
	require.NoError(t, err)
	_, err = eng.MountShard(42, false, "")
	require.NoError(t, err)

	for foo := 1; foo <= 10; foo++ {
		sid := uint32(0)
		if foo%2 == 1 {
			sid = 42
		}
		local := [12]byte{}
		local[11] = byte(foo)
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: id.New(sid, local).String(), Kind: "Test:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"foo": foo}),
		}))
		require.NoError(t, err)
	}

	findFoos := func(payload map[string]any) []int {
		q := mustJSON(t, payload)
		resp, err := eng.Dispatch("find", mustJSON(t, findReq{Query: q}))
		require.NoError(t, err)
		var fr findResp
		require.NoError(t, json.Unmarshal(resp, &fr))
		foos := make([]int, len(fr.Docs))
		for i, raw := range fr.Docs {
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			foos[i] = int(body["foo"].(float64))
		}
		return foos
	}

	all := findFoos(map[string]any{"from": "Test:1"})
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, all)

	require.NoError(t, eng.UnmountShard(42))
	onlyMain := findFoos(map[string]any{"from": "Test:1"})
	assert.ElementsMatch(t, []int{2, 4, 6, 8, 10}, onlyMain)

	everything := findFoos(map[string]any{"from": "Test:1", "ignoreInactiveShards": false})
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, everything)
}

func TestScenarioWatchOnKindDelete(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	q := mustJSON(t, map[string]any{
		"from":  "Widget:1",
		"where": []map[string]any{{"prop": "name", "op": "<", "val": "zz"}},
	})

	fired := make(chan bool, 1)
	go func() {
		resp, err := eng.Dispatch("watch", mustJSON(t, watchReq{Shard: 0, Query: q, TimeoutMs: 5000}))
		if err != nil {
			fired <- false
			return
		}
		var wr watchResp
		_ = json.Unmarshal(resp, &wr)
		fired <- wr.Fired
	}()

	require.Eventually(t, func() bool {
		return eng.watches.Count(0, "byName") == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, eng.DelKind("Widget:1"))

	select {
	case got := <-fired:
		assert.True(t, got, "a watch on a dropped kind must fire exactly once")
	case <-time.After(2 * time.Second):
		t.Fatal("watch never fired after delKind")
	}

	_, err := eng.Dispatch("watch", mustJSON(t, watchReq{Shard: 0, Query: q, TimeoutMs: 10}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.KindNotRegistered, de.Code())
}

func TestScenarioAggregateCorrectness(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("putKind", mustJSON(t, kindWire{
		Id:    "Agg:1",
		Owner: "tester",
		Indexes: []indexDefWire{
			{Name: "byA", Props: []indexPropWire{{Path: "a"}}},
		},
	}))
	require.NoError(t, err)

	for i, a := range []int{10, 20, 30} {
		local := [12]byte{}
		local[11] = byte(i + 1)
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: id.New(0, local).String(), Kind: "Agg:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"a": a}),
		}))
		require.NoError(t, err)
	}

	q := mustJSON(t, map[string]any{
		"from":      "Agg:1",
		"aggregate": map[string]any{"sum": []string{"a"}, "avg": []string{"a"}, "cnt": []string{"a"}, "min": []string{"a"}, "max": []string{"a"}},
	})
	resp, err := eng.Dispatch("find", mustJSON(t, findReq{Shard: shardPtr(0), Query: q}))
	require.NoError(t, err)
	var fr findResp
	require.NoError(t, json.Unmarshal(resp, &fr))
	require.Len(t, fr.Groups, 1)
	g := fr.Groups[0]
	assert.Equal(t, int64(3), g.Count["a"])
	assert.Equal(t, float64(60), g.Sum["a"])
	assert.Equal(t, float64(20), g.Avg["a"])
	var min, max int64
	require.NoError(t, json.Unmarshal(g.Min["a"], &min))
	require.NoError(t, json.Unmarshal(g.Max["a"], &max))
	assert.Equal(t, int64(10), min)
	assert.Equal(t, int64(30), max)

	local := [12]byte{}
	local[11] = 9
	_, err = eng.Dispatch("put", mustJSON(t, putReq{
		Id: id.New(0, local).String(), Kind: "Agg:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"a": "x"}),
	}))
	require.NoError(t, err)

	_, err = eng.Dispatch("find", mustJSON(t, findReq{Shard: shardPtr(0), Query: q}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidAggregateType, de.Code())
}

func TestScenarioPaginatedSearch(t *testing.T) {
	eng := newTestEngine(t)
	req := kindWire{
		Id:    "Ordered:1",
		Owner: "tester",
		Indexes: []indexDefWire{
			{Name: "byX", Props: []indexPropWire{{Path: "x"}}},
		},
	}
	_, err := eng.Dispatch("putKind", mustJSON(t, req))
	require.NoError(t, err)

	for x := 0; x < 25; x++ {
		local := [12]byte{}
		local[10] = byte(x >> 8)
		local[11] = byte(x)
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: id.New(0, local).String(), Kind: "Ordered:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"x": x}),
		}))
		require.NoError(t, err)
	}

	search := func(page string) searchResp {
		q := mustJSON(t, map[string]any{"from": "Ordered:1", "orderBy": "x", "limit": 10, "page": page})
		resp, err := eng.Dispatch("search", mustJSON(t, searchReq{Shard: 0, Query: q}))
		require.NoError(t, err)
		var sr searchResp
		require.NoError(t, json.Unmarshal(resp, &sr))
		return sr
	}

	xsOf := func(sr searchResp) []int {
		xs := make([]int, len(sr.Docs))
		for i, raw := range sr.Docs {
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			xs[i] = int(body["x"].(float64))
		}
		return xs
	}

	page1 := search("")
	require.NotEmpty(t, page1.PageToken)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, xsOf(page1))

	page2 := search(page1.PageToken)
	require.NotEmpty(t, page2.PageToken)
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, xsOf(page2))

	page3 := search(page2.PageToken)
	assert.Equal(t, []int{20, 21, 22, 23, 24}, xsOf(page3))
	assert.Empty(t, page3.PageToken, "the final page carries no further cursor")
}

func TestScenarioIndexInconsistencySkip(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	var ids []string
	for i := 0; i < 3; i++ {
		local := [12]byte{}
		local[11] = byte(i + 1)
		objID := id.New(0, local).String()
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: objID, Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": "widget"}),
		}))
		require.NoError(t, err)
		ids = append(ids, objID)
	}

	// Corrupt the first id's primary record directly, leaving its index
	// entries (and the other two ids' records) untouched.
	corrupted, err := id.Parse(ids[0])
	require.NoError(t, err)
	raw := corrupted.Bytes()
	st, err := eng.storage.Begin(0)
	require.NoError(t, err)
	require.NoError(t, st.Delete(0, storage.BucketObjects, raw[:]))
	require.NoError(t, st.Commit())

	q := mustJSON(t, map[string]any{"from": "Widget:1"})
	resp, err := eng.Dispatch("find", mustJSON(t, findReq{Shard: shardPtr(0), Query: q}))
	require.NoError(t, err)
	var fr findResp
	require.NoError(t, json.Unmarshal(resp, &fr))
	assert.Len(t, fr.Docs, 2, "the corrupted row is skipped, not fatal")
	for _, gotID := range fr.Ids {
		assert.NotEqual(t, ids[0], gotID)
	}
}
