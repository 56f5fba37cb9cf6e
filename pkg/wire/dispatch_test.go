package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/config"
	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/id"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	eng := New(cfg)
	t.Cleanup(func() { eng.Close() })
	_, err := eng.MountShard(0, false, "")
	require.NoError(t, err)
	return eng
}

func shardPtr(id uint32) *uint32 { return &id }

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func putTestKind(t *testing.T, eng *Engine) {
	t.Helper()
	req := kindWire{
		Id:    "Widget:1",
		Owner: "tester",
		Indexes: []indexDefWire{
			{Name: "byName", Props: []indexPropWire{{Path: "name"}}},
		},
	}
	resp, err := eng.Dispatch("putKind", mustJSON(t, req))
	require.NoError(t, err)
	var out putKindResp
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.True(t, out.Created)
}

func TestDispatchUnknownOp(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("bogus", []byte(`{}`))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidQuery, de.Code())
}

func TestDispatchEmptyPayloadRejected(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("put", nil)
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidQuery, de.Code())
}

func TestDispatchPutGetRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	putBody := mustJSON(t, map[string]any{"name": "gizmo"})
	putReqBytes := mustJSON(t, putReq{Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester", Body: putBody})
	resp, err := eng.Dispatch("put", putReqBytes)
	require.NoError(t, err)
	var pr putResp
	require.NoError(t, json.Unmarshal(resp, &pr))
	assert.NotEmpty(t, pr.Id)
	assert.Equal(t, int64(1), pr.Rev)

	resp, err = eng.Dispatch("get", mustJSON(t, getReq{Id: pr.Id}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	require.True(t, gr.Found)
	assert.Equal(t, "Widget:1", gr.Header.Kind)

	var body map[string]any
	require.NoError(t, json.Unmarshal(gr.Body, &body))
	assert.Equal(t, "gizmo", body["name"])
}

func TestDispatchGetMissingNotFound(t *testing.T) {
	eng := newTestEngine(t)
	resp, err := eng.Dispatch("get", mustJSON(t, getReq{Id: "AAAAAAAAAAAAAAAAAAAAAA"}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	assert.False(t, gr.Found)
}

func TestDispatchPutRequiresKindAndId(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("put", mustJSON(t, putReq{Id: "AAAAAAAAAAAAAAAAAAAAAA"}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidQuery, de.Code())

	_, err = eng.Dispatch("put", mustJSON(t, putReq{Kind: "Widget:1"}))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidQuery, de.Code())
}

func TestDispatchMergeUpdatesRevision(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	resp, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "gizmo", "color": "red"}),
	}))
	require.NoError(t, err)
	var pr putResp
	require.NoError(t, json.Unmarshal(resp, &pr))

	resp, err = eng.Dispatch("merge", mustJSON(t, mergeReq{
		Id: pr.Id, Kind: "Widget:1", Owner: "tester",
		Patch: mustJSON(t, map[string]any{"color": nil, "size": "large"}),
	}))
	require.NoError(t, err)
	var mr mergeResp
	require.NoError(t, json.Unmarshal(resp, &mr))
	assert.Equal(t, int64(2), mr.Rev)

	resp, err = eng.Dispatch("get", mustJSON(t, getReq{Id: pr.Id}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	var body map[string]any
	require.NoError(t, json.Unmarshal(gr.Body, &body))
	assert.Equal(t, "gizmo", body["name"])
	assert.Equal(t, "large", body["size"])
	_, hasColor := body["color"]
	assert.False(t, hasColor)
}

func TestDispatchDelTombstones(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	resp, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "gizmo"}),
	}))
	require.NoError(t, err)
	var pr putResp
	require.NoError(t, json.Unmarshal(resp, &pr))

	_, err = eng.Dispatch("del", mustJSON(t, delReq{Id: pr.Id, Kind: "Widget:1", Owner: "tester"}))
	require.NoError(t, err)

	resp, err = eng.Dispatch("get", mustJSON(t, getReq{Id: pr.Id}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	assert.False(t, gr.Found)
}

func TestDispatchFindReturnsMatches(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	for i, name := range []string{"alpha", "beta", "gamma"} {
		local := [12]byte{}
		local[11] = byte(i + 1)
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: encodeTestID(local), Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": name}),
		}))
		require.NoError(t, err)
	}

	q := mustJSON(t, map[string]any{
		"from":  "Widget:1",
		"where": []map[string]any{{"prop": "name", "op": "=", "val": "beta"}},
	})
	resp, err := eng.Dispatch("find", mustJSON(t, findReq{Shard: shardPtr(0), Query: q}))
	require.NoError(t, err)
	var fr findResp
	require.NoError(t, json.Unmarshal(resp, &fr))
	require.Len(t, fr.Docs, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(fr.Docs[0], &body))
	assert.Equal(t, "beta", body["name"])
}

func TestDispatchFindUnknownKindFails(t *testing.T) {
	eng := newTestEngine(t)
	q := mustJSON(t, map[string]any{"from": "Nope:1"})
	_, err := eng.Dispatch("find", mustJSON(t, findReq{Shard: shardPtr(0), Query: q}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.KindNotRegistered, de.Code())
}

func TestDispatchFindFansOutAcrossMountedShards(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)
	_, err := eng.MountShard(42, false, "")
	require.NoError(t, err)

	for _, sid := range []uint32{0, 42} {
		local := [12]byte{}
		local[11] = byte(sid)
		_, err := eng.Dispatch("put", mustJSON(t, putReq{
			Id: id.New(sid, local).String(), Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": "widget"}),
		}))
		require.NoError(t, err)
	}

	q := mustJSON(t, map[string]any{"from": "Widget:1"})
	resp, err := eng.Dispatch("find", mustJSON(t, findReq{Query: q}))
	require.NoError(t, err)
	var fr findResp
	require.NoError(t, json.Unmarshal(resp, &fr))
	assert.Len(t, fr.Docs, 2, "a shard-less find must span every mounted shard")

	require.NoError(t, eng.UnmountShard(42))

	resp, err = eng.Dispatch("find", mustJSON(t, findReq{Query: q}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp, &fr))
	assert.Len(t, fr.Docs, 1, "an inactive shard is excluded by default")

	ignoreFalse := false
	qIncludeInactive := mustJSON(t, map[string]any{"from": "Widget:1", "ignoreInactiveShards": ignoreFalse})
	resp, err = eng.Dispatch("find", mustJSON(t, findReq{Query: qIncludeInactive}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp, &fr))
	assert.Len(t, fr.Docs, 2, "ignoreInactiveShards=false must still reach an unmounted-but-known shard")
}

func TestDispatchBatchRunsSequentially(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	ops := []batchOpWire{
		{Op: "put", Payload: mustJSON(t, putReq{
			Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": "one"}),
		})},
		{Op: "put", Payload: mustJSON(t, putReq{
			Id: "AAAAAAAAAAAAAAAAAAAAAB", Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": "two"}),
		})},
	}
	resp, err := eng.Dispatch("batch", mustJSON(t, batchReq{Ops: ops}))
	require.NoError(t, err)
	var out struct {
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.Len(t, out.Results, 2)
}

func TestDispatchBatchStopsOnFirstFailure(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	ops := []batchOpWire{
		{Op: "put", Payload: mustJSON(t, putReq{Kind: "Widget:1"})}, // missing id, fails validation
		{Op: "put", Payload: mustJSON(t, putReq{
			Id: "AAAAAAAAAAAAAAAAAAAAAC", Kind: "Widget:1", Owner: "tester",
			Body: mustJSON(t, map[string]any{"name": "three"}),
		})},
	}
	_, err := eng.Dispatch("batch", mustJSON(t, batchReq{Ops: ops}))
	require.Error(t, err)

	resp, err := eng.Dispatch("get", mustJSON(t, getReq{Id: "AAAAAAAAAAAAAAAAAAAAAC"}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	assert.False(t, gr.Found, "op after the failing one must not have run")
}

func TestDispatchPutKindRejectsMissingId(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("putKind", mustJSON(t, kindWire{Owner: "tester"}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.InvalidQuery, de.Code())
}

func TestDispatchDelKindRemovesObjects(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	_, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "gizmo"}),
	}))
	require.NoError(t, err)

	_, err = eng.Dispatch("delKind", mustJSON(t, delKindReq{Id: "Widget:1"}))
	require.NoError(t, err)

	resp, err := eng.Dispatch("get", mustJSON(t, getReq{Id: "AAAAAAAAAAAAAAAAAAAAAA"}))
	require.NoError(t, err)
	var gr getResp
	require.NoError(t, json.Unmarshal(resp, &gr))
	assert.False(t, gr.Found, "delKind must drop every object it owns")
}

func TestDispatchStatsReportsRegisteredKind(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	resp, err := eng.Dispatch("stats", nil)
	require.NoError(t, err)
	var st Stats
	require.NoError(t, json.Unmarshal(resp, &st))
	assert.Equal(t, 1, st.RegisteredKinds)
	assert.Contains(t, st.MountedShards, uint32(0))
}

func TestDispatchProfileRequiresAdmin(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("profile", mustJSON(t, profileReq{Caller: "someone-else", Enabled: false}))
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.AppProfileAdminRestriction, de.Code())
}

func TestDispatchProfileDisableThenGetProfileFails(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Dispatch("profile", mustJSON(t, profileReq{Caller: "admin", Enabled: false}))
	require.NoError(t, err)

	_, err = eng.Dispatch("getProfile", nil)
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dberr.AppProfileDisabled, de.Code())
}

func TestDispatchDumpLoadRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	putTestKind(t, eng)

	_, err := eng.Dispatch("put", mustJSON(t, putReq{
		Id: "AAAAAAAAAAAAAAAAAAAAAA", Kind: "Widget:1", Owner: "tester",
		Body: mustJSON(t, map[string]any{"name": "gizmo"}),
	}))
	require.NoError(t, err)

	resp, err := eng.Dispatch("dump", mustJSON(t, dumpReq{Shard: 0}))
	require.NoError(t, err)
	var dr dumpResp
	require.NoError(t, json.Unmarshal(resp, &dr))
	require.Len(t, dr.Records, 1)

	_, err = eng.Dispatch("load", mustJSON(t, loadReq{Shard: 0, Records: dr.Records}))
	require.NoError(t, err)
}

// encodeTestID renders a shard-0 id from a 12-byte local suffix.
func encodeTestID(local [12]byte) string {
	return id.New(0, local).String()
}
