// Package wire implements shelfdb's thin external-interface layer: a
// JSON operation dispatcher covering the §6 operation set (put, get,
// del, merge, find, search, watch, batch, putKind, delKind,
// putPermissions, putQuotas, reserveIds, compact, stats, purge,
// purgeStatus, dump, load, profile, getProfile), deliberately minimal —
// field-presence validation only, no JSON-schema engine, matching the
// spec's framing of the RPC/validation façade as an external
// collaborator the core doesn't own. Engine composes every core
// package (pkg/storage, pkg/kind, pkg/txn, pkg/query, pkg/search,
// pkg/watch, pkg/shard, pkg/profile) into the single object Dispatch
// operates against.
package wire

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shelfdb/shelfdb/pkg/config"
	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/profile"
	"github.com/shelfdb/shelfdb/pkg/query"
	"github.com/shelfdb/shelfdb/pkg/search"
	"github.com/shelfdb/shelfdb/pkg/shard"
	"github.com/shelfdb/shelfdb/pkg/storage"
	"github.com/shelfdb/shelfdb/pkg/txn"
	"github.com/shelfdb/shelfdb/pkg/watch"
)

// observeResult records op's outcome and duration against the profile
// package's Prometheus vectors (spec §4.10), returning err unchanged so
// callers can report-and-return in one expression.
func observeResult(op string, start time.Time, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	profile.OperationsTotal.WithLabelValues(op, outcome).Inc()
	profile.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return err
}

// Engine owns every mounted shard's storage, the shared kind registry,
// quota ledger, watch registry, and search cache, plus the per-shard
// sequences that mint revisions and reserved ids. It is the single
// object every wire operation is dispatched against.
type Engine struct {
	cfg config.Config

	storage  *storage.Engine
	shards   *shard.Pool
	registry *kind.Registry
	ledger   *txn.Ledger
	watches  *watch.Registry
	cache    *search.Cache

	mu      sync.Mutex
	revSeqs map[uint32]*storage.Sequence
	idSeqs  map[uint32]*storage.Sequence

	purgeMu sync.Mutex
	purges  map[string]PurgeStatus

	profileMu      sync.Mutex
	profileEnabled bool
}

// New constructs an Engine rooted at cfg.DataDir. Shards are mounted
// lazily via MountShard; a fresh Engine has none mounted.
func New(cfg config.Config) *Engine {
	eng := storage.NewEngine(cfg.DataDir)
	return &Engine{
		cfg:      cfg,
		storage:  eng,
		shards:   shard.NewPool(eng),
		registry: kind.NewRegistry(),
		ledger:   txn.NewLedger(cfg.Quota.DefaultBytes),
		watches:  watch.NewRegistry(),
		cache:    search.NewCache(maxInt(cfg.Search.CacheSize, 1)),
		revSeqs:  make(map[uint32]*storage.Sequence),
		idSeqs:   make(map[uint32]*storage.Sequence),
		purges:   make(map[string]PurgeStatus),

		profileEnabled: true,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MountShard mounts shardID (spec §4.9 "mounted on device-attach") and
// opens its revision/id sequences. Mounting an already-mounted shard is
// a no-op.
func (e *Engine) MountShard(shardID uint32, transient bool, parentDeviceID string) (*shard.Info, error) {
	info, err := e.shards.Mount(shardID, transient, parentDeviceID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.revSeqs[shardID]; !ok {
		seq, err := storage.OpenSequence(info.Storage(), "rev")
		if err != nil {
			return nil, fmt.Errorf("open revision sequence for shard %d: %w", shardID, err)
		}
		e.revSeqs[shardID] = seq
	}
	if _, ok := e.idSeqs[shardID]; !ok {
		seq, err := storage.OpenSequence(info.Storage(), "ids")
		if err != nil {
			return nil, fmt.Errorf("open id sequence for shard %d: %w", shardID, err)
		}
		e.idSeqs[shardID] = seq
	}
	return info, nil
}

// UnmountShard unmounts shardID (spec §4.9 "unmounted on device-detach")
// and wipes the search cache wholesale, since any cached result set may
// reference ids this shard used to contribute.
func (e *Engine) UnmountShard(shardID uint32) error {
	if err := e.shards.Unmount(shardID); err != nil {
		return err
	}
	e.cache.WipeAll()
	return nil
}

// Close releases every mounted shard's underlying storage file, used by
// the CLI on shutdown.
func (e *Engine) Close() error {
	return e.storage.Close()
}

func (e *Engine) beginTxn(mainShard uint32, extra ...uint32) (*txn.Txn, error) {
	st, err := e.storage.Begin(mainShard, extra...)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	seq, ok := e.revSeqs[mainShard]
	e.mu.Unlock()
	if !ok {
		return nil, dberr.New(dberr.ShardInactive, "shard %d is not mounted", mainShard)
	}
	return txn.New(st, e.registry, e.ledger, e.watches, seq), nil
}

func (e *Engine) beginTxnAllShards() (*txn.Txn, error) {
	ids := e.storage.MountedShards()
	if len(ids) == 0 {
		return nil, dberr.New(dberr.ShardInactive, "no shard is mounted")
	}
	return e.beginTxn(ids[0], ids[1:]...)
}

// Put stages and commits a document write (spec §6 "put").
func (e *Engine) Put(objID id.Id, kindID, owner string, body doc.Value) (int64, error) {
	start := time.Now()
	t, err := e.beginTxn(objID.Shard)
	if err != nil {
		return 0, observeResult("put", start, err)
	}
	rev, err := t.Put(objID, kindID, owner, body)
	if err != nil {
		t.Abort()
		return 0, observeResult("put", start, err)
	}
	if err := t.Commit(); err != nil {
		return 0, observeResult("put", start, err)
	}
	e.cache.DropKind(kindID)
	return rev, observeResult("put", start, nil)
}

// Get reads objID's current document, if present (spec §6 "get").
func (e *Engine) Get(objID id.Id) (doc.Header, doc.Value, bool, error) {
	start := time.Now()
	t, err := e.beginTxn(objID.Shard)
	if err != nil {
		return doc.Header{}, doc.Value{}, false, observeResult("get", start, err)
	}
	defer t.Abort()
	h, body, found, err := t.Get(objID)
	return h, body, found, observeResult("get", start, err)
}

// Del tombstones objID (spec §6 "del").
func (e *Engine) Del(objID id.Id, kindID, owner string) error {
	start := time.Now()
	t, err := e.beginTxn(objID.Shard)
	if err != nil {
		return observeResult("del", start, err)
	}
	if err := t.Del(objID, kindID, owner); err != nil {
		t.Abort()
		return observeResult("del", start, err)
	}
	if err := t.Commit(); err != nil {
		return observeResult("del", start, err)
	}
	e.cache.DropKind(kindID)
	return observeResult("del", start, nil)
}

// Merge reads objID's current body, shallow-merges patch's top-level
// properties over it (a property set to null is removed), and writes
// the result as a new revision (spec §6 "merge").
func (e *Engine) Merge(objID id.Id, kindID, owner string, patch doc.Value) (int64, error) {
	start := time.Now()
	t, err := e.beginTxn(objID.Shard)
	if err != nil {
		return 0, observeResult("merge", start, err)
	}
	_, body, found, err := t.Get(objID)
	if err != nil {
		t.Abort()
		return 0, observeResult("merge", start, err)
	}
	if !found {
		t.Abort()
		return 0, observeResult("merge", start, dberr.New(dberr.ObjectNotFound, "object %s not found", objID))
	}
	merged := mergeBodies(body, patch)
	rev, err := t.Put(objID, kindID, owner, merged)
	if err != nil {
		t.Abort()
		return 0, observeResult("merge", start, err)
	}
	if err := t.Commit(); err != nil {
		return 0, observeResult("merge", start, err)
	}
	e.cache.DropKind(kindID)
	return rev, observeResult("merge", start, nil)
}

// mergeBodies overlays patch's top-level properties onto base, removing
// a property from the result when patch sets it to null (spec §6
// "merge... produces a new revision" — a shallow, JSON-merge-patch-style
// overlay, not a deep recursive merge).
func mergeBodies(base, patch doc.Value) doc.Value {
	if patch.Kind() != doc.KindObject {
		return patch
	}
	if base.Kind() != doc.KindObject {
		base = doc.ObjectValue(doc.NewObject())
	}
	out := doc.NewObject()
	for _, k := range base.Object().Keys() {
		v, _ := base.Object().Get(k)
		out.Set(k, v)
	}
	for _, k := range patch.Object().Keys() {
		v, _ := patch.Object().Get(k)
		if v.IsNull() {
			out.Delete(k)
			continue
		}
		out.Set(k, v)
	}
	return doc.ObjectValue(out)
}

// Find runs q against kindID on shardID, returning every matching
// document id in index order without the search cursor's materialize/
// sort/cache pipeline (spec §6 "find").
func (e *Engine) Find(shardID uint32, q query.Query) ([]id.Id, []doc.Value, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	k, ok := e.registry.GetKind(q.From)
	if !ok {
		return nil, nil, dberr.New(dberr.KindNotRegistered, "kind %q is not registered", q.From)
	}
	plan, err := query.SelectIndex(k, q)
	if err != nil {
		return nil, nil, err
	}

	t, err := e.beginTxn(shardID)
	if err != nil {
		return nil, nil, err
	}
	defer t.Abort()

	cur, err := query.New(t.Storage(), shardID, q.From, plan, q.Desc, q.Page)
	if err != nil {
		return nil, nil, err
	}

	var ids []id.Id
	var docs []doc.Value
	limit := q.Limit
	for limit == 0 || len(ids) < limit {
		objID, ok, err := cur.Next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		_, body, found, err := t.Get(objID)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			profile.IndexInconsistencies.WithLabelValues(q.From).Inc()
			continue // spec §7: index inconsistencies are logged and skipped, the cursor does not fail
		}
		allClauses := append(append([]query.Clause{}, plan.RemainingWhere...), q.Filter...)
		ok, err = query.Matches(body, allClauses)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		ids = append(ids, objID)
		docs = append(docs, body)
	}
	return ids, docs, nil
}

// FindAll runs q against every shard the engine knows about and merges
// the results in ascending shard-id order (spec §8 "shard visibility").
// By default only mounted shards are considered; when q.IgnoreInactiveShards
// is false, a shard the pool knows but has unmounted is remounted
// transient-read, queried, and unmounted again so its data still counts.
func (e *Engine) FindAll(q query.Query) ([]id.Id, []doc.Value, error) {
	shardIDs := e.storage.MountedShards()
	if !q.IgnoreInactiveShards {
		active := make(map[uint32]bool, len(shardIDs))
		for _, sid := range shardIDs {
			active[sid] = true
		}
		for _, sid := range e.shards.Known() {
			if !active[sid] {
				shardIDs = append(shardIDs, sid)
			}
		}
	}
	sort.Slice(shardIDs, func(i, j int) bool { return shardIDs[i] < shardIDs[j] })

	var allIDs []id.Id
	var allDocs []doc.Value
	for _, shardID := range shardIDs {
		info, known := e.shards.Get(shardID)
		remounted := false
		if known && !info.Active {
			if _, err := e.MountShard(shardID, true, info.ParentDeviceID); err != nil {
				return nil, nil, err
			}
			remounted = true
		}
		ids, docs, err := e.Find(shardID, q)
		if remounted {
			if uerr := e.UnmountShard(shardID); uerr != nil && err == nil {
				err = uerr
			}
		}
		if err != nil {
			return nil, nil, err
		}
		allIDs = append(allIDs, ids...)
		allDocs = append(allDocs, docs...)
		if q.Limit > 0 && len(allIDs) >= q.Limit {
			allIDs = allIDs[:q.Limit]
			allDocs = allDocs[:q.Limit]
			break
		}
	}
	return allIDs, allDocs, nil
}

// Search runs q through the search cursor's materialize/sort/dedup/
// cache pipeline (spec §6 "search", §4.6).
func (e *Engine) Search(ctx context.Context, shardID uint32, q query.Query) (search.Result, error) {
	if err := q.Validate(); err != nil {
		return search.Result{}, err
	}
	k, ok := e.registry.GetKind(q.From)
	if !ok {
		return search.Result{}, dberr.New(dberr.KindNotRegistered, "kind %q is not registered", q.From)
	}
	plan, err := query.SelectIndex(k, q)
	if err != nil {
		return search.Result{}, err
	}

	t, err := e.beginTxn(shardID)
	if err != nil {
		return search.Result{}, err
	}
	defer t.Abort()

	cur, err := query.New(t.Storage(), shardID, q.From, plan, q.Desc, q.Page)
	if err != nil {
		return search.Result{}, err
	}

	idxProps := make(map[string]kind.IndexProp, len(plan.Index.Props))
	for _, p := range plan.Index.Props {
		idxProps[p.Path] = p
	}

	cacheKey := search.CacheKey{KindID: q.From, CanonicalJSON: search.CanonicalJSON(q), KindRevision: k.ContentHash}
	load := func(objID id.Id) (doc.Value, bool, error) {
		_, body, found, err := t.Get(objID)
		if err != nil {
			return doc.Value{}, false, err
		}
		if !found {
			return doc.Value{}, false, nil
		}
		allClauses := append(append([]query.Clause{}, plan.RemainingWhere...), q.Filter...)
		ok, err := query.Matches(body, allClauses)
		if err != nil {
			return doc.Value{}, false, err
		}
		if !ok {
			return doc.Value{}, false, nil
		}
		return body, true, nil
	}

	cfg := search.Config{MaxResults: e.cfg.Search.MaxResults, WorkerPool: e.cfg.Search.WorkerPool}
	return search.Run(ctx, cfg, e.cache, cacheKey, idxProps, cur, q, load)
}

// Aggregate evaluates q's aggregate spec over every document q's where/
// filter clauses match, ignoring orderBy/limit/page (spec §4.5
// "Aggregate" folds the whole matching set, not a page of it).
func (e *Engine) Aggregate(shardID uint32, q query.Query) ([]*query.GroupResult, error) {
	if q.Aggregate == nil {
		return nil, dberr.New(dberr.InvalidQuery, "aggregate requires a query.Aggregate spec")
	}
	plain := q
	plain.Limit = 0
	plain.Page = ""
	_, docs, err := e.Find(shardID, plain)
	if err != nil {
		return nil, err
	}
	results, err := query.Evaluate(docs, *q.Aggregate)
	if err != nil {
		return nil, err
	}
	query.SortGroups(results)
	return results, nil
}

// PutKind registers or updates a kind, persisting it to every mounted
// shard and running a synchronous reindex pass over affected indexes
// (spec §6 "putKind", §3 "put-kind... triggers full reindex of affected
// objects").
func (e *Engine) PutKind(k *kind.Kind) (kind.PutKindResult, error) {
	t, err := e.beginTxnAllShards()
	if err != nil {
		return kind.PutKindResult{}, err
	}
	res, err := t.PutKind(k)
	if err != nil {
		t.Abort()
		return res, err
	}
	if err := t.Commit(); err != nil {
		return res, err
	}
	if res.ContentChanged && (len(res.AddedIndexes) > 0 || len(res.DroppedIndexes) > 0) {
		if err := e.reindexKind(k, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// reindexKind walks every mounted shard's object store for kindID,
// adding entries for newly-added indexes and removing entries left
// behind by dropped ones.
func (e *Engine) reindexKind(k *kind.Kind, res kind.PutKindResult) error {
	added := make([]kind.IndexDef, 0, len(res.AddedIndexes))
	for _, name := range res.AddedIndexes {
		if idx, ok := k.IndexByName(name); ok {
			added = append(added, idx)
		}
	}

	for _, shardID := range e.storage.MountedShards() {
		t, err := e.beginTxn(shardID)
		if err != nil {
			return err
		}
		if err := t.Reindex(k, added, res.DroppedIndexes); err != nil {
			t.Abort()
			return err
		}
		if err := t.Commit(); err != nil {
			return err
		}
	}
	e.cache.DropKind(k.ID)
	return nil
}

// DelKind drops kindID and every document it owns across all mounted
// shards, force-firing any watch armed against one of its indexes
// exactly once (spec §6 "delKind", §8 scenario 3).
func (e *Engine) DelKind(kindID string) error {
	k, ok := e.registry.GetKind(kindID)
	if !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q is not registered", kindID)
	}
	indexNames := make([]string, len(k.Indexes))
	for i, idx := range k.Indexes {
		indexNames[i] = idx.Name
	}

	for _, shardID := range e.storage.MountedShards() {
		t, err := e.beginTxn(shardID)
		if err != nil {
			return err
		}
		if err := t.DropKindObjects(kindID); err != nil {
			t.Abort()
			return err
		}
		if err := t.Commit(); err != nil {
			return err
		}
		e.watches.NotifyKindDropped(shardID, indexNames)
	}

	if err := e.registry.DelKind(kindID); err != nil {
		return err
	}
	e.cache.DropKind(kindID)
	return nil
}

// PutPermissions replaces kindID's permission matrix (spec §6
// "putPermissions").
func (e *Engine) PutPermissions(kindID string, perms kind.Permissions) error {
	k, ok := e.registry.GetKind(kindID)
	if !ok {
		return dberr.New(dberr.KindNotRegistered, "kind %q is not registered", kindID)
	}
	updated := *k
	updated.Permissions = perms
	_, err := e.PutKind(&updated)
	return err
}

// PutQuotas installs owner's per-owner byte quota (spec §6 "putQuotas").
func (e *Engine) PutQuotas(owner string, bytes int64) {
	e.ledger.SetLimit(owner, bytes)
}

// ReserveIds bulk-allocates count contiguous local ids on shardID (spec
// §6 "reserveIds"), so a bulk loader can mint ids before the records
// they describe exist.
func (e *Engine) ReserveIds(shardID uint32, count int) ([]id.Id, error) {
	e.mu.Lock()
	seq, ok := e.idSeqs[shardID]
	e.mu.Unlock()
	if !ok {
		return nil, dberr.New(dberr.ShardInactive, "shard %d is not mounted", shardID)
	}
	return id.Reserve(shardID, seq, count)
}

// Compact runs best-effort reclamation on every mounted shard (spec §6
// "compact").
func (e *Engine) Compact() error {
	for _, shardID := range e.storage.MountedShards() {
		info, ok := e.shards.Get(shardID)
		if !ok {
			continue
		}
		if err := info.Storage().Compact(); err != nil {
			return fmt.Errorf("compact shard %d: %w", shardID, err)
		}
	}
	return nil
}

// Stats reports coarse per-shard counts (spec §6 "stats").
type Stats struct {
	MountedShards []uint32 `json:"mountedShards"`
	RegisteredKinds int    `json:"registeredKinds"`
}

// Stats summarizes the engine's current mounted-shard and kind-registry
// state.
func (e *Engine) Stats() Stats {
	return Stats{
		MountedShards:   e.storage.MountedShards(),
		RegisteredKinds: e.registry.Count(),
	}
}

// adminOwner is the one caller identity permitted to toggle profiling
// (spec §6 "profile"; AppProfileAdminRestriction gates every other caller).
const adminOwner = "admin"

// SetProfileEnabled toggles whether GetProfile reports data, restricted to
// adminOwner (spec §6 "profile").
func (e *Engine) SetProfileEnabled(caller string, enabled bool) error {
	if caller != adminOwner {
		return dberr.New(dberr.AppProfileAdminRestriction, "caller %q may not change profiling state", caller)
	}
	e.profileMu.Lock()
	defer e.profileMu.Unlock()
	e.profileEnabled = enabled
	return nil
}

// GetProfile reports the engine's current stats snapshot, failing with
// AppProfileDisabled if profiling was turned off via SetProfileEnabled
// (spec §6 "getProfile").
func (e *Engine) GetProfile() (Stats, error) {
	e.profileMu.Lock()
	enabled := e.profileEnabled
	e.profileMu.Unlock()
	if !enabled {
		return Stats{}, dberr.New(dberr.AppProfileDisabled, "profiling is disabled")
	}
	return e.Stats(), nil
}

// Watch arms a single-shot watch over q's index range and blocks until a
// later commit writes a key within it (beyond whatever this query
// already returned), timeout elapses, or ctx is cancelled (spec §6
// "watch", §4.7). The dispatcher being synchronous, a watch's lifetime
// is exactly the duration of one Dispatch call.
func (e *Engine) Watch(ctx context.Context, shardID uint32, q query.Query, timeout time.Duration) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}
	k, ok := e.registry.GetKind(q.From)
	if !ok {
		return false, dberr.New(dberr.KindNotRegistered, "kind %q is not registered", q.From)
	}
	plan, err := query.SelectIndex(k, q)
	if err != nil {
		return false, err
	}

	t, err := e.beginTxn(shardID)
	if err != nil {
		return false, err
	}
	cur, err := query.New(t.Storage(), shardID, q.From, plan, q.Desc, q.Page)
	if err != nil {
		t.Abort()
		return false, err
	}
	for {
		_, ok, err := cur.Next()
		if err != nil {
			t.Abort()
			return false, err
		}
		if !ok {
			break
		}
	}
	token := cur.PageToken()
	t.Abort()

	var limitKey []byte
	if token != "" {
		limitKey, err = base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return false, dberr.New(dberr.InvalidQuery, "invalid cursor position")
		}
	}

	fired := make(chan struct{})
	var once sync.Once
	w := watch.New([]watch.KeyRange{{Low: plan.Range.Lower, High: plan.Range.Upper}}, q.Desc, func() {
		once.Do(func() { close(fired) })
	})
	if err := w.Activate(limitKey); err != nil {
		return false, fmt.Errorf("activate watch: %w", err)
	}
	e.watches.Add(shardID, plan.Index.Name, w)
	profile.WatchesActive.Inc()
	defer profile.WatchesActive.Dec()

	select {
	case <-fired:
		return true, nil
	case <-time.After(timeout):
		w.Abandon()
		return false, nil
	case <-ctx.Done():
		w.Abandon()
		return false, ctx.Err()
	}
}

// PurgeStatus reports a purge job's progress (spec §6 "purgeStatus").
type PurgeStatus struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Purge permanently removes every tombstoned object record on shardID
// older than the given revision, returning a job id pollable via
// PurgeStatus (spec §6 "purge"). Run synchronously since shelfdb has no
// background job scheduler of its own; the job id exists so a caller's
// polling protocol doesn't have to change if that becomes async later.
func (e *Engine) Purge(shardID uint32, olderThanRev int64) (string, error) {
	jobID := fmt.Sprintf("purge-%d-%d", shardID, olderThanRev)

	t, err := e.beginTxn(shardID)
	if err != nil {
		e.setPurgeStatus(jobID, PurgeStatus{Done: true, Error: err.Error()})
		return jobID, err
	}
	if err := t.PurgeTombstones(olderThanRev); err != nil {
		t.Abort()
		e.setPurgeStatus(jobID, PurgeStatus{Done: true, Error: err.Error()})
		return jobID, err
	}
	if err := t.Commit(); err != nil {
		e.setPurgeStatus(jobID, PurgeStatus{Done: true, Error: err.Error()})
		return jobID, err
	}
	e.setPurgeStatus(jobID, PurgeStatus{Done: true})
	return jobID, nil
}

func (e *Engine) setPurgeStatus(jobID string, status PurgeStatus) {
	e.purgeMu.Lock()
	defer e.purgeMu.Unlock()
	e.purges[jobID] = status
}

// PurgeStatusOf reports jobID's recorded outcome.
func (e *Engine) PurgeStatusOf(jobID string) (PurgeStatus, bool) {
	e.purgeMu.Lock()
	defer e.purgeMu.Unlock()
	st, ok := e.purges[jobID]
	return st, ok
}

// Dump streams every object on shardID as a sequence of (header, body)
// records, in primary-store key order, skipping tombstones unless
// includeDeleted is set (spec §6 "dump <path> [incDel]").
func (e *Engine) Dump(shardID uint32, includeDeleted bool, fn func(doc.Header, doc.Value) error) error {
	t, err := e.beginTxn(shardID)
	if err != nil {
		return err
	}
	defer t.Abort()
	return t.Walk(func(h doc.Header, body doc.Value) error {
		if h.Deleted && !includeDeleted {
			return nil
		}
		return fn(h, body)
	})
}

// Load replays a sequence of (header, body) records produced by Dump
// back into shardID, preserving their original revisions rather than
// minting new ones (spec §6 "load").
func (e *Engine) Load(shardID uint32, records []doc.Record) error {
	t, err := e.beginTxn(shardID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		objID, err := id.Parse(rec.Header.ID)
		if err != nil {
			t.Abort()
			return fmt.Errorf("load: record %q: %w", rec.Header.ID, err)
		}
		if err := t.PutRecord(objID, rec.Header, rec.Body); err != nil {
			t.Abort()
			return err
		}
	}
	return t.Commit()
}
