package search

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/id"
	"github.com/shelfdb/shelfdb/pkg/kind"
	"github.com/shelfdb/shelfdb/pkg/query"
)

// Loader resolves an object id to its current document body, mirroring
// pkg/txn.Txn.Get without the header (the search pipeline only sorts
// and filters on body properties).
type Loader func(objID id.Id) (doc.Value, bool, error)

// Config bounds one search run (config.SearchConfig, threaded through
// rather than imported directly to avoid pkg/search depending on
// pkg/config for three integers).
type Config struct {
	MaxResults int
	WorkerPool int
}

// Result is one page of a materialized search.
type Result struct {
	Ids       []id.Id
	Docs      []doc.Value
	PageToken string
	Truncated bool // candidate set hit MaxResults before the cursor was exhausted
}

// wireQuery is the subset of query.Query that participates in the
// cache key, with page/limit stripped (spec §4.6 "query-json-without-
// page-and-limit").
type wireQuery struct {
	From     string          `json:"from"`
	Where    []query.Clause  `json:"where,omitempty"`
	Filter   []query.Clause  `json:"filter,omitempty"`
	OrderBy  string          `json:"orderBy,omitempty"`
	Distinct string          `json:"distinct,omitempty"`
	Desc     bool            `json:"desc,omitempty"`
}

// CanonicalJSON renders q (minus page/limit) for use as a cache key.
func CanonicalJSON(q query.Query) string {
	b, err := json.Marshal(wireQuery{
		From: q.From, Where: q.Where, Filter: q.Filter,
		OrderBy: q.OrderBy, Distinct: q.Distinct, Desc: q.Desc,
	})
	if err != nil {
		return q.From // never expected; degrade to a coarse but safe key
	}
	return string(b)
}

// Run materializes candidates from cur (bounded by cfg.MaxResults),
// loads their documents in parallel through a worker pool of size
// cfg.WorkerPool, sorts by q.OrderBy's collated key, deduplicates under
// q.Distinct, reverses for q.Desc, then applies q.Page/q.Limit (spec
// §4.6). cache, if non-nil, is consulted for the candidate id list
// before re-running the cursor, and populated on a miss.
func Run(ctx context.Context, cfg Config, cache *Cache, cacheKey CacheKey, idxProps map[string]kind.IndexProp, cur *query.Cursor, q query.Query, load Loader) (Result, error) {
	ids, truncated, err := candidateIds(cache, cacheKey, cfg, cur)
	if err != nil {
		return Result{}, err
	}

	docs, err := loadAll(ctx, cfg.WorkerPool, ids, load)
	if err != nil {
		return Result{}, err
	}

	ids, docs = sortAndDedup(ids, docs, q, idxProps)
	if q.Desc {
		reverseIds(ids)
		reverseDocs(docs)
	}

	return paginate(ids, docs, q, truncated)
}

func candidateIds(cache *Cache, key CacheKey, cfg Config, cur *query.Cursor) ([]id.Id, bool, error) {
	if cache != nil {
		if ids, ok := cache.Get(key); ok {
			return ids, false, nil
		}
	}

	var ids []id.Id
	truncated := false
	for {
		if len(ids) >= cfg.MaxResults {
			truncated = true
			break
		}
		oid, ok, err := cur.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
		ids = append(ids, oid)
	}

	if cache != nil && !truncated {
		cache.Put(key, ids)
	}
	return ids, truncated, nil
}

// loadAll fetches every id's document concurrently, bounded by a
// semaphore of size workerPool (default 4, spec §5 "small bounded
// worker pool... for parallel document loads"). A load failure aborts
// the whole batch — a partially-loaded search result would silently
// under-report matches.
func loadAll(ctx context.Context, workerPool int, ids []id.Id, load Loader) ([]doc.Value, error) {
	if workerPool <= 0 {
		workerPool = 4
	}
	docs := make([]doc.Value, len(ids))
	sem := semaphore.NewWeighted(int64(workerPool))
	g, gctx := errgroup.WithContext(ctx)

	for i, oid := range ids {
		i, oid := i, oid
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			body, found, err := load(oid)
			if err != nil {
				return err
			}
			if !found {
				return dberr.New(dberr.InconsistentIndex, "index referenced object %s has no primary record", oid)
			}
			docs[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func sortAndDedup(ids []id.Id, docs []doc.Value, q query.Query, idxProps map[string]kind.IndexProp) ([]id.Id, []doc.Value) {
	type row = struct {
		id  id.Id
		doc doc.Value
		key []byte
	}
	rows := make([]row, len(ids))
	for i := range ids {
		var key []byte
		if q.OrderBy != "" {
			key = sortKeyFor(docs[i], q.OrderBy, idxProps)
		}
		rows[i] = row{id: ids[i], doc: docs[i], key: key}
	}

	if q.OrderBy != "" {
		stableSortByKey(rows)
	}

	if q.Distinct != "" {
		seen := make(map[string]bool, len(rows))
		out := rows[:0]
		for _, r := range rows {
			dk := string(sortKeyFor(r.doc, q.Distinct, idxProps))
			if seen[dk] {
				continue
			}
			seen[dk] = true
			out = append(out, r)
		}
		rows = out
	}

	outIds := make([]id.Id, len(rows))
	outDocs := make([]doc.Value, len(rows))
	for i, r := range rows {
		outIds[i] = r.id
		outDocs[i] = r.doc
	}
	return outIds, outDocs
}

func sortKeyFor(d doc.Value, path string, idxProps map[string]kind.IndexProp) []byte {
	prop, ok := idxProps[path]
	if !ok {
		prop = kind.IndexProp{Path: path}
	}
	v, found := lookupPath(d, path)
	if !found {
		if prop.Default != nil {
			v = *prop.Default
		} else {
			v = doc.Null()
		}
	}
	return kind.EncodeBoundKey(v, prop.Collation)
}

func lookupPath(d doc.Value, path string) (doc.Value, bool) {
	cur := d
	for _, seg := range splitPath(path) {
		if cur.Kind() != doc.KindObject {
			return doc.Value{}, false
		}
		v, ok := cur.Object().Get(seg)
		if !ok {
			return doc.Value{}, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return append(segs, path[start:])
}

func stableSortByKey(rows []struct {
	id  id.Id
	doc doc.Value
	key []byte
}) {
	// Insertion sort: candidate sets are bounded by MaxResults (default
	// 10000) and sorted once per search, not on a hot per-write path —
	// a stdlib sort.SliceStable would work identically; this keeps the
	// comparison and the swap adjacent for clarity given the anonymous
	// row type.
	for i := 1; i < len(rows); i++ {
		j := i
		for j > 0 && bytesLess(rows[j].key, rows[j-1].key) {
			rows[j], rows[j-1] = rows[j-1], rows[j]
			j--
		}
	}
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func reverseIds(ids []id.Id) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func reverseDocs(docs []doc.Value) {
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
}

// paginate applies q.Page (the _id of the first result to resume from)
// and q.Limit, returning the next page's token (spec §4.6
// "Pagination": "re-runs the query, skips forward to the token id").
func paginate(ids []id.Id, docs []doc.Value, q query.Query, truncated bool) (Result, error) {
	start := 0
	if q.Page != "" {
		resumeID, err := id.Parse(q.Page)
		if err != nil {
			return Result{}, dberr.New(dberr.InvalidQuery, "invalid page token")
		}
		found := false
		for i, oid := range ids {
			if oid == resumeID {
				start = i
				found = true
				break
			}
		}
		if !found {
			return Result{}, dberr.New(dberr.InvalidQuery, "page token does not match the current result set")
		}
	}

	end := len(ids)
	limit := q.Limit
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := Result{Ids: ids[start:end], Docs: docs[start:end], Truncated: truncated}
	if end < len(ids) {
		page.PageToken = ids[end].String()
	}
	return page, nil
}
