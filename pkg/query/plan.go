package query

import (
	"bytes"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/kind"
)

// Range is the byte-key interval [Lower, Upper) a query plan scans
// within one index, reusing the index's own sort-key byte order.
type Range struct {
	Lower []byte // nil means unbounded below
	Upper []byte // nil means unbounded above
}

// Plan is the result of selecting an index for a query: which index,
// how many of the query's where-clauses it satisfies as equality
// bindings, and the resulting scan range.
type Plan struct {
	Index          kind.IndexDef
	EqualityProps  []string
	Range          Range
	RemainingWhere []Clause // where-clauses not expressed by the index, evaluated as filters
}

// SelectIndex picks, among k's indexes, the one satisfying the longest
// prefix of q's equality where-clauses followed (optionally) by the
// clause carrying the query's single inequality/order property, ties
// broken by declaration order (spec §4.5 "Index selection").
func SelectIndex(k *kind.Kind, q Query) (Plan, error) {
	byProp := make(map[string]Clause, len(q.Where))
	for _, c := range q.Where {
		byProp[c.Prop] = c
	}

	var best Plan
	bestLen := -1
	for _, idx := range k.Indexes {
		eqCount, ineqClause, ok := matchPrefix(idx, byProp, q.OrderBy)
		if !ok {
			continue
		}
		if eqCount <= bestLen {
			continue
		}
		bestLen = eqCount
		best = buildPlan(k.ID, idx, q, eqCount, ineqClause)
	}

	if bestLen < 0 {
		return Plan{}, dberr.New(dberr.InvalidQuery, "no index on kind %s satisfies query %s's where clauses", k.ID, q.From)
	}
	return best, nil
}

// matchPrefix reports how many of idx's leading properties are bound by
// an equality clause in byProp, and whether the next property (if any)
// carries orderByProp or the where-clause inequality — a mismatch there
// disqualifies the index entirely, since the range can't be built.
func matchPrefix(idx kind.IndexDef, byProp map[string]Clause, orderByProp string) (eqCount int, ineq Clause, ok bool) {
	for i, prop := range idx.Props {
		c, has := byProp[prop.Path]
		if !has {
			// No binding for this position: the index is still usable if
			// nothing downstream of it is required, i.e. this is where the
			// prefix simply ends.
			return i, Clause{}, true
		}
		if c.Op.isInequality() {
			if orderByProp != "" && orderByProp != prop.Path {
				return 0, Clause{}, false
			}
			return i, c, true
		}
		if c.Op != OpEqual && c.Op != OpPrefix && c.Op != OpSubstring {
			return i, Clause{}, true
		}
		eqCount = i + 1
	}
	return eqCount, Clause{}, true
}

func buildPlan(kindID string, idx kind.IndexDef, q Query, eqCount int, ineq Clause) Plan {
	prefix := kind.IndexKeyPrefix(kindID, idx.Name)
	lower := append([]byte{}, prefix...)
	upper := append([]byte{}, prefix...)
	consumed := make(map[string]bool, eqCount+1)

	for i := 0; i < eqCount; i++ {
		prop := idx.Props[i]
		c := findClause(q.Where, prop.Path)
		consumed[prop.Path] = true
		seg := kind.EncodeBoundKey(c.Val, prop.Collation)
		lower = append(lower, seg...)
		upper = append(upper, seg...)
	}

	if ineq.Prop != "" {
		consumed[ineq.Prop] = true
		prop := idx.Props[eqCount]
		seg := kind.EncodeBoundKey(ineq.Val, prop.Collation)
		switch ineq.Op {
		case OpGreater:
			lower = append(append([]byte{}, lower...), seg...)
			lower = append(lower, 0xFF) // strictly after seg's encoding
			upper = prefixSuccessor(upper)
		case OpGreaterEqual:
			lower = append(append([]byte{}, lower...), seg...)
			upper = prefixSuccessor(upper)
		case OpLess:
			upper = append(append([]byte{}, upper...), seg...)
		case OpLessEqual:
			upper = append(append([]byte{}, upper...), seg...)
			upper = append(upper, 0xFF)
		}
	} else {
		// No inequality: the upper bound is the equality prefix's
		// successor so the range covers exactly the matching keys (or,
		// with no equality bindings either, the whole index).
		upper = prefixSuccessor(upper)
	}

	var remaining []Clause
	for _, c := range q.Where {
		if !consumed[c.Prop] {
			remaining = append(remaining, c)
		}
	}

	return Plan{
		Index:          idx,
		EqualityProps:  equalityPropNames(idx, eqCount),
		Range:          Range{Lower: lower, Upper: upper},
		RemainingWhere: remaining,
	}
}

func equalityPropNames(idx kind.IndexDef, eqCount int) []string {
	out := make([]string, eqCount)
	for i := 0; i < eqCount; i++ {
		out[i] = idx.Props[i].Path
	}
	return out
}

func findClause(where []Clause, prop string) Clause {
	for _, c := range where {
		if c.Prop == prop {
			return c
		}
	}
	return Clause{}
}

// prefixSuccessor returns the smallest byte string that is strictly
// greater than every string with prefix p, by incrementing its last
// non-0xFF byte and truncating the trailing 0xFF run.
func prefixSuccessor(p []byte) []byte {
	out := append([]byte{}, p...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // all 0xFF: unbounded above
}

// InRange reports whether key falls within [r.Lower, r.Upper).
func (r Range) InRange(key []byte) bool {
	if r.Lower != nil && bytes.Compare(key, r.Lower) < 0 {
		return false
	}
	if r.Upper != nil && bytes.Compare(key, r.Upper) >= 0 {
		return false
	}
	return true
}
