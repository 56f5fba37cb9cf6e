package query

import (
	"strings"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// Matches reports whether d satisfies every clause in where/filter that
// an index's key range didn't already express — the non-indexed
// predicate evaluation a cursor's candidate id goes through once its
// document is loaded (spec §4.5 "filter").
func Matches(d doc.Value, clauses []Clause) (bool, error) {
	for _, c := range clauses {
		ok, err := matchesOne(d, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchesOne evaluates one clause. An array-valued clause (spec §4.5
// "at most one property may carry an array value") tests the document's
// scalar property against each candidate in turn, matching if any one
// does — an IN-style membership test, restricted (per Validate) to =,
// %, and %% since the other operators have no well-defined "any of"
// reading.
func matchesOne(d doc.Value, c Clause) (bool, error) {
	v, found := lookupDotted(d, c.Prop)
	if c.isArray() {
		for _, candidate := range c.Array {
			ok, err := compareScalar(found, v, c.Op, candidate)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return compareScalar(found, v, c.Op, c.Val)
}

func compareScalar(found bool, v doc.Value, op Op, target doc.Value) (bool, error) {
	switch op {
	case OpEqual:
		return found && doc.Equal(v, target), nil
	case OpNotEqual:
		return !found || !doc.Equal(v, target), nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		if !found {
			return false, nil
		}
		c, ok := compareOrdered(v, target)
		if !ok {
			return false, nil
		}
		switch op {
		case OpLess:
			return c < 0, nil
		case OpLessEqual:
			return c <= 0, nil
		case OpGreater:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpPrefix:
		return found && v.Kind() == doc.KindString && target.Kind() == doc.KindString &&
			strings.HasPrefix(v.String(), target.String()), nil
	case OpSubstring, OpSearch:
		// OpSearch (tokenized match) only reaches here when no index
		// expressed it and it fell through to filter evaluation; a
		// case-insensitive substring test is the closest non-indexed
		// approximation of tokenized search available without a token map.
		return found && v.Kind() == doc.KindString && target.Kind() == doc.KindString &&
			strings.Contains(strings.ToLower(v.String()), strings.ToLower(target.String())), nil
	default:
		return false, dberr.New(dberr.InvalidQueryOp, "unknown operator %q", op)
	}
}

func compareOrdered(a, b doc.Value) (int, bool) {
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if a.Kind() == doc.KindString && b.Kind() == doc.KindString {
		return strings.Compare(a.String(), b.String()), true
	}
	return 0, false
}
