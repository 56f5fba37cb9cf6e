// Package query implements shelfdb's find-query grammar, validation,
// index selection, and cursor — the core of spec §4.5. A Query names a
// kind, optional where/filter clauses, ordering, and an optional
// aggregate; pkg/search builds on Cursor to add global sort/distinct/
// pagination across index boundaries.
package query

import (
	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// Op is a where/filter comparison operator.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpPrefix       Op = "%"
	OpSearch       Op = "?"
	OpSubstring    Op = "%%"
)

func (o Op) isInequality() bool {
	switch o {
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// Clause is one where/filter predicate: prop compared against val using
// op.
type Clause struct {
	Prop  string
	Op    Op
	Val   doc.Value
	Array []doc.Value // set instead of Val when the clause carries an array
}

func (c Clause) isArray() bool { return c.Array != nil }

// AggregateSpec names the group-by property and, per requested
// aggregate kind, the property to fold (spec §4.5 "Aggregate").
type AggregateSpec struct {
	GroupBy []string
	Count   []string
	Min     []string
	Max     []string
	Sum     []string
	Avg     []string
	First   []string
	Last    []string
}

func (a *AggregateSpec) empty() bool {
	return a == nil || (len(a.Count) == 0 && len(a.Min) == 0 && len(a.Max) == 0 &&
		len(a.Sum) == 0 && len(a.Avg) == 0 && len(a.First) == 0 && len(a.Last) == 0)
}

// Query is one find/search request against a single kind (spec §4.5
// "Query grammar", §6 "Query payload").
type Query struct {
	From                 string
	Select               []string
	Where                []Clause
	Filter               []Clause
	OrderBy              string
	Distinct             string
	Desc                 bool
	Limit                int // 0 means unlimited; wire layer caps at 500
	Page                 string
	IncludeDeleted       bool
	IgnoreInactiveShards bool
	ImmediateReturn      bool
	Aggregate            *AggregateSpec
}

const maxWireLimit = 500

// Validate enforces spec §4.5's validation rules, returning the first
// violation found as a dberr.InvalidQuery/InvalidQueryOp/
// InvalidQueryOpCombo error.
func (q Query) Validate() error {
	if q.From == "" {
		return dberr.New(dberr.InvalidQuery, "query must name a kind (from)")
	}
	if q.Limit < 0 || q.Limit > maxWireLimit {
		return dberr.New(dberr.InvalidQuery, "limit must be in [0, %d]", maxWireLimit)
	}

	ineqProp := ""
	arrayProp := ""
	for _, c := range q.Where {
		if err := validateOp(c, true); err != nil {
			return err
		}
		if c.Op.isInequality() {
			if ineqProp != "" && ineqProp != c.Prop {
				return dberr.New(dberr.InvalidQueryOpCombo, "at most one property may carry an inequality operator, found %q and %q", ineqProp, c.Prop)
			}
			ineqProp = c.Prop
		}
		if c.isArray() {
			if c.Op != OpEqual && c.Op != OpPrefix && c.Op != OpSubstring {
				return dberr.New(dberr.InvalidQueryOp, "array-valued where clause on %q only permits =, %%, %%%%", c.Prop)
			}
			if arrayProp != "" && arrayProp != c.Prop {
				return dberr.New(dberr.InvalidQueryOpCombo, "at most one property may carry an array value, found %q and %q", arrayProp, c.Prop)
			}
			arrayProp = c.Prop
		}
	}
	for _, c := range q.Filter {
		if err := validateOp(c, false); err != nil {
			return err
		}
	}

	if q.OrderBy != "" && ineqProp != "" && ineqProp != q.OrderBy {
		return dberr.New(dberr.InvalidQueryOpCombo, "orderBy %q must match the inequality where-clause property %q", q.OrderBy, ineqProp)
	}

	if q.ImmediateReturn {
		if q.OrderBy != "" || q.Distinct != "" || !q.Aggregate.empty() {
			return dberr.New(dberr.InvalidQueryOpCombo, "immediateReturn is mutually exclusive with orderBy, distinct, and aggregate")
		}
		if q.Limit == 0 {
			return dberr.New(dberr.InvalidQuery, "immediateReturn requires a limit")
		}
	}

	return nil
}

func validateOp(c Clause, inWhere bool) error {
	if c.Prop == "" {
		return dberr.New(dberr.InvalidQuery, "clause missing a property path")
	}
	if c.Op == OpSearch && !inWhere {
		return dberr.New(dberr.InvalidQueryOp, "the ? (search) operator is only permitted in where, not filter")
	}
	switch c.Op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpPrefix, OpSearch, OpSubstring:
		return nil
	default:
		return dberr.New(dberr.InvalidQueryOp, "unknown operator %q", c.Op)
	}
}
