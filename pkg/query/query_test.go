package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

func TestValidateRequiresFrom(t *testing.T) {
	q := Query{}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQuery)
}

func TestValidateRejectsTwoInequalities(t *testing.T) {
	q := Query{
		From: "Widget:1",
		Where: []Clause{
			{Prop: "a", Op: OpGreater, Val: doc.Int(1)},
			{Prop: "b", Op: OpLess, Val: doc.Int(2)},
		},
	}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOpCombo)
}

func TestValidateRejectsTwoArrayProps(t *testing.T) {
	q := Query{
		From: "Widget:1",
		Where: []Clause{
			{Prop: "a", Op: OpEqual, Array: []doc.Value{doc.Int(1)}},
			{Prop: "b", Op: OpEqual, Array: []doc.Value{doc.Int(2)}},
		},
	}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOpCombo)
}

func TestValidateRejectsArrayWithInequality(t *testing.T) {
	q := Query{
		From: "Widget:1",
		Where: []Clause{
			{Prop: "a", Op: OpGreater, Array: []doc.Value{doc.Int(1)}},
		},
	}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOp)
}

func TestValidateOrderByMustMatchInequalityProp(t *testing.T) {
	q := Query{
		From:    "Widget:1",
		OrderBy: "b",
		Where:   []Clause{{Prop: "a", Op: OpGreater, Val: doc.Int(1)}},
	}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOpCombo)
}

func TestValidateSearchOnlyInWhere(t *testing.T) {
	q := Query{
		From:   "Widget:1",
		Filter: []Clause{{Prop: "a", Op: OpSearch, Val: doc.String("x")}},
	}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOp)
}

func TestValidateImmediateReturnExclusiveWithOrderBy(t *testing.T) {
	q := Query{From: "Widget:1", Limit: 5, ImmediateReturn: true, OrderBy: "a"}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQueryOpCombo)
}

func TestValidateImmediateReturnRequiresLimit(t *testing.T) {
	q := Query{From: "Widget:1", ImmediateReturn: true}
	err := q.Validate()
	assertCode(t, err, dberr.InvalidQuery)
}

func TestValidateAcceptsWellFormedQuery(t *testing.T) {
	q := Query{
		From:    "Widget:1",
		OrderBy: "a",
		Where:   []Clause{{Prop: "a", Op: OpGreaterEqual, Val: doc.Int(1)}},
		Limit:   10,
	}
	assert.NoError(t, q.Validate())
}

func assertCode(t *testing.T, err error, code dberr.Code) {
	t.Helper()
	var de *dberr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code())
}
