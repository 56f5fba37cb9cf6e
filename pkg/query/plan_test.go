package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/kind"
)

func TestSelectIndexPicksLongestEqualityPrefix(t *testing.T) {
	k := &kind.Kind{
		ID: "Widget:1",
		Indexes: []kind.IndexDef{
			{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}},
			{Name: "byAB", Props: []kind.IndexProp{{Path: "a"}, {Path: "b"}}},
		},
	}
	q := Query{
		From: "Widget:1",
		Where: []Clause{
			{Prop: "a", Op: OpEqual, Val: doc.Int(1)},
			{Prop: "b", Op: OpEqual, Val: doc.Int(2)},
		},
	}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)
	assert.Equal(t, "byAB", plan.Index.Name)
	assert.Equal(t, []string{"a", "b"}, plan.EqualityProps)
}

func TestSelectIndexTiesBreakByDeclarationOrder(t *testing.T) {
	k := &kind.Kind{
		ID: "Widget:1",
		Indexes: []kind.IndexDef{
			{Name: "first", Props: []kind.IndexProp{{Path: "a"}}},
			{Name: "second", Props: []kind.IndexProp{{Path: "a"}}},
		},
	}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpEqual, Val: doc.Int(1)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)
	assert.Equal(t, "first", plan.Index.Name)
}

func TestSelectIndexNoneSatisfiesFails(t *testing.T) {
	k := &kind.Kind{ID: "Widget:1"}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpEqual, Val: doc.Int(1)}}}
	_, err := SelectIndex(k, q)
	assert.Error(t, err)
}

func TestSelectIndexEqualityRangeIsPrefixBounded(t *testing.T) {
	k := &kind.Kind{
		ID:      "Widget:1",
		Indexes: []kind.IndexDef{{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}}},
	}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpEqual, Val: doc.Int(5)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)
	assert.True(t, plan.Range.InRange(plan.Range.Lower))
	assert.False(t, plan.Range.InRange(plan.Range.Upper))
}

func TestSelectIndexInequalityBuildsOpenRange(t *testing.T) {
	k := &kind.Kind{
		ID:      "Widget:1",
		Indexes: []kind.IndexDef{{Name: "byA", Props: []kind.IndexProp{{Path: "a"}}}},
	}
	q := Query{From: "Widget:1", Where: []Clause{{Prop: "a", Op: OpGreaterEqual, Val: doc.Int(5)}}}
	plan, err := SelectIndex(k, q)
	require.NoError(t, err)
	assert.Equal(t, prefixSuccessor(kind.IndexKeyPrefix("Widget:1", "byA")), plan.Range.Upper)
	assert.NotNil(t, plan.Range.Lower)
}

func TestPrefixSuccessorHandlesAllFF(t *testing.T) {
	assert.Nil(t, prefixSuccessor([]byte{0xFF, 0xFF}))
}

func TestPrefixSuccessorIncrementsLastByte(t *testing.T) {
	got := prefixSuccessor([]byte{0x01, 0x02})
	assert.Equal(t, []byte{0x01, 0x03}, got)
}
