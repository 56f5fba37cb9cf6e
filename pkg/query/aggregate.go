package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
)

// GroupResult is one group-by bucket's computed aggregates, keyed by
// the property name each aggregate was requested for (spec §4.5
// "Aggregate", §8 scenario 4).
type GroupResult struct {
	GroupKey []doc.Value
	Count    map[string]int64
	Min      map[string]doc.Value
	Max      map[string]doc.Value
	Sum      map[string]float64
	Avg      map[string]float64
	First    map[string]doc.Value
	Last     map[string]doc.Value
}

func newGroupResult(groupKey []doc.Value) *GroupResult {
	return &GroupResult{
		GroupKey: groupKey,
		Count:    make(map[string]int64),
		Min:      make(map[string]doc.Value),
		Max:      make(map[string]doc.Value),
		Sum:      make(map[string]float64),
		Avg:      make(map[string]float64),
		First:    make(map[string]doc.Value),
		Last:     make(map[string]doc.Value),
	}
}

type groupAccum struct {
	result   *GroupResult
	sumN     map[string]int     // count of numeric samples folded into avgTotal, for the final avg divide
	avgTotal map[string]float64 // running avg numerator, kept apart from Sum so a property under both is not counted twice
	firstSet map[string]bool
}

// Evaluate streams docs (already filtered to the query's matches, in
// encounter/insertion order) through spec's group-by map, folding each
// requested aggregate per group (spec §4.5: "no index pushdown" — the
// caller is expected to have already applied where/filter). Sum/avg
// require a numeric operand for every sampled document or the whole
// evaluation fails with dberr.InvalidAggregateType.
func Evaluate(docs []doc.Value, spec AggregateSpec) ([]*GroupResult, error) {
	order := make([]string, 0)
	groups := make(map[string]*groupAccum)

	for _, d := range docs {
		key := groupKeyFor(d, spec.GroupBy)
		keyStr := groupKeyString(key)
		acc, ok := groups[keyStr]
		if !ok {
			acc = &groupAccum{result: newGroupResult(key), sumN: map[string]int{}, avgTotal: map[string]float64{}, firstSet: map[string]bool{}}
			groups[keyStr] = acc
			order = append(order, keyStr)
		}
		if err := fold(acc, d, spec); err != nil {
			return nil, err
		}
	}

	for _, acc := range groups {
		for prop, total := range acc.avgTotal {
			n := acc.sumN[prop]
			if n > 0 {
				acc.result.Avg[prop] = total / float64(n)
			}
		}
	}

	out := make([]*GroupResult, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k].result)
	}
	return out, nil
}

func groupKeyFor(d doc.Value, props []string) []doc.Value {
	if len(props) == 0 {
		return nil
	}
	out := make([]doc.Value, len(props))
	for i, p := range props {
		v, ok := lookupDotted(d, p)
		if !ok {
			v = doc.Null()
		}
		out[i] = v
	}
	return out
}

func groupKeyString(key []doc.Value) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprintf("%d:%v", v.Kind(), scalarString(v))
	}
	return strings.Join(parts, "\x00")
}

func scalarString(v doc.Value) string {
	switch v.Kind() {
	case doc.KindString:
		return v.String()
	case doc.KindInt:
		return fmt.Sprintf("%d", v.Int())
	case doc.KindBool:
		return fmt.Sprintf("%v", v.Bool())
	default:
		return ""
	}
}

func lookupDotted(d doc.Value, path string) (doc.Value, bool) {
	cur := d
	for _, seg := range strings.Split(path, ".") {
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

func numeric(v doc.Value) (float64, bool) {
	switch v.Kind() {
	case doc.KindInt:
		return float64(v.Int()), true
	case doc.KindDecimal:
		dec := v.Decimal()
		return float64(dec.Magnitude) / pow10(dec.Fraction), true
	default:
		return 0, false
	}
}

func pow10(n int64) float64 {
	f := 1.0
	for i := int64(0); i < n; i++ {
		f *= 10
	}
	if f == 0 {
		return 1
	}
	return f
}

func fold(acc *groupAccum, d doc.Value, spec AggregateSpec) error {
	for _, prop := range spec.Count {
		acc.result.Count[prop]++
	}
	for _, prop := range spec.Min {
		v, ok := lookupDotted(d, prop)
		if !ok {
			continue
		}
		cur, has := acc.result.Min[prop]
		if !has || compareValues(v, cur) < 0 {
			acc.result.Min[prop] = v
		}
	}
	for _, prop := range spec.Max {
		v, ok := lookupDotted(d, prop)
		if !ok {
			continue
		}
		cur, has := acc.result.Max[prop]
		if !has || compareValues(v, cur) > 0 {
			acc.result.Max[prop] = v
		}
	}
	for _, prop := range spec.Sum {
		v, ok := lookupDotted(d, prop)
		if !ok {
			continue
		}
		n, ok := numeric(v)
		if !ok {
			return dberr.New(dberr.InvalidAggregateType, "sum requires a numeric operand for property %q", prop)
		}
		acc.result.Sum[prop] += n
	}
	for _, prop := range spec.Avg {
		v, ok := lookupDotted(d, prop)
		if !ok {
			continue
		}
		n, ok := numeric(v)
		if !ok {
			return dberr.New(dberr.InvalidAggregateType, "avg requires a numeric operand for property %q", prop)
		}
		acc.avgTotal[prop] += n
		acc.sumN[prop]++
	}
	for _, prop := range spec.First {
		if acc.firstSet[prop] {
			continue
		}
		if v, ok := lookupDotted(d, prop); ok {
			acc.result.First[prop] = v
			acc.firstSet[prop] = true
		}
	}
	for _, prop := range spec.Last {
		if v, ok := lookupDotted(d, prop); ok {
			acc.result.Last[prop] = v
		}
	}
	return nil
}

// compareValues orders two scalar doc.Values for min/max folding:
// numeric by value, string lexicographically, otherwise incomparable
// values are treated as equal (first-seen wins).
func compareValues(a, b doc.Value) int {
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	if a.Kind() == doc.KindString && b.Kind() == doc.KindString {
		return strings.Compare(a.String(), b.String())
	}
	return 0
}

// SortGroups orders results by their group key for stable output (the
// wire layer doesn't promise an order, but deterministic tests do).
func SortGroups(results []*GroupResult) {
	sort.Slice(results, func(i, j int) bool {
		return groupKeyString(results[i].GroupKey) < groupKeyString(results[j].GroupKey)
	})
}
