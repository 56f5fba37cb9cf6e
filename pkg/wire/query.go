package wire

import (
	"encoding/json"

	"github.com/shelfdb/shelfdb/pkg/dberr"
	"github.com/shelfdb/shelfdb/pkg/doc"
	"github.com/shelfdb/shelfdb/pkg/query"
)

// clauseWire is the wire shape of one where/filter clause (spec §6
// "Where/filter clauses are { prop, op, val, collate? }").
type clauseWire struct {
	Prop  string          `json:"prop"`
	Op    string          `json:"op"`
	Val   json.RawMessage `json:"val,omitempty"`
	Array []json.RawMessage `json:"array,omitempty"`
}

// aggregateWire is the wire shape of a query's aggregate block (spec §6
// "aggregate { groupBy, cnt, min, max, sum, avg, first, last }").
type aggregateWire struct {
	GroupBy []string `json:"groupBy,omitempty"`
	Cnt     []string `json:"cnt,omitempty"`
	Min     []string `json:"min,omitempty"`
	Max     []string `json:"max,omitempty"`
	Sum     []string `json:"sum,omitempty"`
	Avg     []string `json:"avg,omitempty"`
	First   []string `json:"first,omitempty"`
	Last    []string `json:"last,omitempty"`
}

// queryWire is the wire shape of a full query payload (spec §6 "Query
// payload").
type queryWire struct {
	Select               []string       `json:"select,omitempty"`
	From                 string         `json:"from"`
	Where                []clauseWire   `json:"where,omitempty"`
	Filter               []clauseWire   `json:"filter,omitempty"`
	OrderBy              string         `json:"orderBy,omitempty"`
	Distinct             string         `json:"distinct,omitempty"`
	Desc                 bool           `json:"desc,omitempty"`
	IncDel               bool           `json:"incDel,omitempty"`
	Limit                int            `json:"limit,omitempty"`
	ImmediateReturn      bool           `json:"immediateReturn,omitempty"`
	Page    string `json:"page,omitempty"`
	// IgnoreInactiveShards defaults to true (an omitted field excludes
	// inactive shards from a FindAll fan-out); set it to false explicitly
	// to include a shard the pool has marked inactive (spec §8 "shard
	// visibility").
	IgnoreInactiveShards *bool          `json:"ignoreInactiveShards,omitempty"`
	Aggregate            *aggregateWire `json:"aggregate,omitempty"`
}

func decodeQuery(raw json.RawMessage) (query.Query, error) {
	var w queryWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return query.Query{}, dberr.Wrap(dberr.InvalidQuery, err, "invalid query payload")
	}
	if w.From == "" {
		return query.Query{}, dberr.New(dberr.InvalidQuery, "query payload missing required field \"from\"")
	}

	where, err := decodeClauses(w.Where)
	if err != nil {
		return query.Query{}, err
	}
	filter, err := decodeClauses(w.Filter)
	if err != nil {
		return query.Query{}, err
	}

	ignoreInactive := true
	if w.IgnoreInactiveShards != nil {
		ignoreInactive = *w.IgnoreInactiveShards
	}
	q := query.Query{
		Select:               w.Select,
		From:                 w.From,
		Where:                where,
		Filter:               filter,
		OrderBy:              w.OrderBy,
		Distinct:             w.Distinct,
		Desc:                 w.Desc,
		IncludeDeleted:       w.IncDel,
		Limit:                w.Limit,
		ImmediateReturn:      w.ImmediateReturn,
		Page:                 w.Page,
		IgnoreInactiveShards: ignoreInactive,
	}
	if w.Aggregate != nil {
		q.Aggregate = &query.AggregateSpec{
			GroupBy: w.Aggregate.GroupBy,
			Count:   w.Aggregate.Cnt,
			Min:     w.Aggregate.Min,
			Max:     w.Aggregate.Max,
			Sum:     w.Aggregate.Sum,
			Avg:     w.Aggregate.Avg,
			First:   w.Aggregate.First,
			Last:    w.Aggregate.Last,
		}
	}
	return q, nil
}

func decodeClauses(ws []clauseWire) ([]query.Clause, error) {
	if ws == nil {
		return nil, nil
	}
	out := make([]query.Clause, len(ws))
	for i, w := range ws {
		if w.Prop == "" {
			return nil, dberr.New(dberr.InvalidQuery, "clause %d missing required field \"prop\"", i)
		}
		if w.Op == "" {
			return nil, dberr.New(dberr.InvalidQuery, "clause %d missing required field \"op\"", i)
		}
		c := query.Clause{Prop: w.Prop, Op: query.Op(w.Op)}
		if w.Array != nil {
			values := make([]doc.Value, len(w.Array))
			for j, raw := range w.Array {
				v, err := UnmarshalDoc(raw)
				if err != nil {
					return nil, err
				}
				values[j] = v
			}
			c.Array = values
		} else if w.Val != nil {
			v, err := UnmarshalDoc(w.Val)
			if err != nil {
				return nil, err
			}
			c.Val = v
		}
		out[i] = c
	}
	return out, nil
}
