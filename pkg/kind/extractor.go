package kind

import (
	"strings"

	"github.com/shelfdb/shelfdb/pkg/doc"
)

// ExtractKeys computes the set of sort keys an index derives from a
// document body: walk each property path (dotted), cross-producting
// over multi-valued leaves, tokenizing and collating per the index's
// declared options, and taking the composite cross-product across the
// index's properties (spec §4.3 "Extractors"). The caller appends the
// object id as the key suffix before writing to storage.
func ExtractKeys(idx IndexDef, body doc.Value) [][]byte {
	perProp := make([][][]byte, len(idx.Props))
	for i, p := range idx.Props {
		perProp[i] = segmentsForProp(p, body)
		if len(perProp[i]) == 0 {
			// No value and no default: this document contributes no
			// entries for this (composite) index at all.
			return nil
		}
	}
	return crossProduct(perProp)
}

// segmentsForProp resolves one property path to its sort-key segments:
// normally one segment, but TokenizeAll or a multi-valued leaf can
// produce several (the index's cross-product input for this property).
func segmentsForProp(p IndexProp, body doc.Value) [][]byte {
	values := lookupPath(body, strings.Split(p.Path, "."))
	if len(values) == 0 {
		if p.Default != nil {
			values = []doc.Value{*p.Default}
		} else {
			return nil
		}
	}

	var out [][]byte
	for _, v := range values {
		if p.Multi && v.Kind() == doc.KindArray {
			for _, item := range v.Array() {
				out = append(out, segmentsForScalarWithTokenize(item, p)...)
			}
			continue
		}
		out = append(out, segmentsForScalarWithTokenize(v, p)...)
	}
	return out
}

func segmentsForScalarWithTokenize(v doc.Value, p IndexProp) [][]byte {
	if v.Kind() == doc.KindString && p.Tokenize == TokenizeAll {
		var segs [][]byte
		for _, tok := range tokensOf(v.String()) {
			segs = append(segs, segmentForScalar(doc.String(tok), p.Collation, TokenizeNone))
		}
		return segs
	}
	return [][]byte{segmentForScalar(v, p.Collation, p.Tokenize)}
}

// lookupPath resolves a dotted property path against a document body,
// returning every value reached. A path walking through an array
// (without Multi semantics at that level) maps over each element.
func lookupPath(v doc.Value, path []string) []doc.Value {
	if len(path) == 0 {
		return []doc.Value{v}
	}
	head, rest := path[0], path[1:]
	switch v.Kind() {
	case doc.KindObject:
		child, ok := v.Object().Get(head)
		if !ok {
			return nil
		}
		return lookupPath(child, rest)
	case doc.KindArray:
		var out []doc.Value
		for _, item := range v.Array() {
			out = append(out, lookupPath(item, append([]string{head}, rest...))...)
		}
		return out
	default:
		return nil
	}
}

// IndexKeyPrefix returns the byte prefix that scopes a shard's shared
// BucketIndexes bucket to one kind's one index: every index entry for
// kindID+indexName has this prefix, followed by the entry's sort key and
// trailing object id. Shared by pkg/txn (which writes entries under
// this prefix) and pkg/query (which scans within it) so the two agree
// on the on-disk key layout without either importing the other.
func IndexKeyPrefix(kindID, indexName string) []byte {
	return []byte(kindID + "\x00" + indexName + "\x00")
}

// crossProduct combines per-property segment lists into composite sort
// keys, one per combination, each segment concatenated in property
// order so composite comparisons respect property precedence.
func crossProduct(perProp [][][]byte) [][]byte {
	if len(perProp) == 0 {
		return nil
	}
	combos := [][]byte{{}}
	for _, segs := range perProp {
		var next [][]byte
		for _, prefix := range combos {
			for _, seg := range segs {
				combo := make([]byte, 0, len(prefix)+len(seg))
				combo = append(combo, prefix...)
				combo = append(combo, seg...)
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}
