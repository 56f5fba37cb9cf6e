// Package kind implements the schema registry, per-kind token allocation,
// index extractors, and permission matrix of spec §4.3. A Kind names a
// schema; an Index is a named ordered projection of a kind's documents
// that the storage and query layers use to keep secondary lookups
// consistent with the primary store.
package kind

import "github.com/shelfdb/shelfdb/pkg/doc"

// Collation selects the string-comparison strength an index property
// uses, mirroring ICU/Unicode collation strengths (spec §3 "Index").
type Collation int

const (
	CollationPrimary Collation = iota
	CollationSecondary
	CollationTertiary
	CollationQuaternary
	CollationIdentical
)

// Tokenize selects how a string property is broken into sort keys for
// the "?" (tokenized search) query operator.
type Tokenize int

const (
	TokenizeNone Tokenize = iota
	TokenizeDefault
	TokenizeAll
)

// IndexProp is one property of a (possibly composite) index definition.
type IndexProp struct {
	Path      string // dotted property path
	Multi     bool   // property is multi-valued (array leaf)
	Collation Collation
	Tokenize  Tokenize
	Default   *doc.Value // used when the property is absent from a document
}

// IndexDef names an ordered projection of a kind's documents.
type IndexDef struct {
	Name   string
	Props  []IndexProp
	IncDel bool // whether tombstoned documents appear in this index
}

// Op is one permission operation a principal may be granted on a kind.
type Op string

const (
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpExtend Op = "extend"
)

// Permissions is the caller × operation permission matrix for a kind.
// A missing caller entry denies all operations.
type Permissions map[string]map[Op]bool

// Allows reports whether caller may perform op.
func (p Permissions) Allows(caller string, op Op) bool {
	if p == nil {
		return false
	}
	ops, ok := p[caller]
	if !ok {
		return false
	}
	return ops[op]
}

// Kind is a named schema: its secondary indexes, owner, inheritance
// chain (permission composition only — storage stays flat), permission
// matrix, token map, and content hash.
type Kind struct {
	ID          string // "name:version"
	Owner       string
	Extends     []string
	Indexes     []IndexDef
	Permissions Permissions
	Tokens      *TokenMap

	// NumericID is the small integer the record header persists in
	// place of the full "name:version" string (spec §4.1).
	NumericID int64

	// ContentHash fingerprints the schema (indexes + permissions) so a
	// shard's registered kind-hash-set can detect staleness on mount
	// (spec §4.9).
	ContentHash uint64
}

// IndexByName looks up one of the kind's index definitions.
func (k *Kind) IndexByName(name string) (IndexDef, bool) {
	for _, idx := range k.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDef{}, false
}
