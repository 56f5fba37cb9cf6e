package codec

// TokenEncoder resolves a property or string-value name to its kind-scoped
// token, if one has been allocated. Implemented by kind.TokenMap.
type TokenEncoder interface {
	TokenFor(name string) (byte, bool)
}

// TokenDecoder resolves a token byte (>= FirstToken) back to its name.
// Implemented by kind.TokenMap. A token with no registered name signals
// dberr.UnknownToken — an inconsistent-index or shard-without-schema
// condition the caller is expected to recover from (spec §4.1).
type TokenDecoder interface {
	NameFor(token byte) (string, bool)
}

// KindIDEncoder resolves a kind-id string ("name:version") to the small
// integer id the record header persists in place of the full string
// (spec §4.1 "Record header").
type KindIDEncoder interface {
	KindIDFor(kindID string) (int64, bool)
}

// KindIDDecoder resolves a persisted integer kind id back to its
// "name:version" string.
type KindIDDecoder interface {
	KindNameFor(numericID int64) (string, bool)
}
