package kind

import (
	"sort"
	"sync"

	"github.com/shelfdb/shelfdb/pkg/codec"
)

// firstToken is the smallest byte value usable as a token id (spec §4.1:
// tokens must be >= 0x20 to avoid colliding with marker bytes).
const firstToken = byte(codec.FirstToken)

// TokenMap is a kind's property-name ↔ token-id dictionary. Tokens are
// allocated the first time a property is written and are never reused
// or reassigned (spec §3 invariant). It satisfies codec.TokenEncoder and
// codec.TokenDecoder.
type TokenMap struct {
	mu      sync.Mutex
	byName  map[string]byte
	byToken map[byte]string
	next    byte
}

// NewTokenMap returns an empty token map.
func NewTokenMap() *TokenMap {
	return &TokenMap{
		byName:  make(map[string]byte),
		byToken: make(map[byte]string),
		next:    firstToken,
	}
}

// TokenFor implements codec.TokenEncoder: it is a read-only lookup and
// never allocates. Use Add to allocate a new token under the kind's
// write transaction.
func (m *TokenMap) TokenFor(name string) (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.byName[name]
	return tok, ok
}

// NameFor implements codec.TokenDecoder.
func (m *TokenMap) NameFor(tok byte) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.byToken[tok]
	return name, ok
}

// Add returns the existing token for name, or allocates and returns the
// next available one. Concurrent callers requesting the same new name
// serialize on the map's mutex and observe the same allocated token
// (spec §4.3 "Token allocation"). The caller is responsible for
// persisting the updated map in the same storage transaction as the
// write that required the new token.
func (m *TokenMap) Add(name string) (tok byte, isNew bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byName[name]; ok {
		return existing, false
	}
	tok = m.next
	m.next++
	m.byName[name] = tok
	m.byToken[tok] = name
	return tok, true
}

// Snapshot returns the current name->token assignments, for persistence.
func (m *TokenMap) Snapshot() map[string]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]byte, len(m.byName))
	for k, v := range m.byName {
		out[k] = v
	}
	return out
}

// LoadSnapshot restores a token map from persisted assignments, e.g.
// after opening a kind record. It resets the next-token cursor to one
// past the highest loaded token.
func LoadSnapshot(assignments map[string]byte) *TokenMap {
	m := NewTokenMap()
	names := make([]string, 0, len(assignments))
	for name := range assignments {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic load order only; doesn't affect ids
	for _, name := range names {
		tok := assignments[name]
		m.byName[name] = tok
		m.byToken[tok] = name
		if tok >= m.next {
			if tok == 0xFF {
				m.next = 0xFF // saturate; kind is out of token space
			} else {
				m.next = tok + 1
			}
		}
	}
	return m
}
