package txn

import (
	"sync"

	"github.com/shelfdb/shelfdb/pkg/dberr"
)

// Ledger tracks per-owner byte usage against a configured quota. Quota
// is always charged against the main shard's write, never a
// secondary one (spec §4.4 "Quotas are a per-owner, per-shard-set
// budget anchored at the object's home shard").
type Ledger struct {
	mu      sync.Mutex
	limits  map[string]int64
	used    map[string]int64
	fallback int64
}

// NewLedger returns a ledger applying fallback to any owner without an
// explicit limit (config.QuotaConfig.DefaultBytes).
func NewLedger(fallback int64) *Ledger {
	return &Ledger{
		limits:   make(map[string]int64),
		used:     make(map[string]int64),
		fallback: fallback,
	}
}

// SetLimit installs an explicit quota for owner (spec §6 "putQuotas").
func (l *Ledger) SetLimit(owner string, bytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits[owner] = bytes
}

// Used returns the owner's currently-charged bytes.
func (l *Ledger) Used(owner string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[owner]
}

func (l *Ledger) limitFor(owner string) int64 {
	if lim, ok := l.limits[owner]; ok {
		return lim
	}
	return l.fallback
}

// Reserve checks that charging delta bytes to owner would not exceed
// its quota, without committing the charge. A negative delta (a
// shrinking or deleted record) always succeeds.
func (l *Ledger) Reserve(owner string, delta int64) error {
	if delta <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.used[owner]+delta > l.limitFor(owner) {
		return dberr.New(dberr.QuotaExceeded, "owner %q would exceed quota (%d + %d > %d)",
			owner, l.used[owner], delta, l.limitFor(owner))
	}
	return nil
}

// Charge commits a byte delta (positive or negative) to owner's usage.
// Callers must have called Reserve first for positive deltas within
// the same transaction to avoid racing another transaction's charge
// past the limit between Reserve and Charge.
func (l *Ledger) Charge(owner string, delta int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.used[owner] += delta
	if l.used[owner] < 0 {
		l.used[owner] = 0
	}
}
