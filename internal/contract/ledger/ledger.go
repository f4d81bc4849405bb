// Package ledger implements the per-relay balance ledger: an
// (available, pending) pair per relay public key, guarded by a per-key
// lock so that drafts for different relays never contend, while two
// concurrent drafts for the same relay race to exactly one winner.
//
// Follows a lock-load-mutate idiom, generalized from a package-level
// mutex to one mutex per relay key. Draft and Commit do not persist
// anything; durable snapshots go through Export and LoadFrom.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"wireskip-contract/internal/contract/metrics"
)

// entry is one relay's balance state plus its own lock.
type entry struct {
	mu        sync.Mutex
	available decimal.Decimal
	pending   decimal.Decimal
}

// Ledger holds one entry per relay ever seen. The map only grows; it
// never evicts.
type Ledger struct {
	mu      sync.RWMutex // guards creation of new entries
	byKey   map[string]*entry
	currency string
}

// New creates an empty ledger denominated in currency.
func New(currency string) *Ledger {
	return &Ledger{byKey: make(map[string]*entry), currency: currency}
}

// Currency returns the ledger's denomination.
func (l *Ledger) Currency() string { return l.currency }

func (l *Ledger) entryFor(relayPK string) *entry {
	l.mu.RLock()
	e, ok := l.byKey[relayPK]
	l.mu.RUnlock()
	if ok {
		return e
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.byKey[relayPK]; ok {
		return e
	}
	e = &entry{}
	l.byKey[relayPK] = e
	metrics.LedgerEntries.Set(float64(len(l.byKey)))
	return e
}

// Draft opens a pending balance change for relayPK. Exactly one of two
// concurrent drafts for the same key succeeds; the loser gets
// ErrAlreadyPending. Negative deltas (withdrawals) must not bring
// available to zero or below; positive deltas (rewards) must not
// overflow.
func (l *Ledger) Draft(relayPK string, delta decimal.Decimal) error {
	e := l.entryFor(relayPK)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pending.IsZero() {
		return ErrAlreadyPending
	}

	if delta.IsNegative() {
		if !e.available.IsPositive() {
			return ErrInsufficientBalance
		}
		if !e.available.Add(delta).IsPositive() {
			return ErrInsufficientBalance
		}
		if e.available.Add(delta).LessThan(decimalMin) {
			return ErrUnderflow
		}
	} else {
		if e.available.Add(delta).GreaterThan(decimalMax) {
			return ErrOverflow
		}
	}

	e.pending = delta
	return nil
}

// Action is the terminal disposition of a draft.
type Action int

const (
	Apply Action = iota
	Abort
)

// Commit resolves relayPK's pending draft. Apply folds it into
// available; Abort discards it. Commit never fails.
func (l *Ledger) Commit(relayPK string, action Action) {
	e := l.entryFor(relayPK)
	e.mu.Lock()
	defer e.mu.Unlock()
	if action == Apply {
		e.available = e.available.Add(e.pending)
	}
	e.pending = decimal.Zero
}

// Get returns the currency, available and pending amounts for relayPK,
// truncated to int64.
func (l *Ledger) Get(relayPK string) (currency string, available, pending int64) {
	e := l.entryFor(relayPK)
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.currency, e.available.Truncate(0).IntPart(), e.pending.Truncate(0).IntPart()
}

// snapshotEntry is the on-disk representation of one relay's balance.
type snapshotEntry struct {
	Available string `json:"available"`
	Pending   string `json:"pending"`
}

// Export serializes the entire ledger to JSON for durable snapshotting.
func (l *Ledger) Export() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]snapshotEntry, len(l.byKey))
	for k, e := range l.byKey {
		e.mu.Lock()
		out[k] = snapshotEntry{Available: e.available.String(), Pending: e.pending.String()}
		e.mu.Unlock()
	}
	return json.Marshal(out)
}

// LoadFrom replaces the ledger's contents with a previously exported
// snapshot. It is intended to be called once, before the server starts
// accepting traffic.
func (l *Ledger) LoadFrom(data []byte) error {
	var in map[string]snapshotEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("ledger: decode snapshot: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byKey = make(map[string]*entry, len(in))
	for k, se := range in {
		avail, err := decimal.NewFromString(se.Available)
		if err != nil {
			return fmt.Errorf("ledger: decode available for %s: %w", k, err)
		}
		pend, err := decimal.NewFromString(se.Pending)
		if err != nil {
			return fmt.Errorf("ledger: decode pending for %s: %w", k, err)
		}
		l.byKey[k] = &entry{available: avail, pending: pend}
	}
	metrics.LedgerEntries.Set(float64(len(l.byKey)))
	return nil
}
