// Package store implements the contract server's durable filesystem
// layout: settled-share-token archive, unsettled recovery dump, a
// balances snapshot, and a per-process-start event log. The layout is
// deliberately simple: there is no transactional KV layer here.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wireskip-contract/internal/contract/model"
)

// Store roots every durable artifact under a single directory.
type Store struct {
	root string
}

// New ensures root, root/archive and root/unsettled exist and returns a
// Store rooted there.
func New(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "archive"), filepath.Join(root, "unsettled")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

func stPath(base, skPK, relayPK, sig string) string {
	return filepath.Join(base, skPK, relayPK, sig)
}

func (s *Store) writeST(subdir string, st *model.Sharetoken) error {
	path := stPath(filepath.Join(s.root, subdir), st.PublicKey.String(), st.RelayPubkey.String(), st.Signature.String())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ArchiveST persists a settled share token under archive/<sk>/<relay>/<sig>.
func (s *Store) ArchiveST(st *model.Sharetoken) error { return s.writeST("archive", st) }

// UnsettledST persists a not-yet-settled share token under
// unsettled/<sk>/<relay>/<sig> -- a recovery aid written at shutdown,
// never auto-reloaded into the tracker's heap.
func (s *Store) UnsettledST(st *model.Sharetoken) error { return s.writeST("unsettled", st) }

func (s *Store) balancesPath() string { return filepath.Join(s.root, "balances.json") }

// SaveBalances writes the ledger's exported snapshot to balances.json.
func (s *Store) SaveBalances(data []byte) error {
	return os.WriteFile(s.balancesPath(), data, 0o644)
}

// LoadBalances reads balances.json if present. ok is false if the file
// does not exist yet (a fresh contract server with no prior balances).
func (s *Store) LoadBalances() (data []byte, ok bool, err error) {
	data, err = os.ReadFile(s.balancesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Event is one tracker log entry, stamped with the unix-seconds it was
// recorded at.
type Event struct {
	Utime int64       `json:"-"`
	Kind  string      `json:"kind"`
	Data  interface{} `json:"data,omitempty"`
}

// MarshalJSON renders an Event as a [utime, event] tuple.
func (e Event) MarshalJSON() ([]byte, error) {
	body := struct {
		Kind string      `json:"kind"`
		Data interface{} `json:"data,omitempty"`
	}{e.Kind, e.Data}
	return json.Marshal([2]interface{}{e.Utime, body})
}

// Log is the append-only-in-spirit tracker event log, rotated once per
// process start. Events are buffered in memory and the whole document
// is rewritten on Flush.
type Log struct {
	mu     sync.Mutex
	path   string
	start  int64
	events []Event
}

// NewLog returns the event log for this process's lifetime. Nothing is
// written until Flush, which creates or rewrites contract_<start>.log.
func (s *Store) NewLog(start int64) *Log {
	return &Log{path: filepath.Join(s.root, fmt.Sprintf("contract_%d.log", start)), start: start}
}

// Append records one event, stamped with utime.
func (l *Log) Append(utime int64, kind string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{Utime: utime, Kind: kind, Data: data})
}

// Flush rewrites the whole log document to disk.
func (l *Log) Flush() error {
	l.mu.Lock()
	doc := struct {
		Start  int64   `json:"start"`
		Events []Event `json:"events"`
	}{l.start, append([]Event(nil), l.events...)}
	l.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal log: %w", err)
	}
	return os.WriteFile(l.path, data, 0o644)
}
