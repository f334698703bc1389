// Package ledger records document state transitions in an append-only,
// hash-chained sequence. Any retroactive edit to a stored entry or to the
// sealed bytes it covers is detectable by Verify.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Action classifies a ledger entry.
type Action string

const (
	ActionIssued    Action = "issued"
	ActionReceived  Action = "received"
	ActionConverted Action = "converted"
	ActionRejected  Action = "rejected"
)

// GenesisHash is the sentinel previous-hash of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable audit record. EntryHash covers the canonical
// encoding of all other fields; PrevHash is the EntryHash of the prior entry.
type Entry struct {
	Seq           uint64    `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	DocumentID    string    `json:"document_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Action        Action    `json:"action"`
	ContentHash   string    `json:"content_hash"`
	PrevHash      string    `json:"prev_hash"`
	EntryHash     string    `json:"entry_hash"`
}

// canonical is the fixed-format encoding hashed into EntryHash. Field order
// and separators are part of the on-disk contract.
func (e Entry) canonical() []byte {
	return []byte(strings.Join([]string{
		strconv.FormatUint(e.Seq, 10),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.DocumentID,
		e.InvoiceNumber,
		string(e.Action),
		e.ContentHash,
		e.PrevHash,
	}, "|"))
}

// ComputeHash returns the hash of the entry's canonical encoding.
func (e Entry) ComputeHash() string {
	sum := sha256.Sum256(e.canonical())
	return hex.EncodeToString(sum[:])
}

// HashContent hashes sealed document bytes for the ContentHash field.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IntegrityError reports the first hash-chain break found by Verify. It is
// fatal: the ledger is never auto-repaired.
type IntegrityError struct {
	Seq     uint64
	Message string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation at entry %d: %s", e.Seq, e.Message)
}

// Store is the persistence boundary: an ordered log keyed by sequence
// number. The engine ships a memory store; durable storage is the
// persistence collaborator's concern.
type Store interface {
	// Append persists an entry. Fails only on storage I/O.
	Append(e Entry) error

	// Read returns the entry with the given sequence number.
	Read(seq uint64) (Entry, error)

	// Tail returns the last entry, or ok=false on an empty log.
	Tail() (Entry, bool, error)

	// Entries returns all entries in sequence order.
	Entries() ([]Entry, error)
}

// MemoryStore is the in-process Store used by tests and the CLI.
type MemoryStore struct {
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(e Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Read(seq uint64) (Entry, error) {
	if seq == 0 || seq > uint64(len(s.entries)) {
		return Entry{}, fmt.Errorf("no entry with seq %d", seq)
	}
	return s.entries[seq-1], nil
}

func (s *MemoryStore) Tail() (Entry, bool, error) {
	if len(s.entries) == 0 {
		return Entry{}, false, nil
	}
	return s.entries[len(s.entries)-1], true, nil
}

func (s *MemoryStore) Entries() ([]Entry, error) {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Tamper overwrites a stored entry in place. Test hook for integrity checks.
func (s *MemoryStore) Tamper(seq uint64, mutate func(*Entry)) error {
	if seq == 0 || seq > uint64(len(s.entries)) {
		return fmt.Errorf("no entry with seq %d", seq)
	}
	mutate(&s.entries[seq-1])
	return nil
}

// Stats aggregates the ledger per action.
type Stats struct {
	Total   uint64            `json:"total"`
	Actions map[Action]uint64 `json:"actions"`
}

// Ledger serializes appends onto a Store and verifies the chain. Append
// holds a single mutual-exclusion point so concurrent callers can never race
// on the previous-entry hash; Verify takes the same lock for a consistent
// snapshot.
type Ledger struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// New creates a ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Append records a state transition for the sealed content and returns the
// chained entry. All-or-nothing: on store failure no partial entry exists.
func (l *Ledger) Append(documentID, invoiceNumber string, action Action, content []byte) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail, ok, err := l.store.Tail()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Seq:           1,
		Timestamp:     l.now().UTC(),
		DocumentID:    documentID,
		InvoiceNumber: invoiceNumber,
		Action:        action,
		ContentHash:   HashContent(content),
		PrevHash:      GenesisHash,
	}
	if ok {
		entry.Seq = tail.Seq + 1
		entry.PrevHash = tail.EntryHash
	}
	entry.EntryHash = entry.ComputeHash()

	if err := l.store.Append(entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Verify walks the full chain, recomputing every hash, and returns the first
// break found as an IntegrityError. A nil return means the chain is intact.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.store.Entries()
	if err != nil {
		return err
	}

	prevHash := GenesisHash
	var prevSeq uint64
	for _, e := range entries {
		if e.Seq != prevSeq+1 {
			return &IntegrityError{Seq: e.Seq, Message: fmt.Sprintf("sequence gap after %d", prevSeq)}
		}
		if e.PrevHash != prevHash {
			return &IntegrityError{Seq: e.Seq, Message: "previous-hash link broken"}
		}
		if recomputed := e.ComputeHash(); recomputed != e.EntryHash {
			return &IntegrityError{Seq: e.Seq, Message: "entry hash does not match canonical encoding"}
		}
		prevHash = e.EntryHash
		prevSeq = e.Seq
	}
	return nil
}

// VerifyContent checks sealed document bytes against the hash stored at the
// given sequence number.
func (l *Ledger) VerifyContent(seq uint64, content []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.store.Read(seq)
	if err != nil {
		return err
	}
	if HashContent(content) != entry.ContentHash {
		return &IntegrityError{Seq: seq, Message: "document bytes do not match recorded content hash"}
	}
	return nil
}

// Entries returns a consistent snapshot of the full log.
func (l *Ledger) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Entries()
}

// Stats aggregates entry counts per action.
func (l *Ledger) Stats() (Stats, error) {
	entries, err := l.Entries()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Actions: make(map[Action]uint64)}
	for _, e := range entries {
		stats.Total++
		stats.Actions[e.Action]++
	}
	return stats, nil
}
