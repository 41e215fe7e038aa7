package txn

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxLogEntries bounds the rolling transaction log; oldest entries evict first.
const maxLogEntries = 1000

// EntryOperation summarizes one operation inside a logged transaction.
type EntryOperation struct {
	Collection string `json:"collection"`
	Intent     Intent `json:"intent"`
	DocumentID string `json:"document_id"`
}

// Entry is one persisted transaction outcome.
type Entry struct {
	ID          string           `json:"id"`
	State       State            `json:"state"`
	Operations  []EntryOperation `json:"operations"`
	CreatedAt   time.Time        `json:"created_at"`
	CommittedAt time.Time        `json:"committed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Log is the rolling audit log at vimarsh-db/transaction_log.json.
type Log struct {
	mu   sync.Mutex
	path string
}

func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Log{path: filepath.Join(dir, "transaction_log.json")}, nil
}

// Append adds an outcome and evicts beyond the bound.
func (l *Log) Append(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.readLocked()
	if err != nil {
		return err
	}
	entries = append(entries, *entry)
	if len(entries) > maxLogEntries {
		entries = entries[len(entries)-maxLogEntries:]
	}
	return l.writeLocked(entries)
}

// Entries returns the logged outcomes, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *Log) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Log) writeLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
