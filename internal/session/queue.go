package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultQueueLimit bounds the pending queue; the oldest record is dropped
// when a new one would exceed it.
const DefaultQueueLimit = 100

// PendingQueue holds completed records that have not been confirmed delivered
// to the collector. Records only leave the queue on an explicit Remove after a
// successful send; there is no retry scheduler, so a failed record stays put
// until the daemon restarts and reloads it from disk.
//
// The queue is persisted after every mutation so pending records survive a
// process restart.
type PendingQueue struct {
	mu      sync.Mutex
	path    string // "" disables persistence (tests)
	limit   int
	records []Record
}

// NewPendingQueue returns a queue persisted at path, loading any records left
// over from a previous run. A non-positive limit falls back to
// DefaultQueueLimit.
func NewPendingQueue(path string, limit int) (*PendingQueue, error) {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	q := &PendingQueue{path: path, limit: limit}

	if path == "" {
		return q, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return q, nil
		}
		return nil, fmt.Errorf("reading pending queue: %w", err)
	}
	if err := json.Unmarshal(data, &q.records); err != nil {
		return nil, fmt.Errorf("parsing pending queue: %w", err)
	}
	if len(q.records) > q.limit {
		q.records = q.records[len(q.records)-q.limit:]
	}
	return q, nil
}

// Append adds a record, dropping the oldest entry if the queue is full.
func (q *PendingQueue) Append(r Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.records = append(q.records, r)
	if len(q.records) > q.limit {
		q.records = q.records[len(q.records)-q.limit:]
	}
	return q.persist()
}

// Remove deletes the record whose session ID matches id. Removing an unknown
// id is a no-op.
func (q *PendingQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, r := range q.records {
		if r.Session.ID == id {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return q.persist()
		}
	}
	return nil
}

// Len reports the number of pending records.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Records returns a copy of the pending records, oldest first.
func (q *PendingQueue) Records() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, len(q.records))
	copy(out, q.records)
	return out
}

// persist writes the queue atomically via a temp file + os.Rename.
// Caller must hold q.mu.
func (q *PendingQueue) persist() error {
	if q.path == "" {
		return nil
	}

	data, err := json.Marshal(q.records)
	if err != nil {
		return fmt.Errorf("failed to persist pending queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), "pending-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist pending queue: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist pending queue: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist pending queue: %w", err)
	}
	if err = os.Rename(tmpName, q.path); err != nil {
		return fmt.Errorf("failed to persist pending queue: %w", err)
	}
	return nil
}
