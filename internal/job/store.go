package job

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StateStore reads and caches job lifecycle records. The remote implementation
// in internal/backend reads live state from the processing backend; the memory
// implementation backs tests and the local runner.
type StateStore interface {
	Get(ctx context.Context, jobID string) (Record, error)
	Put(ctx context.Context, record Record) error
}

// NotFoundError reports a job id the store has never seen.
type NotFoundError struct {
	JobID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("job %q not found", e.JobID)
}

// MemoryStore is an in-process StateStore keyed by job id.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns the stored record for jobID.
func (s *MemoryStore) Get(_ context.Context, jobID string) (Record, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Record{}, fmt.Errorf("job_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[jobID]
	if !ok {
		return Record{}, NotFoundError{JobID: jobID}
	}
	return record, nil
}

// Put stores or replaces the record for its job id.
func (s *MemoryStore) Put(_ context.Context, record Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("job_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}
