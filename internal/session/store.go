package session

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Store persists the session snapshot under StorageKey. Implementations have
// single-writer semantics: only the active reconciler writes, last writer
// wins, no merge logic.
type Store interface {
	// Load returns the stored snapshot; ok is false when none is stored.
	Load() (snapshot Snapshot, ok bool, err error)
	Save(snapshot Snapshot) error
	Clear() error
}

// MemoryStore keeps the serialized snapshot in process memory. It serializes
// through JSON so corruption and round-trip behavior match durable stores.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the stored snapshot, if any.
func (s *MemoryStore) Load() (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return Snapshot{}, false, nil
	}
	var snapshot Snapshot
	if err := json.Unmarshal(s.payload, &snapshot); err != nil {
		return Snapshot{}, false, errors.Wrap(err, "decode session snapshot")
	}
	return snapshot, true, nil
}

// Save serializes and stores the snapshot.
func (s *MemoryStore) Save(snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode session snapshot")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = payload
	return nil
}

// Clear drops any stored snapshot.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}

// Corrupt overwrites the stored payload with invalid JSON. Test hook for the
// reconciler's corrupt-snapshot path.
func (s *MemoryStore) Corrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = []byte("{not-json")
}
