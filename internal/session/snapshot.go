// Package session persists and reconciles operator session state across
// client navigation events.
package session

import (
	"fmt"
	"strings"

	"github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/history"
)

// StorageKey is the single fixed key under which the snapshot is persisted.
const StorageKey = "clipguard.session.v1"

// Snapshot is the persisted session: job identity, profile selectors,
// findings, edit history, and the shared batch-progress state. It is valid
// only within one continuous session; a hard reload discards it.
type Snapshot struct {
	JobID           string            `json:"job_id"`
	Platform        string            `json:"platform"`
	Rating          string            `json:"rating"`
	Region          string            `json:"region"`
	Findings        []backend.Finding `json:"findings"`
	History         history.Snapshot  `json:"edit_history"`
	BatchInProgress bool              `json:"batch_in_progress"`
	BatchProgress   string            `json:"batch_progress,omitempty"`
}

// Empty reports whether there is anything worth persisting yet. Nothing is
// persisted before a job id exists.
func (s Snapshot) Empty() bool {
	return strings.TrimSpace(s.JobID) == ""
}

// Validate checks the snapshot invariants a restore relies on: a job id,
// well-formed findings, and contiguous history numbering.
func (s Snapshot) Validate() error {
	if s.Empty() {
		return fmt.Errorf("job_id is required")
	}
	for _, finding := range s.Findings {
		if err := finding.Validate(); err != nil {
			return fmt.Errorf("finding %s: %w", finding.ID, err)
		}
	}
	if _, err := history.Restore(s.History); err != nil {
		return fmt.Errorf("edit_history: %w", err)
	}
	return nil
}
