// Package job models the lifecycle of one remediation job as observed from
// the external processing backend.
package job

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tesseramedia/clipguard/api/backend"
)

// Record is the locally tracked view of one backend job. The backend owns the
// authoritative lifecycle; this record only mirrors what the last status read
// reported, plus findings accumulated in this session.
type Record struct {
	ID               string
	Status           backend.JobStatus
	CurrentStep      string
	OriginalMediaURL string
	EditedMediaURL   string
	Findings         []backend.Finding
}

// Ready reports whether the backend has finished ingesting the media.
func (r Record) Ready() bool {
	return backend.StatusResponse{Status: r.Status, CurrentStep: r.CurrentStep}.Ready()
}

// ManualFindingPrefix marks operator-entered findings. Backend ids never use
// it, so manual ids cannot collide with backend-issued ones.
const ManualFindingPrefix = "manual-"

// NewManualFinding builds an operator-entered finding with a fresh unique id.
func NewManualFinding(category string, startSeconds, endSeconds float64, description string, severity backend.Severity) (backend.Finding, error) {
	finding := backend.Finding{
		ID:           ManualFindingPrefix + uuid.NewString(),
		Category:     strings.TrimSpace(category),
		StartSeconds: startSeconds,
		EndSeconds:   endSeconds,
		Description:  strings.TrimSpace(description),
		Severity:     severity,
		Confidence:   1,
	}
	if err := finding.Validate(); err != nil {
		return backend.Finding{}, fmt.Errorf("manual finding: %w", err)
	}
	return finding, nil
}

// IsManualFinding reports whether an id was operator-issued.
func IsManualFinding(id string) bool {
	return strings.HasPrefix(id, ManualFindingPrefix)
}
