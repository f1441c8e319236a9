// Package backend defines the wire contract consumed from the external
// video-processing backend. The backend owns job state; this package only
// mirrors its payload shapes.
package backend

import (
	"fmt"
	"strings"
)

// JobStatus is the backend-reported lifecycle status of a processing job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Validate rejects statuses outside the wire contract.
func (s JobStatus) Validate() error {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("unsupported job status %q", string(s))
	}
}

// StepInitialized is the pre-extraction step reported before the backend has
// touched the uploaded media. A job is not analyzable while in this step.
const StepInitialized = "initialized"

// StatusResponse mirrors GET /status/{jobId}.
type StatusResponse struct {
	Status           JobStatus `json:"status"`
	CurrentStep      string    `json:"current_step"`
	OriginalVideoURL string    `json:"original_video_url,omitempty"`
	EditedVideoURL   string    `json:"edited_video_url,omitempty"`
}

// Ready reports whether the job can accept analysis or remediation calls.
func (s StatusResponse) Ready() bool {
	return s.Status != StatusPending && s.CurrentStep != StepInitialized
}

// Validate enforces the status payload invariants.
func (s StatusResponse) Validate() error {
	if err := s.Status.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(s.CurrentStep) == "" {
		return fmt.Errorf("current_step is required")
	}
	return nil
}

// Severity classifies a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Validate rejects severities outside the wire contract.
func (s Severity) Validate() error {
	switch s {
	case SeverityCritical, SeverityWarning:
		return nil
	default:
		return fmt.Errorf("unsupported severity %q", string(s))
	}
}

// SpatialRegion is an optional normalized bounding box for a visual finding.
type SpatialRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Finding mirrors one detected candidate violation in an analyze response.
type Finding struct {
	ID           string         `json:"id"`
	Category     string         `json:"category"`
	StartSeconds float64        `json:"start_seconds"`
	EndSeconds   float64        `json:"end_seconds"`
	Description  string         `json:"description"`
	Severity     Severity       `json:"severity"`
	Confidence   float64        `json:"confidence"`
	Region       *SpatialRegion `json:"region,omitempty"`
}

// Validate enforces finding invariants from the analyze contract.
func (f Finding) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("finding id is required")
	}
	if strings.TrimSpace(f.Category) == "" {
		return fmt.Errorf("finding category is required")
	}
	if f.StartSeconds < 0 {
		return fmt.Errorf("start_seconds must be >= 0")
	}
	if f.EndSeconds < f.StartSeconds {
		return fmt.Errorf("end_seconds must be >= start_seconds")
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("confidence must be within [0,1]")
	}
	return f.Severity.Validate()
}

// AnalyzeResponse mirrors POST /analyze-video/{jobId}.
type AnalyzeResponse struct {
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary,omitempty"`
}

// UploadResponse mirrors POST /upload.
type UploadResponse struct {
	JobID string `json:"job_id"`
}
