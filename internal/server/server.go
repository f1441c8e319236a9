// Package server exposes the operator-facing HTTP surface over one session
// orchestrator.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/backend"
	"github.com/tesseramedia/clipguard/internal/job"
	"github.com/tesseramedia/clipguard/internal/orchestrator"
	"github.com/tesseramedia/clipguard/internal/policy"
	"github.com/tesseramedia/clipguard/internal/session"
)

// Server handles operator requests for one remediation session.
type Server struct {
	client     *backend.Client
	orch       *orchestrator.Orchestrator
	resolver   *policy.Resolver
	reconciler *session.Reconciler
	jobs       job.StateStore
	logger     *log.Entry
}

// New wires a server over its collaborators.
func New(client *backend.Client, orch *orchestrator.Orchestrator, resolver *policy.Resolver, reconciler *session.Reconciler, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "server")
	}
	return &Server{
		client:     client,
		orch:       orch,
		resolver:   resolver,
		reconciler: reconciler,
		jobs:       job.NewMemoryStore(),
		logger:     logger,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/session/mount", s.handleSessionMount).Methods(http.MethodPost)
	r.HandleFunc("/v1/session/unload", s.handleSessionUnload).Methods(http.MethodPost)
	r.HandleFunc("/v1/profiles/resolve", s.handleResolveProfile).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}", s.handleJobRecord).Methods(http.MethodGet)
	r.HandleFunc("/v1/jobs/{jobID}/status", s.handleJobStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/jobs/{jobID}/ready", s.handleAwaitReady).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}/analyze", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}/findings", s.handleAddFinding).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}/remediate", s.handleRemediate).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/jobs/{jobID}/history/{version}/toggle", s.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/{jobID}/preview", s.handlePreview).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// handleSessionMount runs the fresh-vs-resume reconciliation for the mounting
// view. A resumed snapshot is loaded back into the orchestrator, so an
// operator reconnecting after a restart continues where the session left off.
func (s *Server) handleSessionMount(w http.ResponseWriter, r *http.Request) {
	snapshot, resumed, err := s.reconciler.Mount(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !resumed {
		s.writeJSON(w, http.StatusOK, map[string]any{"resumed": false})
		return
	}
	if err := s.orch.Restore(snapshot); err != nil {
		s.writeError(w, http.StatusInternalServerError, errors.Wrap(err, "restore session"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"resumed": true,
		"job_id":  snapshot.JobID,
	})
}

// handleSessionUnload clears the session marker so the next mount is treated
// as a fresh load.
func (s *Server) handleSessionUnload(w http.ResponseWriter, r *http.Request) {
	s.reconciler.Unload()
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "unloaded"})
}

type resolveRequest struct {
	Platform string `json:"platform"`
	Rating   string `json:"rating"`
	Region   string `json:"region"`
}

func (s *Server) handleResolveProfile(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode resolve request"))
		return
	}
	s.orch.SetSelectors(req.Platform, req.Rating, req.Region)
	profile := s.resolver.Resolve(policy.Selector{Platform: req.Platform, Rating: req.Rating, Region: req.Region})
	s.writeJSON(w, http.StatusOK, map[string]any{
		"profile_name": profile.Name,
		"rules":        profile.Rules,
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	jobID, err := s.client.Upload(r.Context(), r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	status, err := s.client.Status(r.Context(), jobID)
	if err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("status read after upload failed")
	}
	if err := s.orch.AttachJob(jobID, s.client.MediaURL(status.OriginalVideoURL)); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.rememberJob(r.Context(), jobID, status)
	s.writeJSON(w, http.StatusCreated, apibackend.UploadResponse{JobID: jobID})
}

// handleJobRecord serves the locally cached job record without a backend
// round trip.
func (s *Server) handleJobRecord(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	record, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		var notFound job.NotFoundError
		if errors.As(err, &notFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":             record.ID,
		"status":             record.Status,
		"current_step":       record.CurrentStep,
		"ready":              record.Ready(),
		"original_media_url": record.OriginalMediaURL,
		"edited_media_url":   record.EditedMediaURL,
		"findings":           record.Findings,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	status, err := s.client.Status(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.rememberJob(r.Context(), jobID, status)
	s.writeJSON(w, http.StatusOK, status)
}

// rememberJob mirrors the last backend status read into the local record
// cache together with the session's accumulated findings.
func (s *Server) rememberJob(ctx context.Context, jobID string, status apibackend.StatusResponse) {
	record := job.Record{
		ID:               jobID,
		Status:           status.Status,
		CurrentStep:      status.CurrentStep,
		OriginalMediaURL: s.client.MediaURL(status.OriginalVideoURL),
		EditedMediaURL:   s.client.MediaURL(status.EditedVideoURL),
	}
	if s.orch.JobID() == jobID {
		record.Findings = s.orch.Findings()
	}
	if err := s.jobs.Put(ctx, record); err != nil {
		s.logger.WithError(err).WithField("job_id", jobID).Warn("job record cache update failed")
	}
}

func (s *Server) handleAwaitReady(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	if err := s.orch.AwaitReady(r.Context()); err != nil {
		if errors.Is(err, orchestrator.ErrReadinessTimeout) {
			s.writeError(w, http.StatusGatewayTimeout, err)
			return
		}
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "ready"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	findings, summary, err := s.orch.RunAnalysis(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, apibackend.AnalyzeResponse{Findings: findings, Summary: summary})
}

type addFindingRequest struct {
	Category     string  `json:"category"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Description  string  `json:"description"`
	Severity     string  `json:"severity"`
}

func (s *Server) handleAddFinding(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	var req addFindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode finding request"))
		return
	}
	finding, err := job.NewManualFinding(req.Category, req.StartSeconds, req.EndSeconds, req.Description, apibackend.Severity(req.Severity))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orch.AddManualFinding(finding); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, finding)
}

type remediateRequest struct {
	Action     string   `json:"action"`
	FindingIDs []string `json:"finding_ids"`
	Name       string   `json:"name,omitempty"`
	Batch      bool     `json:"batch,omitempty"`
}

func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	var req remediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode remediate request"))
		return
	}
	action := policy.Action(req.Action)
	if err := action.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Batch {
		versions, err := s.orch.RemediateBatch(r.Context(), action, req.FindingIDs, req.Name)
		if err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
		s.writeJSON(w, http.StatusOK, versions)
		return
	}
	version, err := s.orch.Remediate(r.Context(), action, req.FindingIDs, req.Name)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	log := s.orch.History()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"versions":          log.Versions(),
		"current_media_url": log.CurrentMediaURL(),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "parse version"))
		return
	}
	if err := s.orch.History().Toggle(version); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"state": "toggled"})
}

type previewRequest struct {
	// Pin selects a version for preview; 0 clears the pin.
	Pin *int `json:"pin,omitempty"`
	// ShowOriginal explicitly requests the unedited media.
	ShowOriginal *bool `json:"show_original,omitempty"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.requireAttached(w, r) {
		return
	}
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode preview request"))
		return
	}
	log := s.orch.History()
	if req.Pin != nil {
		if err := log.Pin(*req.Pin); err != nil {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
	}
	if req.ShowOriginal != nil {
		log.SetShowOriginal(*req.ShowOriginal)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"current_media_url": log.CurrentMediaURL()})
}

func (s *Server) requireAttached(w http.ResponseWriter, r *http.Request) bool {
	jobID := mux.Vars(r)["jobID"]
	if s.orch.JobID() == "" || s.orch.JobID() != jobID {
		s.writeError(w, http.StatusNotFound, errors.Errorf("job %q is not attached to this session", jobID))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.WithError(err).WithField("status", status).Debug("request failed")
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
