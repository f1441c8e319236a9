// Package orchestrator drives one remediation job through readiness polling,
// analysis invocation with conflict retry, and per-finding remediation,
// recording every applied action into the session's edit history.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/history"
	"github.com/tesseramedia/clipguard/internal/poll"
	"github.com/tesseramedia/clipguard/internal/policy"
	"github.com/tesseramedia/clipguard/internal/session"
)

// ErrReadinessTimeout reports that the job never left its ingest phase within
// the polling budget. Callers surface it as an operator-visible error.
var ErrReadinessTimeout = errors.New("orchestrator: job did not become ready in time")

// StatusReader reads live job state from the processing backend.
type StatusReader interface {
	Status(ctx context.Context, jobID string) (apibackend.StatusResponse, error)
}

// Analyzer invokes the backend analysis stage. Re-invocation is safe: the
// backend never creates duplicate findings for a repeated request, so the
// client performs no local de-duplication.
type Analyzer interface {
	Analyze(ctx context.Context, jobID string, sel policy.Selector) ([]apibackend.Finding, string, error)
}

// ApplyRequest asks the external executor to run one remediation action over
// the given findings.
type ApplyRequest struct {
	JobID    string
	Action   policy.Action
	Findings []apibackend.Finding
}

// ApplyResult carries the executor-produced edited media reference.
type ApplyResult struct {
	MediaURL string
}

// ActionExecutor performs the actual codec work (blur, pixelate, replace,
// dub, beep). It is an external collaborator.
type ActionExecutor interface {
	Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error)
}

// RetryPolicy bounds the analysis conflict-retry loop.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Config wires an orchestrator for one operator session.
type Config struct {
	Status    StatusReader
	Analyzer  Analyzer
	Executor  ActionExecutor
	Resolver  *policy.Resolver
	Clock     poll.Clock
	Readiness poll.Policy
	Analysis  RetryPolicy
	// Persist receives the session snapshot after every mutation. The sink
	// owns single-writer discipline; nil disables persistence.
	Persist func(session.Snapshot) error
	Logger  *log.Entry
}

// Orchestrator holds the single logical thread of control for one session.
// Polling and retries are strictly sequential; only readiness polling and
// metadata probing ever run concurrently, joined in Prepare.
type Orchestrator struct {
	status   StatusReader
	analyzer Analyzer
	executor ActionExecutor
	resolver *policy.Resolver
	clock    poll.Clock
	ready    poll.Policy
	analysis RetryPolicy
	persist  func(session.Snapshot) error
	logger   *log.Entry

	mu              sync.Mutex
	sel             policy.Selector
	jobID           string
	findings        []apibackend.Finding
	log             *history.Log
	batchInProgress bool
	batchProgress   string
}

// New validates the configuration and returns a session orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Status == nil {
		return nil, fmt.Errorf("status reader is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.Resolver == nil {
		cfg.Resolver = policy.NewResolver()
	}
	if cfg.Clock == nil {
		cfg.Clock = poll.SystemClock{}
	}
	if cfg.Readiness.MaxAttempts < 1 {
		cfg.Readiness.MaxAttempts = 60
	}
	if cfg.Readiness.Interval <= 0 {
		cfg.Readiness.Interval = 2 * time.Second
	}
	if cfg.Analysis.MaxAttempts < 1 {
		cfg.Analysis.MaxAttempts = 5
	}
	if cfg.Analysis.Backoff <= 0 {
		cfg.Analysis.Backoff = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.WithField("component", "orchestrator")
	}
	return &Orchestrator{
		status:   cfg.Status,
		analyzer: cfg.Analyzer,
		executor: cfg.Executor,
		resolver: cfg.Resolver,
		clock:    cfg.Clock,
		ready:    cfg.Readiness,
		analysis: cfg.Analysis,
		persist:  cfg.Persist,
		logger:   cfg.Logger,
		log:      history.NewLog(""),
	}, nil
}

// SetSelectors records the compliance context. The enforcement profile is
// always recomputed from the selectors, never stored independently.
func (o *Orchestrator) SetSelectors(platform, rating, region string) {
	o.mu.Lock()
	o.sel = policy.Selector{Platform: platform, Rating: rating, Region: region}
	o.mu.Unlock()
	o.persistSnapshot()
}

// Profile resolves the enforcement profile for the current selectors.
func (o *Orchestrator) Profile() policy.Profile {
	o.mu.Lock()
	sel := o.sel
	o.mu.Unlock()
	return o.resolver.Resolve(sel)
}

// AttachJob binds the session to a backend-issued job id and starts a fresh
// edit history over the job's original media.
func (o *Orchestrator) AttachJob(jobID, originalMediaURL string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}
	o.mu.Lock()
	o.jobID = jobID
	o.findings = nil
	o.log = history.NewLog(originalMediaURL)
	o.batchInProgress = false
	o.batchProgress = ""
	o.mu.Unlock()
	o.persistSnapshot()
	return nil
}

// JobID returns the bound job id, empty before AttachJob.
func (o *Orchestrator) JobID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobID
}

// Findings returns a copy of the current findings list.
func (o *Orchestrator) Findings() []apibackend.Finding {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]apibackend.Finding, len(o.findings))
	copy(out, o.findings)
	return out
}

// History exposes the session's edit history.
func (o *Orchestrator) History() *history.Log {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log
}

// AwaitReady polls job status until the backend reports the media ingested:
// status outside pending and a current step past "initialized". Query
// failures count as ordinary attempts; exhaustion returns
// ErrReadinessTimeout, bounding the worst-case wait to interval*attempts.
func (o *Orchestrator) AwaitReady(ctx context.Context) error {
	jobID := o.JobID()
	if jobID == "" {
		return fmt.Errorf("no job attached")
	}
	err := poll.Until(ctx, o.clock, o.ready, func(ctx context.Context) (bool, error) {
		readinessPollAttempts.Inc()
		status, err := o.status.Status(ctx, jobID)
		if err != nil {
			o.logger.WithError(err).WithField("job_id", jobID).Debug("readiness poll failed")
			return false, err
		}
		return status.Ready(), nil
	})
	if errors.Is(err, poll.ErrTimedOut) {
		return errors.Wrapf(ErrReadinessTimeout, "job %s after %d attempts", jobID, o.ready.MaxAttempts)
	}
	return err
}

// MediaMetadata is the client-observed shape of the raw media.
type MediaMetadata struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// MetadataProbe derives duration/resolution from the raw media locally.
type MetadataProbe interface {
	Probe(ctx context.Context) (MediaMetadata, error)
}

// Prepared is the joined result of readiness polling and metadata probing.
type Prepared struct {
	JobID    string
	Metadata MediaMetadata
}

// Prepare runs readiness polling and the metadata probe concurrently. The two
// are independent, but both must complete before the combined result is
// consumed downstream; a failure on either side fails the whole step.
func (o *Orchestrator) Prepare(ctx context.Context, probe MetadataProbe) (Prepared, error) {
	jobID := o.JobID()
	if jobID == "" {
		return Prepared{}, fmt.Errorf("no job attached")
	}

	var metadata MediaMetadata
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return o.AwaitReady(groupCtx)
	})
	group.Go(func() error {
		if probe == nil {
			return nil
		}
		probed, err := probe.Probe(groupCtx)
		if err != nil {
			return errors.Wrap(err, "metadata probe")
		}
		metadata = probed
		return nil
	})
	if err := group.Wait(); err != nil {
		return Prepared{}, err
	}
	return Prepared{JobID: jobID, Metadata: metadata}, nil
}

// AddManualFinding appends an operator-entered finding to the session.
func (o *Orchestrator) AddManualFinding(finding apibackend.Finding) error {
	if err := finding.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	o.findings = append(o.findings, finding)
	o.mu.Unlock()
	o.persistSnapshot()
	return nil
}

func (o *Orchestrator) persistSnapshot() {
	if o.persist == nil {
		return
	}
	snapshot := o.Snapshot()
	if err := o.persist(snapshot); err != nil {
		o.logger.WithError(err).Warn("snapshot persistence failed")
	}
}

// Snapshot captures the full session state for persistence.
func (o *Orchestrator) Snapshot() session.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	findings := make([]apibackend.Finding, len(o.findings))
	copy(findings, o.findings)
	return session.Snapshot{
		JobID:           o.jobID,
		Platform:        o.sel.Platform,
		Rating:          o.sel.Rating,
		Region:          o.sel.Region,
		Findings:        findings,
		History:         o.log.Snapshot(),
		BatchInProgress: o.batchInProgress,
		BatchProgress:   o.batchProgress,
	}
}

// Restore rebuilds session state from a reconciled snapshot.
func (o *Orchestrator) Restore(snapshot session.Snapshot) error {
	restored, err := history.Restore(snapshot.History)
	if err != nil {
		return errors.Wrap(err, "restore edit history")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobID = snapshot.JobID
	o.sel = policy.Selector{Platform: snapshot.Platform, Rating: snapshot.Rating, Region: snapshot.Region}
	o.findings = append([]apibackend.Finding(nil), snapshot.Findings...)
	o.log = restored
	o.batchInProgress = snapshot.BatchInProgress
	o.batchProgress = snapshot.BatchProgress
	return nil
}
