package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/poll"
	"github.com/tesseramedia/clipguard/internal/policy"
	"github.com/tesseramedia/clipguard/internal/session"
)

type scriptedStatus struct {
	mu        sync.Mutex
	responses []apibackend.StatusResponse
	errs      []error
	calls     int
}

func (s *scriptedStatus) Status(context.Context, string) (apibackend.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return apibackend.StatusResponse{}, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if i < 0 {
		return apibackend.StatusResponse{}, fmt.Errorf("no scripted response")
	}
	return s.responses[i], nil
}

func (s *scriptedStatus) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type scriptedAnalyzer struct {
	conflicts int
	hardErr   error
	findings  []apibackend.Finding
	summary   string
	calls     int
}

func (a *scriptedAnalyzer) Analyze(context.Context, string, policy.Selector) ([]apibackend.Finding, string, error) {
	a.calls++
	if a.calls <= a.conflicts {
		return nil, "", backendStillProcessing()
	}
	if a.hardErr != nil {
		return nil, "", a.hardErr
	}
	return a.findings, a.summary, nil
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *poll.ManualClock) {
	t.Helper()
	clock := poll.NewManualClock(time.Unix(0, 0))
	cfg.Clock = clock
	if cfg.Status == nil {
		cfg.Status = &scriptedStatus{responses: []apibackend.StatusResponse{{Status: apibackend.StatusProcessing, CurrentStep: "analyzing"}}}
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = &scriptedAnalyzer{}
	}
	o, err := New(cfg)
	require.NoError(t, err)
	return o, clock
}

func pending() apibackend.StatusResponse {
	return apibackend.StatusResponse{Status: apibackend.StatusPending, CurrentStep: "initialized"}
}

func analyzing() apibackend.StatusResponse {
	return apibackend.StatusResponse{Status: apibackend.StatusProcessing, CurrentStep: "analyzing"}
}

func TestAwaitReadyResolvesOnFourthPoll(t *testing.T) {
	t.Parallel()

	status := &scriptedStatus{responses: []apibackend.StatusResponse{pending(), pending(), pending(), analyzing()}}
	o, clock := newTestOrchestrator(t, Config{Status: status})
	require.NoError(t, o.AttachJob("job-7", "https://h/original.mp4"))

	require.NoError(t, o.AwaitReady(context.Background()))
	assert.Equal(t, 4, status.Calls())

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 3)
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, 2*time.Second)
	}
	assert.GreaterOrEqual(t, clock.Now().Sub(time.Unix(0, 0)), 6*time.Second)
}

func TestAwaitReadyTimesOutAfterSixtyAttempts(t *testing.T) {
	t.Parallel()

	status := &scriptedStatus{responses: []apibackend.StatusResponse{pending()}}
	o, _ := newTestOrchestrator(t, Config{Status: status})
	require.NoError(t, o.AttachJob("job-7", ""))

	err := o.AwaitReady(context.Background())
	require.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Equal(t, 60, status.Calls())
}

func TestAwaitReadyCountsQueryFailuresAsAttempts(t *testing.T) {
	t.Parallel()

	status := &scriptedStatus{
		errs:      []error{errors.New("network blip"), errors.New("503")},
		responses: []apibackend.StatusResponse{pending(), pending(), analyzing()},
	}
	o, _ := newTestOrchestrator(t, Config{Status: status})
	require.NoError(t, o.AttachJob("job-7", ""))

	require.NoError(t, o.AwaitReady(context.Background()))
	assert.Equal(t, 3, status.Calls(), "failed queries count as normal poll attempts")
}

func TestAwaitReadyRequiresJob(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{})
	require.Error(t, o.AwaitReady(context.Background()))
}

type fixedProbe struct {
	metadata MediaMetadata
	err      error
}

func (p fixedProbe) Probe(context.Context) (MediaMetadata, error) {
	return p.metadata, p.err
}

func TestPrepareJoinsReadinessAndMetadata(t *testing.T) {
	t.Parallel()

	status := &scriptedStatus{responses: []apibackend.StatusResponse{pending(), analyzing()}}
	o, _ := newTestOrchestrator(t, Config{Status: status})
	require.NoError(t, o.AttachJob("job-7", ""))

	prepared, err := o.Prepare(context.Background(), fixedProbe{
		metadata: MediaMetadata{DurationSeconds: 42.5, Width: 1920, Height: 1080},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-7", prepared.JobID)
	assert.Equal(t, 42.5, prepared.Metadata.DurationSeconds)
	assert.GreaterOrEqual(t, status.Calls(), 2, "readiness polling must have completed")
}

func TestPrepareFailsWhenProbeFails(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{})
	require.NoError(t, o.AttachJob("job-7", ""))

	_, err := o.Prepare(context.Background(), fixedProbe{err: errors.New("no moov atom")})
	require.Error(t, err)
}

func TestSelectorsDriveProfileAndSnapshot(t *testing.T) {
	t.Parallel()

	var persisted []session.Snapshot
	o, _ := newTestOrchestrator(t, Config{
		Persist: func(s session.Snapshot) error {
			persisted = append(persisted, s)
			return nil
		},
	})
	o.SetSelectors("YouTube", "Kids", "Middle East")
	profile := o.Profile()
	assert.Equal(t, "YouTube_Kids_Middle_East", profile.Name)
	assert.Equal(t, policy.ActionBlockSegment, profile.Rule(policy.CategoryAlcohol))

	// No job id yet: the sink sees the snapshot but its Empty() guard holds.
	require.NotEmpty(t, persisted)
	assert.True(t, persisted[len(persisted)-1].Empty())

	require.NoError(t, o.AttachJob("job-7", "https://h/original.mp4"))
	last := persisted[len(persisted)-1]
	assert.Equal(t, "job-7", last.JobID)
	assert.Equal(t, "YouTube", last.Platform)
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t, Config{})
	o.SetSelectors("TikTok", "Teens", "Europe")
	require.NoError(t, o.AttachJob("job-9", "https://h/original.mp4"))
	require.NoError(t, o.AddManualFinding(apibackend.Finding{
		ID: "manual-1", Category: "logos", StartSeconds: 0, EndSeconds: 2,
		Description: "sneaker logo", Severity: apibackend.SeverityWarning, Confidence: 1,
	}))

	snapshot := o.Snapshot()
	restored, _ := newTestOrchestrator(t, Config{})
	require.NoError(t, restored.Restore(snapshot))
	assert.Equal(t, snapshot, restored.Snapshot())
	assert.Equal(t, "job-9", restored.JobID())
	require.Len(t, restored.Findings(), 1)
}
