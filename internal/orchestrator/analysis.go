package orchestrator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	backendclient "github.com/tesseramedia/clipguard/internal/backend"
)

// AnalysisState is one node of the analysis-invocation state machine.
type AnalysisState string

const (
	AnalysisIdle       AnalysisState = "idle"
	AnalysisRequesting AnalysisState = "requesting"
	AnalysisBackoff    AnalysisState = "backoff"
	AnalysisSucceeded  AnalysisState = "succeeded"
	AnalysisFailed     AnalysisState = "failed"
)

// AnalysisEvent classifies one backend response.
type AnalysisEvent string

const (
	EventBegin       AnalysisEvent = "begin"
	EventConflict    AnalysisEvent = "conflict"     // 409, media still processing
	EventHardFailure AnalysisEvent = "hard_failure" // non-2xx, non-409
	EventSuccess     AnalysisEvent = "success"
	EventRetryWait   AnalysisEvent = "retry_wait"
	EventExhausted   AnalysisEvent = "exhausted"
)

// analysisTransitions is the full transition table. Keeping it explicit makes
// every state/event pair unit-testable instead of buried in branches.
var analysisTransitions = map[AnalysisState]map[AnalysisEvent]AnalysisState{
	AnalysisIdle: {
		EventBegin: AnalysisRequesting,
	},
	AnalysisRequesting: {
		EventSuccess:     AnalysisSucceeded,
		EventConflict:    AnalysisBackoff,
		EventExhausted:   AnalysisFailed,
		EventHardFailure: AnalysisFailed,
	},
	AnalysisBackoff: {
		EventRetryWait: AnalysisRequesting,
	},
}

// transitionAnalysis applies one event, rejecting pairs outside the table.
func transitionAnalysis(state AnalysisState, event AnalysisEvent) (AnalysisState, error) {
	next, ok := analysisTransitions[state][event]
	if !ok {
		return state, fmt.Errorf("no analysis transition from %s on %s", state, event)
	}
	return next, nil
}

// AnalysisError is the terminal failure of one analysis run.
type AnalysisError struct {
	JobID    string
	Attempts int
	Cause    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of job %s failed after %d attempt(s): %v", e.JobID, e.Attempts, e.Cause)
}

func (e *AnalysisError) Unwrap() error { return e.Cause }

// RunAnalysis invokes the backend analysis stage under the conflict-retry
// state machine: a 409 backs off for the fixed delay and retries up to the
// attempt budget; any other failure is terminal. On success the findings
// replace the session's list; on terminal failure the list is cleared to an
// empty result, never left stale.
func (o *Orchestrator) RunAnalysis(ctx context.Context) ([]apibackend.Finding, string, error) {
	jobID := o.JobID()
	if jobID == "" {
		return nil, "", fmt.Errorf("no job attached")
	}
	o.mu.Lock()
	sel := o.sel
	o.mu.Unlock()

	state := AnalysisIdle
	var terminal error
	for attempt := 1; attempt <= o.analysis.MaxAttempts; attempt++ {
		var err error
		if state == AnalysisIdle {
			state, err = transitionAnalysis(state, EventBegin)
		} else {
			state, err = transitionAnalysis(state, EventRetryWait)
		}
		if err != nil {
			return nil, "", err
		}

		findings, summary, invokeErr := o.analyzer.Analyze(ctx, jobID, sel)
		switch {
		case invokeErr == nil:
			state, _ = transitionAnalysis(state, EventSuccess)
			o.setFindings(findings)
			o.logger.WithFields(log.Fields{
				"job_id": jobID, "attempt": attempt, "findings": len(findings),
			}).Info("analysis succeeded")
			return findings, summary, nil

		case errors.Is(invokeErr, backendclient.ErrStillProcessing):
			if attempt == o.analysis.MaxAttempts {
				state, _ = transitionAnalysis(state, EventExhausted)
				terminal = &AnalysisError{JobID: jobID, Attempts: attempt, Cause: invokeErr}
			} else {
				state, _ = transitionAnalysis(state, EventConflict)
				analysisRetries.Inc()
				o.logger.WithFields(log.Fields{"job_id": jobID, "attempt": attempt}).
					Debug("media still processing, backing off")
				if sleepErr := o.clock.Sleep(ctx, o.analysis.Backoff); sleepErr != nil {
					return nil, "", sleepErr
				}
			}

		case ctx.Err() != nil:
			return nil, "", ctx.Err()

		default:
			state, _ = transitionAnalysis(state, EventHardFailure)
			terminal = &AnalysisError{JobID: jobID, Attempts: attempt, Cause: invokeErr}
		}

		if state == AnalysisFailed {
			break
		}
	}

	o.setFindings(nil)
	o.logger.WithError(terminal).WithField("job_id", jobID).Warn("analysis failed")
	return nil, "", terminal
}

func (o *Orchestrator) setFindings(findings []apibackend.Finding) {
	o.mu.Lock()
	o.findings = append([]apibackend.Finding(nil), findings...)
	o.mu.Unlock()
	o.persistSnapshot()
}
