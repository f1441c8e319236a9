package orchestrator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	backendclient "github.com/tesseramedia/clipguard/internal/backend"
	"github.com/tesseramedia/clipguard/internal/history"
	"github.com/tesseramedia/clipguard/internal/policy"
)

// Remediate applies one action to the findings named by id and appends the
// result as a new edit version. The returned version carries the executor's
// media reference with a cache-busting parameter already applied.
func (o *Orchestrator) Remediate(ctx context.Context, action policy.Action, findingIDs []string, name string) (history.Version, error) {
	if o.executor == nil {
		return history.Version{}, fmt.Errorf("no action executor configured")
	}
	jobID := o.JobID()
	if jobID == "" {
		return history.Version{}, fmt.Errorf("no job attached")
	}
	selected, err := o.selectFindings(findingIDs)
	if err != nil {
		return history.Version{}, err
	}

	result, err := o.executor.Apply(ctx, ApplyRequest{JobID: jobID, Action: action, Findings: selected})
	if err != nil {
		return history.Version{}, errors.Wrapf(err, "apply %s to job %s", action, jobID)
	}

	mediaURL := result.MediaURL
	if mediaURL != "" {
		mediaURL = backendclient.CacheBust(mediaURL, o.clock.Now())
	}
	categories := make(map[string]string, len(selected))
	for _, finding := range selected {
		categories[finding.ID] = finding.Category
	}

	o.mu.Lock()
	version, appendErr := o.log.Append(history.Action{
		Type:         action,
		FindingIDs:   findingIDs,
		CategoryByID: categories,
		Name:         name,
		MediaURL:     mediaURL,
		CreatedAt:    o.clock.Now(),
	})
	o.mu.Unlock()
	if appendErr != nil {
		return history.Version{}, appendErr
	}

	remediationsApplied.Inc()
	o.persistSnapshot()
	o.logger.WithFields(log.Fields{
		"job_id":  jobID,
		"action":  string(action),
		"version": version.Version,
	}).Info("remediation applied")
	return version, nil
}

// RemediateBatch resolves multiple findings as one logical unit of work with
// one shared in-progress flag and progress text, both persisted so any view
// of the session can read them. Actions are applied sequentially; the first
// failure aborts the rest of the batch.
func (o *Orchestrator) RemediateBatch(ctx context.Context, action policy.Action, findingIDs []string, name string) ([]history.Version, error) {
	if len(findingIDs) == 0 {
		return nil, fmt.Errorf("at least one finding id is required")
	}
	o.setBatchProgress(true, fmt.Sprintf("resolving 0 of %d", len(findingIDs)))
	defer o.setBatchProgress(false, "")

	versions := make([]history.Version, 0, len(findingIDs))
	for i, findingID := range findingIDs {
		if err := ctx.Err(); err != nil {
			return versions, err
		}
		version, err := o.Remediate(ctx, action, []string{findingID}, name)
		if err != nil {
			return versions, errors.Wrapf(err, "batch item %d of %d", i+1, len(findingIDs))
		}
		versions = append(versions, version)
		o.setBatchProgress(true, fmt.Sprintf("resolving %d of %d", i+1, len(findingIDs)))
	}
	return versions, nil
}

// BatchStatus reports the shared batch flag and progress text.
func (o *Orchestrator) BatchStatus() (bool, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batchInProgress, o.batchProgress
}

func (o *Orchestrator) setBatchProgress(inProgress bool, progress string) {
	o.mu.Lock()
	o.batchInProgress = inProgress
	o.batchProgress = progress
	o.mu.Unlock()
	o.persistSnapshot()
}

func (o *Orchestrator) selectFindings(findingIDs []string) ([]apibackend.Finding, error) {
	if len(findingIDs) == 0 {
		return nil, fmt.Errorf("at least one finding id is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	byID := make(map[string]apibackend.Finding, len(o.findings))
	for _, finding := range o.findings {
		byID[finding.ID] = finding
	}
	selected := make([]apibackend.Finding, 0, len(findingIDs))
	for _, id := range findingIDs {
		finding, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("finding %q is not part of this session", id)
		}
		selected = append(selected, finding)
	}
	return selected, nil
}
