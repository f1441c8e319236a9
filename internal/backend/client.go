// Package backend implements the HTTP client for the external processing
// backend. It owns wire-level concerns only: status reads, analysis calls,
// upload handoff, media URL resolution, and cache busting.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	apibackend "github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/policy"
)

// ErrStillProcessing reports an analysis request rejected with HTTP 409
// because the referenced media is not yet processed. Callers retry it.
var ErrStillProcessing = errors.New("backend: media still processing")

// StatusError is a hard backend failure (non-2xx, non-409).
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Config configures a backend client.
type Config struct {
	// APIBase is the backend API root, e.g. "https://host/api".
	APIBase    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Entry
}

// Client talks to the processing backend.
type Client struct {
	base   string
	client *http.Client
	logger *log.Entry
}

// NewClient validates the configuration and returns a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if base == "" {
		return nil, fmt.Errorf("api_base is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "parse api_base")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "backend-client")
	}
	return &Client{base: base, client: httpClient, logger: logger}, nil
}

// Status reads the backend-owned lifecycle record for a job.
func (c *Client) Status(ctx context.Context, jobID string) (apibackend.StatusResponse, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return apibackend.StatusResponse{}, fmt.Errorf("job_id is required")
	}
	body, err := c.do(ctx, http.MethodGet, c.base+"/status/"+url.PathEscape(jobID), nil, "status")
	if err != nil {
		return apibackend.StatusResponse{}, err
	}
	var status apibackend.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return apibackend.StatusResponse{}, errors.Wrap(err, "decode status payload")
	}
	return status, nil
}

// Analyze requests a compliance analysis for the job under the given profile
// selectors. An HTTP 409 is returned as ErrStillProcessing; the backend is
// safe to re-invoke, so no findings de-duplication happens client-side.
func (c *Client) Analyze(ctx context.Context, jobID string, sel policy.Selector) ([]apibackend.Finding, string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, "", fmt.Errorf("job_id is required")
	}
	query := url.Values{}
	query.Set("platform", sel.Platform)
	query.Set("region", sel.Region)
	query.Set("rating", sel.Rating)
	endpoint := c.base + "/analyze-video/" + url.PathEscape(jobID) + "?" + query.Encode()

	body, err := c.do(ctx, http.MethodPost, endpoint, nil, "analyze")
	if err != nil {
		return nil, "", err
	}

	raw := gjson.GetBytes(body, "findings")
	findings := []apibackend.Finding{}
	if raw.Exists() {
		if err := json.Unmarshal([]byte(raw.Raw), &findings); err != nil {
			return nil, "", errors.Wrap(err, "decode findings payload")
		}
	}
	for _, finding := range findings {
		if err := finding.Validate(); err != nil {
			return nil, "", errors.Wrapf(err, "finding %s", finding.ID)
		}
	}
	summary := gjson.GetBytes(body, "summary").String()
	c.logger.WithFields(log.Fields{
		"job_id":   jobID,
		"profile":  policy.ProfileName(sel),
		"findings": len(findings),
	}).Info("analysis completed")
	return findings, summary, nil
}

// ApplyAction asks the backend to render one remediation over the listed
// findings and returns the edited media URL.
func (c *Client) ApplyAction(ctx context.Context, jobID, action string, findingIDs []string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", fmt.Errorf("job_id is required")
	}
	payload, err := json.Marshal(map[string]any{
		"action":      action,
		"finding_ids": findingIDs,
	})
	if err != nil {
		return "", errors.Wrap(err, "encode apply payload")
	}
	body, err := c.do(ctx, http.MethodPost, c.base+"/apply-action/"+url.PathEscape(jobID), bytes.NewReader(payload), "apply")
	if err != nil {
		return "", err
	}
	edited := gjson.GetBytes(body, "edited_video_url").String()
	if edited == "" {
		return "", fmt.Errorf("apply response missing edited_video_url")
	}
	return c.MediaURL(edited), nil
}

// Upload hands raw media to the backend and returns the issued job id.
func (c *Client) Upload(ctx context.Context, media io.Reader) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.base+"/upload", media, "upload")
	if err != nil {
		return "", err
	}
	jobID := gjson.GetBytes(body, "job_id").String()
	if jobID == "" {
		return "", fmt.Errorf("upload response missing job_id")
	}
	return jobID, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", operation)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s request", operation)
	}
	defer resp.Body.Close()

	payload, readErr := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrStillProcessing
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(payload), 512),
		}
	case readErr != nil:
		return nil, errors.Wrapf(readErr, "read %s response", operation)
	}
	return payload, nil
}

// RefreshMediaURLs re-reads the job's live media references and resolves
// them to absolute URLs. Restored sessions call this because locally cached
// blob references do not survive navigation.
func (c *Client) RefreshMediaURLs(ctx context.Context, jobID string) (string, string, error) {
	status, err := c.Status(ctx, jobID)
	if err != nil {
		return "", "", err
	}
	return c.MediaURL(status.OriginalVideoURL), c.MediaURL(status.EditedVideoURL), nil
}

// MediaURL resolves a backend-relative media path against the bare host of
// the API base: a trailing "/api" suffix is stripped because static media is
// served from the host root. Absolute URLs pass through untouched.
func (c *Client) MediaURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" {
		return raw
	}
	host := strings.TrimSuffix(c.base, "/api")
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return host + raw
}

// CacheBust appends the epoch as a query parameter so a freshly edited media
// URL is never served from a stale cache entry for a previously seen path.
func CacheBust(mediaURL string, now time.Time) string {
	if strings.TrimSpace(mediaURL) == "" {
		return mediaURL
	}
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return mediaURL
	}
	query := parsed.Query()
	query.Set("t", strconv.FormatInt(now.Unix(), 10))
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
