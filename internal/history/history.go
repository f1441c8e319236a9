// Package history keeps the append-only version log of applied remediation
// actions and derives the currently displayed media from it.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tesseramedia/clipguard/internal/policy"
)

// Version is one applied remediation action. Versions are appended, never
// deleted; the only mutation ever applied is the Enabled toggle.
type Version struct {
	Version    int       `json:"version"`
	FindingIDs []string  `json:"finding_ids"`
	Label      string    `json:"label"`
	Action     string    `json:"action"`
	MediaURL   string    `json:"media_url"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// Action describes one append: the remediation applied, the findings it
// resolves, and the resulting media reference.
type Action struct {
	Type       policy.Action
	FindingIDs []string
	// CategoryByID resolves finding ids to their category for labelling.
	CategoryByID map[string]string
	// Name is the caller-supplied label used for batch actions.
	Name      string
	MediaURL  string
	CreatedAt time.Time
}

// Log is the append-only edit history for one job.
type Log struct {
	mu           sync.RWMutex
	originalURL  string
	versions     []Version
	pinned       int // 0 = unpinned
	showOriginal bool
}

// NewLog starts an empty history over the job's original media.
func NewLog(originalURL string) *Log {
	return &Log{originalURL: originalURL}
}

// SetOriginalURL updates the original media reference after a re-fetch.
func (l *Log) SetOriginalURL(url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.originalURL = url
}

// Append records a new version numbered len(history)+1. The new version
// becomes the implicit current result unless an earlier version is pinned.
func (l *Log) Append(action Action) (Version, error) {
	if err := action.Type.Validate(); err != nil {
		return Version{}, err
	}
	if len(action.FindingIDs) == 0 {
		return Version{}, fmt.Errorf("at least one finding id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	version := Version{
		Version:    len(l.versions) + 1,
		FindingIDs: append([]string(nil), action.FindingIDs...),
		Label:      label(action),
		Action:     string(action.Type),
		MediaURL:   action.MediaURL,
		Enabled:    true,
		CreatedAt:  action.CreatedAt,
	}
	l.versions = append(l.versions, version)
	return version, nil
}

// label builds "Category ActionType" for single-finding actions and falls
// back to the caller-supplied name otherwise.
func label(action Action) string {
	if len(action.FindingIDs) == 1 {
		if category, ok := action.CategoryByID[action.FindingIDs[0]]; ok && category != "" {
			return titleCase(category) + " " + string(action.Type)
		}
	}
	if strings.TrimSpace(action.Name) != "" {
		return action.Name
	}
	return string(action.Type)
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '-' || r == '_' })
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// Toggle flips the enabled flag of one version. Ordering and numbering are
// untouched; recompositing downstream media is left to the render stage.
func (l *Log) Toggle(versionNumber int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if versionNumber < 1 || versionNumber > len(l.versions) {
		return fmt.Errorf("version %d does not exist", versionNumber)
	}
	l.versions[versionNumber-1].Enabled = !l.versions[versionNumber-1].Enabled
	return nil
}

// Pin selects one version for preview. Pin(0) or Unpin clears the selection.
func (l *Log) Pin(versionNumber int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if versionNumber < 0 || versionNumber > len(l.versions) {
		return fmt.Errorf("version %d does not exist", versionNumber)
	}
	l.pinned = versionNumber
	return nil
}

// Unpin clears any preview selection.
func (l *Log) Unpin() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pinned = 0
}

// SetShowOriginal toggles the explicit show-original request.
func (l *Log) SetShowOriginal(show bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.showOriginal = show
}

// CurrentMediaURL derives the displayed media. Precedence, in order:
// an explicit show-original request, then a pinned preview version (falling
// back to the latest edit or the original when its media reference is
// missing), then the most recent enabled edit, then the original.
func (l *Log) CurrentMediaURL() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.showOriginal {
		return l.originalURL
	}
	if l.pinned >= 1 && l.pinned <= len(l.versions) {
		if url := l.versions[l.pinned-1].MediaURL; url != "" {
			return url
		}
	}
	if url := l.latestEnabledURL(); url != "" {
		return url
	}
	return l.originalURL
}

func (l *Log) latestEnabledURL() string {
	for i := len(l.versions) - 1; i >= 0; i-- {
		if l.versions[i].Enabled && l.versions[i].MediaURL != "" {
			return l.versions[i].MediaURL
		}
	}
	return ""
}

// Versions returns a copy of the log in creation order.
func (l *Log) Versions() []Version {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Version, len(l.versions))
	copy(out, l.versions)
	return out
}

// Len returns the number of appended versions.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.versions)
}

// Snapshot captures the log for session persistence.
type Snapshot struct {
	OriginalURL  string    `json:"original_url"`
	Versions     []Version `json:"versions"`
	Pinned       int       `json:"pinned,omitempty"`
	ShowOriginal bool      `json:"show_original,omitempty"`
}

// Snapshot returns a persistable copy of the log.
func (l *Log) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	versions := make([]Version, len(l.versions))
	copy(versions, l.versions)
	return Snapshot{
		OriginalURL:  l.originalURL,
		Versions:     versions,
		Pinned:       l.pinned,
		ShowOriginal: l.showOriginal,
	}
}

// Restore rebuilds a log from a snapshot, revalidating version numbering.
func Restore(snapshot Snapshot) (*Log, error) {
	for i, version := range snapshot.Versions {
		if version.Version != i+1 {
			return nil, fmt.Errorf("version numbering broken at index %d: got %d", i, version.Version)
		}
	}
	if snapshot.Pinned < 0 || snapshot.Pinned > len(snapshot.Versions) {
		return nil, fmt.Errorf("pinned version %d does not exist", snapshot.Pinned)
	}
	versions := make([]Version, len(snapshot.Versions))
	copy(versions, snapshot.Versions)
	return &Log{
		originalURL:  snapshot.OriginalURL,
		versions:     versions,
		pinned:       snapshot.Pinned,
		showOriginal: snapshot.ShowOriginal,
	}, nil
}
