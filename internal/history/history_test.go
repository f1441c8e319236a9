package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseramedia/clipguard/internal/policy"
)

func appendVersion(t *testing.T, log *Log, findingID, mediaURL string) Version {
	t.Helper()
	version, err := log.Append(Action{
		Type:         policy.ActionBlur,
		FindingIDs:   []string{findingID},
		CategoryByID: map[string]string{findingID: "alcohol"},
		MediaURL:     mediaURL,
		CreatedAt:    time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	return version
}

func TestAppendNumbersVersionsContiguously(t *testing.T) {
	t.Parallel()

	log := NewLog("https://h/original.mp4")
	for i, findingID := range []string{"f-1", "f-2", "f-3"} {
		version := appendVersion(t, log, findingID, "https://h/edit.mp4")
		assert.Equal(t, i+1, version.Version)
		assert.True(t, version.Enabled)
	}
	versions := log.Versions()
	require.Len(t, versions, 3)
	for i, version := range versions {
		assert.Equal(t, i+1, version.Version)
	}
}

func TestToggleLeavesNeighborsUntouched(t *testing.T) {
	t.Parallel()

	log := NewLog("https://h/original.mp4")
	appendVersion(t, log, "f-1", "https://h/v1.mp4")
	appendVersion(t, log, "f-2", "https://h/v2.mp4")
	appendVersion(t, log, "f-3", "https://h/v3.mp4")

	before := log.Versions()
	require.NoError(t, log.Toggle(2))
	after := log.Versions()

	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[2])
	assert.False(t, after[1].Enabled)
	assert.Equal(t, before[1].Version, after[1].Version)
	assert.Equal(t, before[1].MediaURL, after[1].MediaURL)

	require.Error(t, log.Toggle(0))
	require.Error(t, log.Toggle(4))
}

func TestLabelTitleCasesSingleFindingCategory(t *testing.T) {
	t.Parallel()

	log := NewLog("")
	version, err := log.Append(Action{
		Type:         policy.ActionBeep,
		FindingIDs:   []string{"f-9"},
		CategoryByID: map[string]string{"f-9": "profanity-strong"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Profanity Strong BEEP", version.Label)

	batch, err := log.Append(Action{
		Type:       policy.ActionBlur,
		FindingIDs: []string{"f-1", "f-2"},
		Name:       "Batch blur pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "Batch blur pass", batch.Label)
}

func TestCurrentMediaPrecedence(t *testing.T) {
	t.Parallel()

	log := NewLog("https://h/original.mp4")
	assert.Equal(t, "https://h/original.mp4", log.CurrentMediaURL(), "no edits yet")

	appendVersion(t, log, "f-1", "https://h/v1.mp4")
	appendVersion(t, log, "f-2", "https://h/v2.mp4")
	assert.Equal(t, "https://h/v2.mp4", log.CurrentMediaURL(), "latest edit wins")

	require.NoError(t, log.Pin(1))
	assert.Equal(t, "https://h/v1.mp4", log.CurrentMediaURL(), "pinned preview wins")

	log.SetShowOriginal(true)
	assert.Equal(t, "https://h/original.mp4", log.CurrentMediaURL(), "show-original beats pin")
	log.SetShowOriginal(false)

	log.Unpin()
	require.NoError(t, log.Toggle(2))
	assert.Equal(t, "https://h/v1.mp4", log.CurrentMediaURL(), "disabled latest falls back")

	require.NoError(t, log.Toggle(1))
	assert.Equal(t, "https://h/original.mp4", log.CurrentMediaURL(), "all disabled falls back to original")
}

func TestPinnedVersionWithoutMediaFallsBack(t *testing.T) {
	t.Parallel()

	log := NewLog("https://h/original.mp4")
	_, err := log.Append(Action{
		Type:         policy.ActionMute,
		FindingIDs:   []string{"f-1"},
		CategoryByID: map[string]string{"f-1": "profanity-mild"},
		// Audio-only action whose render has not landed yet.
		MediaURL: "",
	})
	require.NoError(t, err)
	appendVersion(t, log, "f-2", "https://h/v2.mp4")

	require.NoError(t, log.Pin(1))
	assert.Equal(t, "https://h/v2.mp4", log.CurrentMediaURL())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	log := NewLog("https://h/original.mp4")
	appendVersion(t, log, "f-1", "https://h/v1.mp4")
	appendVersion(t, log, "f-2", "https://h/v2.mp4")
	require.NoError(t, log.Toggle(1))
	require.NoError(t, log.Pin(2))

	restored, err := Restore(log.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, log.Versions(), restored.Versions())
	assert.Equal(t, log.CurrentMediaURL(), restored.CurrentMediaURL())
}

func TestRestoreRejectsBrokenNumbering(t *testing.T) {
	t.Parallel()

	_, err := Restore(Snapshot{Versions: []Version{{Version: 2}}})
	require.Error(t, err)

	_, err = Restore(Snapshot{Pinned: 3})
	require.Error(t, err)
}

func TestAppendRequiresFindings(t *testing.T) {
	t.Parallel()

	_, err := NewLog("").Append(Action{Type: policy.ActionBlur})
	require.Error(t, err)

	_, err = NewLog("").Append(Action{Type: policy.Action("SEPIA"), FindingIDs: []string{"f-1"}})
	require.Error(t, err)
}
