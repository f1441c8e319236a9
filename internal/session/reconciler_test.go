package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseramedia/clipguard/api/backend"
	"github.com/tesseramedia/clipguard/internal/history"
	"github.com/tesseramedia/clipguard/internal/poll"
)

type fakeRefresher struct {
	originalURL string
	editedURL   string
	err         error
	calls       int
}

func (f *fakeRefresher) RefreshMediaURLs(context.Context, string) (string, string, error) {
	f.calls++
	return f.originalURL, f.editedURL, f.err
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		JobID:    "job-7",
		Platform: "YouTube",
		Rating:   "Kids",
		Region:   "Middle East",
		Findings: []backend.Finding{{
			ID: "f-1", Category: "alcohol", StartSeconds: 1, EndSeconds: 3,
			Description: "beer bottle", Severity: backend.SeverityCritical, Confidence: 0.9,
		}},
		History: history.Snapshot{
			OriginalURL: "blob:stale-original",
			Versions: []history.Version{
				{Version: 1, FindingIDs: []string{"f-1"}, Label: "Alcohol BLUR", Action: "BLUR", MediaURL: "blob:stale-edit", Enabled: true},
			},
		},
		BatchInProgress: true,
		BatchProgress:   "resolving 2 of 5",
	}
}

func TestMountFreshLoadDiscardsSnapshot(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Save(sampleSnapshot()))
	marker := NewMemoryMarker()
	reconciler := NewReconciler(store, marker, &fakeRefresher{}, nil)

	snapshot, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	assert.False(t, restored, "fresh load must not restore")
	assert.True(t, snapshot.Empty())
	assert.True(t, marker.Present(), "fresh mount sets the marker")

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok, "stale snapshot must be discarded on fresh load")
}

func TestMountResumeRestoresAndRefreshesMedia(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	saved := sampleSnapshot()
	require.NoError(t, store.Save(saved))
	marker := NewMemoryMarker()
	marker.Set()
	refresher := &fakeRefresher{
		originalURL: "https://h/media/job-7/original.mp4",
		editedURL:   "https://h/media/job-7/edit.mp4",
	}
	reconciler := NewReconciler(store, marker, refresher, nil)
	reconciler.clock = poll.NewManualClock(time.Unix(1700000000, 0))

	snapshot, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	require.True(t, restored)
	assert.Equal(t, 1, refresher.calls)

	// Everything except media URLs is restored byte-for-byte.
	assert.Equal(t, saved.JobID, snapshot.JobID)
	assert.Equal(t, saved.Platform, snapshot.Platform)
	assert.Equal(t, saved.Rating, snapshot.Rating)
	assert.Equal(t, saved.Region, snapshot.Region)
	assert.Equal(t, saved.Findings, snapshot.Findings)
	assert.Equal(t, saved.BatchInProgress, snapshot.BatchInProgress)
	assert.Equal(t, saved.BatchProgress, snapshot.BatchProgress)

	assert.Equal(t, "https://h/media/job-7/original.mp4", snapshot.History.OriginalURL)
	// The refreshed edited URL re-uses a previously served path, so it must
	// carry the cache-busting timestamp.
	assert.Equal(t, "https://h/media/job-7/edit.mp4?t=1700000000", snapshot.History.Versions[0].MediaURL)
}

func TestSetUnloadReloadCycleIsFresh(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	marker := NewMemoryMarker()
	reconciler := NewReconciler(store, marker, &fakeRefresher{}, nil)

	_, _, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	require.NoError(t, reconciler.Persist(sampleSnapshot()))

	reconciler.Unload()

	_, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	assert.False(t, restored, "reload after unload must be fresh")
}

func TestSwitchWithoutUnloadRestores(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	marker := NewMemoryMarker()
	reconciler := NewReconciler(store, marker, &fakeRefresher{}, nil)

	_, _, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	require.NoError(t, reconciler.Persist(sampleSnapshot()))

	snapshot, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	assert.True(t, restored, "tab switch without unload must restore")
	assert.Equal(t, "job-7", snapshot.JobID)
}

func TestCorruptSnapshotDegradesToFresh(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.Corrupt()
	marker := NewMemoryMarker()
	marker.Set()
	reconciler := NewReconciler(store, marker, &fakeRefresher{}, nil)

	snapshot, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err, "corruption must never surface as an error")
	assert.False(t, restored)
	assert.True(t, snapshot.Empty())
}

func TestMediaRefreshFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Save(sampleSnapshot()))
	marker := NewMemoryMarker()
	marker.Set()
	reconciler := NewReconciler(store, marker, &fakeRefresher{err: fmt.Errorf("backend down")}, nil)

	snapshot, restored, err := reconciler.Mount(context.Background())
	require.NoError(t, err)
	assert.True(t, restored, "refresh failure must not discard the session")
	assert.Equal(t, "blob:stale-original", snapshot.History.OriginalURL)
}

func TestPersistSkipsSessionsWithoutJob(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	reconciler := NewReconciler(store, NewMemoryMarker(), nil, nil)

	require.NoError(t, reconciler.Persist(Snapshot{Platform: "YouTube"}))
	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok, "nothing is persisted before a job id exists")
}
