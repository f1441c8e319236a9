package session

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	backendclient "github.com/tesseramedia/clipguard/internal/backend"
	"github.com/tesseramedia/clipguard/internal/poll"
)

// Marker is the one-shot in-session marker that distinguishes a hard reload
// from a same-session view switch. It is set on first mount and cleared on
// every unload, so the next load after an unload is treated as fresh.
type Marker interface {
	Present() bool
	Set()
	Clear()
}

// MemoryMarker is an in-process Marker.
type MemoryMarker struct {
	mu  sync.Mutex
	set bool
}

// NewMemoryMarker returns a cleared marker.
func NewMemoryMarker() *MemoryMarker { return &MemoryMarker{} }

// Present reports whether the marker is set.
func (m *MemoryMarker) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

// Set marks the session as live.
func (m *MemoryMarker) Set() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = true
}

// Clear resets the marker so the next mount is treated as a fresh load.
func (m *MemoryMarker) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = false
}

// MediaRefresher re-fetches live media URLs for a job. Locally cached blob
// references do not survive navigation, so restored snapshots always get
// fresh backend-served URLs.
type MediaRefresher interface {
	RefreshMediaURLs(ctx context.Context, jobID string) (originalURL, editedURL string, err error)
}

// Reconciler restores or discards session state depending on whether the
// current mount is a fresh load or a resumed session.
type Reconciler struct {
	store  Store
	marker Marker
	media  MediaRefresher
	clock  poll.Clock
	logger *log.Entry
}

// NewReconciler wires a reconciler over an injected store, marker, and media
// refresher. Business logic never touches ambient storage directly.
func NewReconciler(store Store, marker Marker, media MediaRefresher, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.WithField("component", "session-reconciler")
	}
	return &Reconciler{store: store, marker: marker, media: media, clock: poll.SystemClock{}, logger: logger}
}

// Mount runs on every view mount. A missing marker means a fresh load: the
// persisted snapshot is discarded and the marker set. A present marker means
// a resumed session: the snapshot is restored and its media URLs re-fetched
// by job id. Corrupt or unreadable snapshots are logged and degrade to the
// fresh-load path, never a crash.
func (r *Reconciler) Mount(ctx context.Context) (Snapshot, bool, error) {
	if !r.marker.Present() {
		if err := r.store.Clear(); err != nil {
			r.logger.WithError(err).Warn("could not discard stale snapshot on fresh load")
		}
		r.marker.Set()
		return Snapshot{}, false, nil
	}

	snapshot, ok, err := r.store.Load()
	if err != nil {
		r.logger.WithError(err).Warn("persisted snapshot unreadable, treating session as fresh")
		if clearErr := r.store.Clear(); clearErr != nil {
			r.logger.WithError(clearErr).Warn("could not clear corrupt snapshot")
		}
		return Snapshot{}, false, nil
	}
	if !ok || snapshot.Empty() {
		return Snapshot{}, false, nil
	}

	r.refreshMedia(ctx, &snapshot)
	return snapshot, true, nil
}

func (r *Reconciler) refreshMedia(ctx context.Context, snapshot *Snapshot) {
	if r.media == nil {
		return
	}
	originalURL, editedURL, err := r.media.RefreshMediaURLs(ctx, snapshot.JobID)
	if err != nil {
		r.logger.WithError(err).WithField("job_id", snapshot.JobID).
			Warn("media URL refresh failed, restored snapshot keeps stale references")
		return
	}
	if originalURL != "" {
		snapshot.History.OriginalURL = originalURL
	}
	// The backend tracks a single edited rendition; it corresponds to the
	// most recent version in the history. The backend re-serves the same
	// path for it, so the refreshed URL gets a cache-busting timestamp like
	// any other freshly edited URL.
	if editedURL != "" && len(snapshot.History.Versions) > 0 {
		snapshot.History.Versions[len(snapshot.History.Versions)-1].MediaURL = backendclient.CacheBust(editedURL, r.clock.Now())
	}
}

// Persist re-serializes the snapshot after a mutation to job id, selectors,
// findings, edit history, or batch flags. Snapshots without a job id are
// skipped; there is nothing worth persisting before a job exists.
func (r *Reconciler) Persist(snapshot Snapshot) error {
	if snapshot.Empty() {
		return nil
	}
	return r.store.Save(snapshot)
}

// Unload runs on every unload event and clears the marker so the next load
// is treated as fresh.
func (r *Reconciler) Unload() {
	r.marker.Clear()
}
