package session

import (
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	storage_key TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);`

// SQLiteStore is a durable Store for deployments where the operator surface
// outlives a single process.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and if needed creates) the snapshot database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open session database")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "prepare session schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load decodes the stored snapshot, if any.
func (s *SQLiteStore) Load() (Snapshot, bool, error) {
	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM session_snapshots WHERE storage_key = ?", StorageKey,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, errors.Wrap(err, "load session snapshot")
	}
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return Snapshot{}, false, errors.Wrap(err, "decode session snapshot")
	}
	return snapshot, true, nil
}

// Save upserts the snapshot under the fixed storage key.
func (s *SQLiteStore) Save(snapshot Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode session snapshot")
	}
	_, err = s.db.Exec(
		`INSERT INTO session_snapshots (storage_key, payload) VALUES (?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET payload = excluded.payload`,
		StorageKey, string(payload),
	)
	return errors.Wrap(err, "save session snapshot")
}

// Clear drops any stored snapshot.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM session_snapshots WHERE storage_key = ?", StorageKey)
	return errors.Wrap(err, "clear session snapshot")
}
