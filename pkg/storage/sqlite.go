package storage

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	bridgeerrors "wsbridge/pkg/errors"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore creates a SQLite-backed event log at the given path
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		client_id TEXT,
		detail TEXT,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent persists one event
func (s *SQLiteStore) RecordEvent(evtType EventType, clientID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridgeerrors.ErrStoreClosed
	}

	_, err := s.db.Exec(
		`INSERT INTO events (type, client_id, detail, at) VALUES (?, ?, ?, ?)`,
		string(evtType), clientID, detail, time.Now().UTC(),
	)
	return err
}

// RecentEvents returns up to limit events, newest first
func (s *SQLiteStore) RecentEvents(limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, bridgeerrors.ErrStoreClosed
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, type, client_id, detail, at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountByType returns event counts grouped by type
func (s *SQLiteStore) CountByType() (map[EventType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, bridgeerrors.ErrStoreClosed
	}

	rows, err := s.db.Query(`SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCounts(rows)
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
