package storage

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	bridgeerrors "wsbridge/pkg/errors"
)

// MySQLStore implements Store using a MySQL backend
type MySQLStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed event log for the given DSN
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	store := &MySQLStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initDB initializes the database schema
func (s *MySQLStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		type VARCHAR(32) NOT NULL,
		client_id VARCHAR(64),
		detail TEXT,
		at DATETIME NOT NULL,
		INDEX idx_events_at (at),
		INDEX idx_events_type (type)
	)`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent persists one event
func (s *MySQLStore) RecordEvent(evtType EventType, clientID, detail string) error {
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
func (s *MySQLStore) RecentEvents(limit int) ([]*Event, error) {
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
func (s *MySQLStore) CountByType() (map[EventType]int, error) {
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
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// scanEvents reads Event rows from a query result
func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		var typ string
		var clientID, detail sql.NullString
		if err := rows.Scan(&e.ID, &typ, &clientID, &detail, &e.At); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.ClientID = clientID.String
		e.Detail = detail.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// scanCounts reads type/count pairs from a query result
func scanCounts(rows *sql.Rows) (map[EventType]int, error) {
	counts := make(map[EventType]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[EventType(typ)] = n
	}
	return counts, rows.Err()
}
