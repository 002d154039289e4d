package storage

import "time"

// EventType classifies a bridge connection event
type EventType string

const (
	EventLinkUp       EventType = "link_up"
	EventLinkDown     EventType = "link_down"
	EventClientJoined EventType = "client_joined"
	EventClientLeft   EventType = "client_left"
)

// Event is one recorded connection event
type Event struct {
	ID       int64     `json:"id"`
	Type     EventType `json:"type"`
	ClientID string    `json:"client_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Store defines the interface for the connection event log
type Store interface {
	// RecordEvent persists one event
	RecordEvent(evtType EventType, clientID, detail string) error

	// RecentEvents returns up to limit events, newest first
	RecentEvents(limit int) ([]*Event, error)

	// CountByType returns event counts grouped by type
	CountByType() (map[EventType]int, error)

	// Close releases the underlying database handle
	Close() error
}
