package errors

import "errors"

// Lifecycle errors
var (
	// ErrAlreadyRunning is returned when Start is called while the bridge is not stopped
	ErrAlreadyRunning = errors.New("bridge already running")
)

// TCP link errors
var (
	// ErrConnect is returned when the TCP link cannot be established at startup
	ErrConnect = errors.New("tcp connect failed")

	// ErrLinkClosed is returned when a write is attempted while the link is down
	ErrLinkClosed = errors.New("tcp link closed")
)

// Client registry errors
var (
	// ErrClientNotFound is returned when a client id is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrDuplicateClient is returned when a client id is already registered
	ErrDuplicateClient = errors.New("client already registered")

	// ErrClientClosed is returned when sending to a closed client
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when a client's send buffer is full
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Configuration and storage errors
var (
	// ErrInvalidConfig is returned when configuration validation fails
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreClosed is returned when the event store is used after Close
	ErrStoreClosed = errors.New("event store closed")
)
