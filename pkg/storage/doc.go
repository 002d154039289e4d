// Package storage provides the optional connection event log.
//
// The bridge itself keeps no persistent state; the event log is a
// diagnostics aid recording link up/down and client join/leave events.
// SQLite is the default backend; MySQL is available for deployments
// that already run one.
package storage
