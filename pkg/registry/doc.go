// Package registry tracks connected WebSocket clients and fans byte
// payloads out to them.
//
// The registry is the single owner of the client set. Add, Remove, and
// Broadcast are safe for concurrent use; Broadcast works on a snapshot
// so clients joining or leaving mid-broadcast never corrupt delivery.
// Each client has a buffered send queue drained by a dedicated write
// pump goroutine, so one slow client cannot stall the others; it is
// dropped instead.
package registry
