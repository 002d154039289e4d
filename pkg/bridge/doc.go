// Package bridge relays raw bytes between a single TCP endpoint and a
// set of WebSocket clients.
//
// Chunks read from the TCP link are broadcast to every connected
// client; messages from any client are written to the link, one write
// in flight at a time. The Bridge owns the lifecycle of both sides:
// Start opens the TCP link and the WebSocket listener, Stop tears
// everything down and waits for every relay goroutine to exit.
//
// Link loss is not fatal: clients stay connected and their messages are
// dropped, or buffered and replayed when reconnect and outage buffering
// are enabled in the configuration.
package bridge
