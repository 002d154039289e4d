// Package server hosts the WebSocket endpoint and the diagnostics API.
//
// GET /ws upgrades to WebSocket and joins the bridge; every inbound
// message's payload is forwarded to the TCP link. /healthz, /api/status,
// /api/clients and /api/events expose informational state only; none of
// them participate in the relay path.
package server
