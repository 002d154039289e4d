// Package link manages the single outbound TCP connection to the device
// side of the bridge.
//
// A Link moves between two states: open (a live connection exists) and
// closed. Read and write failures are not retried here; they transition
// the link to closed and notify the owner through the OnDown callback.
// Reconnection is a policy decision made by the caller.
package link
