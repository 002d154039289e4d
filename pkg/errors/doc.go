// Package errors provides standardized error definitions for the bridge.
// All error definitions are centralized here to ensure consistency across
// the link, registry, and bridge components.
package errors
