// Package progress keeps aggregated per-status task counters for one
// orchestrator.
package progress
