// Package orchestrator accepts opaque units of work, runs them on a bounded
// worker pool and tracks each one as a task record moving through
// queued, running and a terminal status.
//
// Cancellation is advisory: Cancel only sets the task's signal and the
// work decides when to stop. A work function that never checks its signal
// keeps a pool slot until it returns; there is no timeout and no forced
// termination.
package orchestrator
