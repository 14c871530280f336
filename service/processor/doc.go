// Package processor hosts the fixed-size worker pool. Every worker consumes
// items from a queue and handles them in-line, so at most WorkerCount items
// are in flight at any time.
package processor
