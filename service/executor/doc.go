// Package executor invokes a single unit of work: it traces the run,
// converts panics into errors and notifies an optional listener once the
// work returns.
package executor
