// Package pipeline registers the kinds of work that can be submitted by name
// and provides adapters that turn typed functions and external commands into
// orchestrator work.
package pipeline
