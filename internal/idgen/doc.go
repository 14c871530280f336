// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Identifiers are opaque 32-character hex strings; callers must not parse them.
package idgen
