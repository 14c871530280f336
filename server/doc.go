// Package server exposes orchestrators over HTTP.
//
// Every namespace is mounted under its own prefix (tasks, jobs, ...) with
// the same routes:
//   - GET  /<prefix>?status=<status> - list records
//   - GET  /<prefix>/{id}            - get one record
//   - GET  /<prefix>/{id}/logs       - log lines of one record
//   - GET  /<prefix>/{id}/stream     - server-sent progress events
//   - POST /<prefix>/{id}/cancel     - request cancellation
//   - POST /<prefix>/{kind}          - submit a registered pipeline
//   - GET  /health                   - health and per-namespace counters
package server
