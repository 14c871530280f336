// Package tracing wraps OpenTelemetry so that task runs and HTTP requests
// can be traced without every package importing the SDK directly. When no
// provider is installed spans are no-ops.
package tracing
