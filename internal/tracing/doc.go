// Package tracing configures OpenTelemetry spans for publishing runs.
//
// When disabled the provider hands out a no-op tracer, so callers never check
// whether tracing is on.
package tracing
