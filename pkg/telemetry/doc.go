// Package telemetry provides observability for the Skylift client:
// structured logging via zerolog, Prometheus metrics for the tracker and
// stream layers, and optional OpenTelemetry tracing around operations.
//
// All collectors are safe as zero values: a nil *Metrics records nothing
// and NopLogger discards output, so library components can instrument
// unconditionally.
package telemetry
