// Package instrumentation provides OpenTelemetry instrumentation for calpane.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Calendar API Metrics:
//   - calendar_api_operations_total: Counter by operation, status and HTTP code
//   - calendar_api_operation_duration_seconds: Histogram of operation durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of sign-in attempts by result
//
// Created-event index Metrics:
//   - created_index_mutations_total: Counter of index writes by operation and status
//   - created_index_read_failures_total: Counter of reads masked to an empty set
//
// # Configuration
//
// Configuration is read from the environment by DefaultConfig:
//
//	INSTRUMENTATION_ENABLED=true|false
//	METRICS_EXPORTER=prometheus|otlp|stdout
//	TRACING_EXPORTER=otlp|stdout|none
//	OTEL_EXPORTER_OTLP_ENDPOINT=localhost:4318
//	OTEL_TRACES_SAMPLER_ARG=0.1
//
// A nil or zero *Metrics is a valid no-op recorder, so callers never need to
// check whether instrumentation is enabled.
package instrumentation
