// Package observability provides structured logging, metrics and request
// instrumentation for the identity gateway.
//
// This package implements:
//   - Structured logging with contextual fields (zap-based)
//   - Prometheus metrics for key fetches, token verification and HTTP traffic
//   - Request ID propagation
//
// Every route is wrapped by RequestLogger.
package observability
