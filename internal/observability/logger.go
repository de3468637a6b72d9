// Package observability provides Prometheus metrics and a local status
// endpoint for the leafscan client.
package observability

import "github.com/cropdx/leafscan/internal/logger"

// Package-level cached logger instance for efficiency.
// All logging in this package should use this variable.
var log = logger.Global().Module("telemetry")
