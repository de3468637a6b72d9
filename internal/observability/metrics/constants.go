// Package metrics provides constants used across metric definitions.
package metrics

// Status label values for request and refresh counters.
const (
	// StatusSuccess marks an operation that completed normally.
	StatusSuccess = "success"
	// StatusError marks an operation that failed before a response was received.
	StatusError = "error"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
