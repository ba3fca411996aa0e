package probe

import "context"

// Result is the unified outcome of a single probe attempt.
//
// StatusCode is the HTTP status when available; 0 for transport errors and
// for ICMP probes. Message carries the failure classification ("HTTP 500:
// Internal Server Error", "icmp: host unreachable", a transport error
// string) and is empty on success.
type Result struct {
	Success    bool
	LatencyMS  float64
	StatusCode int
	Message    string
}

// Checker performs a single liveness probe against a target. The attempt
// deadline comes from ctx; implementations must not retry.
type Checker interface {
	Check(ctx context.Context, target string) Result
}
