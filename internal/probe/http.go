package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker probes a URL with one GET request. A 2xx status is success;
// everything else is a failure with an "HTTP <code>" classification.
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	// No client timeout here; each attempt is bounded by its context.
	return &HTTPChecker{Client: &http.Client{}}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Message: err.Error()}
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000
	if err != nil {
		msg := err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("timeout after %.0fms", latency)
		}
		return Result{LatencyMS: latency, Message: msg}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			LatencyMS:  latency,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	return Result{Success: true, LatencyMS: latency, StatusCode: resp.StatusCode}
}
