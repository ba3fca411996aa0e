package probe

import (
	"context"
	"testing"
	"time"

	"uptimefleet/internal/domain"
)

// fake checker you can script attempt by attempt
type fakeChecker struct {
	results []Result
	calls   int
}

func (f *fakeChecker) Check(ctx context.Context, target string) Result {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return Result{Message: "no more"}
	}
	return f.results[i]
}

func testExecutor(f *fakeChecker) (*Executor, *[]time.Duration) {
	var slept []time.Duration
	e := NewExecutor(3, time.Second, 5*time.Second)
	e.Checkers = map[domain.ServiceType]Checker{domain.TypeHTTP: f}
	e.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	return e, &slept
}

func httpCfg() domain.ServiceConfig {
	return domain.ServiceConfig{
		ID:       "svc-1",
		Name:     "Example",
		Type:     domain.TypeHTTP,
		URL:      "https://example.com",
		Interval: 30,
		Timeout:  5000,
	}
}

func TestExecutor_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{results: []Result{
		{Message: "first fail"},
		{Success: true, LatencyMS: 42},
	}}
	e, slept := testExecutor(f)

	out := e.Execute(context.Background(), httpCfg())
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.calls)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Fatalf("expected one 1s inter-retry delay, got %v", *slept)
	}
	// Duration is the deciding attempt's latency, not a running total.
	if out.Duration != 42 {
		t.Fatalf("duration = %v, want 42", out.Duration)
	}
}

func TestExecutor_ExhaustionKeepsLastError(t *testing.T) {
	f := &fakeChecker{results: []Result{
		{Message: "HTTP 500: Internal Server Error", StatusCode: 500},
		{Message: "HTTP 500: Internal Server Error", StatusCode: 500},
		{Message: "HTTP 500: Internal Server Error", StatusCode: 500},
	}}
	e, slept := testExecutor(f)

	out := e.Execute(context.Background(), httpCfg())
	if out.Success {
		t.Fatalf("expected failure, got %+v", out)
	}
	if f.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("expected 2 inter-retry delays, got %d", len(*slept))
	}
	if out.Error != "HTTP 500: Internal Server Error" {
		t.Fatalf("error = %q", out.Error)
	}
}

func TestExecutor_UnsupportedTypeIsExplicit(t *testing.T) {
	e, _ := testExecutor(&fakeChecker{})
	cfg := httpCfg()
	cfg.Type = "dns"

	out := e.Execute(context.Background(), cfg)
	if out.Success || out.Error == "" {
		t.Fatalf("expected explicit failure for unknown type, got %+v", out)
	}
}

func TestExecutor_CancelStopsRetrying(t *testing.T) {
	f := &fakeChecker{results: []Result{{Message: "fail"}, {Message: "fail"}, {Message: "fail"}}}
	e := NewExecutor(3, time.Second, 5*time.Second)
	e.Checkers = map[domain.ServiceType]Checker{domain.TypeHTTP: f}

	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(context.Context, time.Duration) { cancel() }

	out := e.Execute(ctx, httpCfg())
	if out.Success {
		t.Fatalf("expected failure, got %+v", out)
	}
	if f.calls != 1 {
		t.Fatalf("expected retries abandoned after cancel, got %d attempts", f.calls)
	}
}
