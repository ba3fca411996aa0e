package probe

import (
	"context"
	"fmt"
	"time"

	"uptimefleet/internal/domain"
)

// Executor turns a ServiceConfig into a MonitoringResult: up to Attempts
// probe attempts, each bounded by the service timeout, with a fixed delay
// between failed attempts. The first success wins; exhaustion returns the
// last failure. It never returns an error — every outcome is a result.
type Executor struct {
	Checkers       map[domain.ServiceType]Checker
	Attempts       int
	RetryDelay     time.Duration
	DefaultTimeout time.Duration

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration)
}

func NewExecutor(attempts int, retryDelay, defaultTimeout time.Duration) *Executor {
	if attempts < 1 {
		attempts = 3
	}
	if retryDelay < 0 {
		retryDelay = time.Second
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &Executor{
		Checkers: map[domain.ServiceType]Checker{
			domain.TypeHTTP: NewHTTPChecker(),
			domain.TypeICMP: NewICMPChecker(),
		},
		Attempts:       attempts,
		RetryDelay:     retryDelay,
		DefaultTimeout: defaultTimeout,
		sleep:          sleepCtx,
	}
}

func (e *Executor) Execute(ctx context.Context, cfg domain.ServiceConfig) domain.MonitoringResult {
	res := domain.MonitoringResult{
		ServiceID: cfg.ID,
		Timestamp: time.Now().UTC(),
	}

	checker := e.Checkers[cfg.Type]
	if checker == nil {
		// Config/type mismatch is a caller bug; surface it, never guess.
		res.Error = fmt.Sprintf("unsupported service type %q", cfg.Type)
		return res
	}

	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}

	var last Result
	for attempt := 0; attempt < e.Attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, timeout)
		last = checker.Check(actx, cfg.Target())
		cancel()

		if last.Success {
			res.Success = true
			res.Duration = last.LatencyMS
			return res
		}
		if attempt < e.Attempts-1 {
			e.sleep(ctx, e.RetryDelay)
			if ctx.Err() != nil {
				break
			}
		}
	}

	// Duration records the deciding attempt only; retry sleeps are not
	// part of the measured latency.
	res.Duration = last.LatencyMS
	res.Error = last.Message
	if res.Error == "" {
		res.Error = "check failed"
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
