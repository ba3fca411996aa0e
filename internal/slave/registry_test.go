package slave

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

// fake runner you can script and block
type fakeRunner struct {
	started chan string
	release chan struct{}
	outcome bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		started: make(chan string, 16),
		release: make(chan struct{}, 16),
		outcome: true,
	}
}

func (f *fakeRunner) Execute(ctx context.Context, cfg domain.ServiceConfig) domain.MonitoringResult {
	f.started <- cfg.ID
	<-f.release
	return domain.MonitoringResult{
		ServiceID: cfg.ID,
		Timestamp: time.Now().UTC(),
		Success:   f.outcome,
	}
}

func testConfig(id string) domain.ServiceConfig {
	return domain.ServiceConfig{
		ID:       id,
		Name:     id,
		Type:     domain.TypeHTTP,
		URL:      "https://example.com",
		Interval: 60,
		Timeout:  1000,
	}
}

func waitResult(t *testing.T, reg *Registry, within time.Duration) domain.MonitoringResult {
	t.Helper()
	select {
	case res := <-reg.Results():
		return res
	case <-time.After(within):
		t.Fatal("no result within deadline")
		return domain.MonitoringResult{}
	}
}

func TestRegistry_FirstCheckFiresImmediately(t *testing.T) {
	runner := newFakeRunner()
	reg := NewRegistry(zap.NewNop(), runner, 4)
	defer reg.Close()

	if err := reg.Add(testConfig("svc-1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	runner.release <- struct{}{}

	res := waitResult(t, reg, time.Second)
	if res.ServiceID != "svc-1" || !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegistry_DuplicateAddRejected(t *testing.T) {
	runner := newFakeRunner()
	runner.release <- struct{}{}
	reg := NewRegistry(zap.NewNop(), runner, 4)
	defer reg.Close()

	if err := reg.Add(testConfig("svc-1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(testConfig("svc-1")); err != ErrDuplicateService {
		t.Fatalf("want ErrDuplicateService, got %v", err)
	}
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	reg := NewRegistry(zap.NewNop(), newFakeRunner(), 4)
	defer reg.Close()
	if err := reg.Remove("nope"); err != ErrUnknownService {
		t.Fatalf("want ErrUnknownService, got %v", err)
	}
}

func TestRegistry_RemoveDropsInFlightResult(t *testing.T) {
	runner := newFakeRunner()
	reg := NewRegistry(zap.NewNop(), runner, 4)
	defer reg.Close()

	if err := reg.Add(testConfig("svc-1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Wait for the immediate check to be in flight, then remove while the
	// runner is still blocked.
	<-runner.started
	removed := make(chan error, 1)
	go func() { removed <- reg.Remove("svc-1") }()

	// Give Remove time to cancel before the check settles.
	time.Sleep(20 * time.Millisecond)
	runner.release <- struct{}{}

	if err := <-removed; err != nil {
		t.Fatalf("remove: %v", err)
	}

	// No result for the removed service may surface after Remove returns.
	select {
	case res := <-reg.Results():
		t.Fatalf("got result for removed service: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	runner := newFakeRunner()
	for i := 0; i < 3; i++ {
		runner.release <- struct{}{}
	}
	reg := NewRegistry(zap.NewNop(), runner, 4)
	defer reg.Close()

	for _, id := range []string{"c", "a", "b"} {
		if err := reg.Add(testConfig(id)); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	ids := reg.IDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("ids not sorted: %v", ids)
	}
}

func TestRegistry_TicksOnInterval(t *testing.T) {
	if testing.Short() {
		t.Skip("interval granularity is one second")
	}
	runner := newFakeRunner()
	reg := NewRegistry(zap.NewNop(), runner, 4)
	defer reg.Close()

	cfg := testConfig("svc-1")
	cfg.Interval = 1
	if err := reg.Add(cfg); err != nil {
		t.Fatalf("add: %v", err)
	}

	runner.release <- struct{}{}
	_ = waitResult(t, reg, time.Second) // immediate check

	runner.release <- struct{}{}
	_ = waitResult(t, reg, 1500*time.Millisecond) // first tick
}
