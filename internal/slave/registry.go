package slave

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

var (
	ErrDuplicateService = errors.New("service already registered")
	ErrUnknownService   = errors.New("service not registered")
)

// CheckRunner executes one full check for a service.
type CheckRunner interface {
	Execute(ctx context.Context, cfg domain.ServiceConfig) domain.MonitoringResult
}

// Registry owns the slave's service set and the per-service schedules.
// Each service runs its own timer goroutine: the first check fires
// immediately on registration, later checks on the fixed interval. A
// service's checks never overlap themselves; a shared semaphore caps
// check concurrency across services.
type Registry struct {
	logger  *zap.Logger
	runner  CheckRunner
	sem     chan struct{}
	results chan domain.MonitoringResult

	mu       sync.Mutex
	services map[string]*scheduled
}

type scheduled struct {
	cfg    domain.ServiceConfig
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry(logger *zap.Logger, runner CheckRunner, maxConcurrent int) *Registry {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Registry{
		logger:   logger,
		runner:   runner,
		sem:      make(chan struct{}, maxConcurrent),
		results:  make(chan domain.MonitoringResult, 64),
		services: make(map[string]*scheduled),
	}
}

// Results is the stream the Reporter consumes.
func (r *Registry) Results() <-chan domain.MonitoringResult {
	return r.results
}

// Add registers a service and starts its schedule. The first check runs
// right away without waiting for the first tick.
func (r *Registry) Add(cfg domain.ServiceConfig) error {
	r.mu.Lock()
	if _, ok := r.services[cfg.ID]; ok {
		r.mu.Unlock()
		return ErrDuplicateService
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry := &scheduled{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	r.services[cfg.ID] = entry
	r.mu.Unlock()

	go r.run(ctx, cfg, entry.done)

	r.logger.Info("service_registered",
		zap.String("service_id", cfg.ID),
		zap.String("type", string(cfg.Type)),
		zap.String("target", cfg.Target()),
		zap.Int("interval_s", cfg.Interval),
	)
	return nil
}

// Remove cancels a service's schedule and waits for its loop to exit, so
// no further check for the id starts. A check in flight at removal time
// has its result dropped on a best-effort basis; the master's unknown-id
// guard discards anything that slips through.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	entry, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownService
	}
	delete(r.services, id)
	r.mu.Unlock()

	entry.cancel()
	<-entry.done

	r.logger.Info("service_removed", zap.String("service_id", id))
	return nil
}

// List returns the registered configs, sorted by id.
func (r *Registry) List() []domain.ServiceConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ServiceConfig, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the registered service-id set, sorted.
func (r *Registry) IDs() []string {
	cfgs := r.List()
	ids := make([]string, len(cfgs))
	for i, c := range cfgs {
		ids[i] = c.ID
	}
	return ids
}

// Close cancels every schedule and waits for the loops to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := make([]*scheduled, 0, len(r.services))
	for id, e := range r.services {
		entries = append(entries, e)
		delete(r.services, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
		<-e.done
	}
}

func (r *Registry) run(ctx context.Context, cfg domain.ServiceConfig, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(cfg.IntervalDuration())
	defer ticker.Stop()

	r.checkOnce(ctx, cfg)

	// Ticks do not stack: a check that overruns its interval delays the
	// next tick instead of queuing a second one.
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkOnce(ctx, cfg)
		}
	}
}

func (r *Registry) checkOnce(ctx context.Context, cfg domain.ServiceConfig) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-r.sem }()

	res := r.runner.Execute(ctx, cfg)
	if ctx.Err() != nil {
		// Removed while checking; the result must not reach the Reporter.
		return
	}

	select {
	case r.results <- res:
	case <-ctx.Done():
	}

	r.logger.Debug("check_done",
		zap.String("service_id", cfg.ID),
		zap.Bool("success", res.Success),
		zap.Float64("duration_ms", res.Duration),
		zap.String("error", res.Error),
	)
}
