package master

import (
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

var (
	ErrUnknownService   = errors.New("service not registered")
	ErrDuplicateService = errors.New("service already registered")
)

// Transition is an up<->down state change observed by the engine.
type Transition struct {
	Status domain.ServiceStatus
	Up     bool
	At     time.Time
}

// Engine is the single writer of ServiceStatus. Results for the same
// service are applied strictly one at a time (per-service mutex);
// results for different services proceed in parallel (shared RLock over
// the maps). Structural operations (register, remove, export) take the
// write lock and therefore see no in-flight mutation.
type Engine struct {
	logger    *zap.Logger
	retention time.Duration

	mu       sync.RWMutex
	configs  map[string]domain.ServiceConfig
	statuses map[string]*domain.ServiceStatus
	locks    map[string]*sync.Mutex

	onTransition func(Transition)
}

func NewEngine(logger *zap.Logger, retentionDays int) *Engine {
	if retentionDays < 30 {
		retentionDays = 30
	}
	return &Engine{
		logger:    logger,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		configs:   make(map[string]domain.ServiceConfig),
		statuses:  make(map[string]*domain.ServiceStatus),
		locks:     make(map[string]*sync.Mutex),
	}
}

// OnTransition registers a callback fired after every up<->down change,
// outside the engine's locks.
func (e *Engine) OnTransition(fn func(Transition)) {
	e.onTransition = fn
}

// Register creates the service's initial status: up, 100% availability,
// no downtime history.
func (e *Engine) Register(cfg domain.ServiceConfig, now time.Time) (domain.ServiceStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.configs[cfg.ID]; ok {
		return domain.ServiceStatus{}, ErrDuplicateService
	}

	st := &domain.ServiceStatus{
		ID:                  cfg.ID,
		Name:                cfg.Name,
		Type:                cfg.Type,
		Target:              cfg.Target(),
		Interval:            cfg.Interval,
		Timeout:             cfg.Timeout,
		CreatedAt:           now,
		LastStatus:          true,
		UptimePercentage:    100,
		UptimePercentage30d: 100,
		DowntimePeriods:     []domain.DowntimePeriod{},
	}
	e.configs[cfg.ID] = cfg
	e.statuses[cfg.ID] = st
	e.locks[cfg.ID] = &sync.Mutex{}
	return cloneStatus(st), nil
}

// Remove deletes a service. Later results for the id fail the Apply
// liveness guard.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.configs[id]; !ok {
		return false
	}
	delete(e.configs, id)
	delete(e.statuses, id)
	delete(e.locks, id)
	return true
}

// Apply folds one result into the service's status and returns the updated
// copy. Unknown ids (removed or never registered) return ErrUnknownService;
// that guard is what keeps in-flight results for removed services from
// mutating state.
func (e *Engine) Apply(res domain.MonitoringResult, now time.Time) (domain.ServiceStatus, error) {
	e.mu.RLock()
	st := e.statuses[res.ServiceID]
	lk := e.locks[res.ServiceID]
	if st == nil || lk == nil {
		e.mu.RUnlock()
		return domain.ServiceStatus{}, ErrUnknownService
	}

	lk.Lock()
	first := st.LastCheck.IsZero()
	wasUp := first || st.LastStatus

	st.LastCheck = now
	st.LastStatus = res.Success

	changed := false
	switch {
	case !res.Success && wasUp:
		// A service is assumed up until told otherwise, so a failing
		// first result opens a period too.
		if st.OpenDowntime() == nil {
			st.DowntimePeriods = append(st.DowntimePeriods, domain.DowntimePeriod{Start: now})
			last := st.DowntimePeriods[len(st.DowntimePeriods)-1]
			st.LastDowntime = &last
			changed = true
		}
	case res.Success && !wasUp:
		if open := st.OpenDowntime(); open != nil {
			end := now
			open.End = &end
			closed := *open
			st.LastDowntime = &closed
		}
		changed = true
	}

	e.prune(st, now)
	st.UptimePercentage = availability(st, now, 0)
	st.UptimePercentage30d = availability(st, now, 30*24*time.Hour)

	out := cloneStatus(st)
	lk.Unlock()
	e.mu.RUnlock()

	if changed {
		e.logger.Info("service_state_changed",
			zap.String("service_id", out.ID),
			zap.Bool("up", res.Success),
			zap.Time("at", now),
			zap.String("error", res.Error),
		)
		if e.onTransition != nil {
			e.onTransition(Transition{Status: out, Up: res.Success, At: now})
		}
	}
	return out, nil
}

// prune folds closed periods older than retention into the archived
// counter so the period list stays bounded without skewing lifetime math.
func (e *Engine) prune(st *domain.ServiceStatus, now time.Time) {
	cutoff := now.Add(-e.retention)
	kept := 0
	for _, p := range st.DowntimePeriods {
		if p.End != nil && p.End.Before(cutoff) {
			st.ArchivedDowntimeMS += float64(p.Duration(now).Milliseconds())
			continue
		}
		st.DowntimePeriods[kept] = p
		kept++
	}
	st.DowntimePeriods = st.DowntimePeriods[:kept]
}

// availability computes the uptime percentage over [start, now] where
// start is createdAt, or now-window for the rolling variant. Downtime
// periods are clipped to the span; open periods count up to now. The
// result is clamped to [0,100] and a zero-length span is 100% (guards the
// currentTime == createdAt divide-by-zero).
func availability(st *domain.ServiceStatus, now time.Time, window time.Duration) float64 {
	start := st.CreatedAt
	if window > 0 {
		if ws := now.Add(-window); ws.After(start) {
			start = ws
		}
	}
	span := now.Sub(start)
	if span <= 0 {
		return 100
	}

	var downMS float64
	if window == 0 {
		downMS = st.ArchivedDowntimeMS
	}
	for _, p := range st.DowntimePeriods {
		from := p.Start
		if from.Before(start) {
			from = start
		}
		to := now
		if p.End != nil && p.End.Before(now) {
			to = *p.End
		}
		if to.After(from) {
			downMS += float64(to.Sub(from)) / float64(time.Millisecond)
		}
	}

	// Fractional milliseconds keep a sub-millisecond span from truncating
	// to a zero denominator.
	spanMS := float64(span) / float64(time.Millisecond)
	pct := 100 * (spanMS - downMS) / spanMS
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Status returns a copy of one service's status.
func (e *Engine) Status(id string) (domain.ServiceStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[id]
	if !ok {
		return domain.ServiceStatus{}, false
	}
	return cloneStatus(st), true
}

// Statuses returns copies of all statuses, sorted by id.
func (e *Engine) Statuses() []domain.ServiceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ServiceStatus, 0, len(e.statuses))
	for _, st := range e.statuses {
		out = append(out, cloneStatus(st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Config returns a registered service's config.
func (e *Engine) Config(id string) (domain.ServiceConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg, ok := e.configs[id]
	return cfg, ok
}

// SetAssignment records which slaves a service is assigned to.
func (e *Engine) SetAssignment(serviceID string, slaves []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.statuses[serviceID]; ok {
		st.AssignedSlaves = append([]string(nil), slaves...)
	}
}

// Export deep-copies the engine's state for persistence.
func (e *Engine) Export() (map[string]domain.ServiceConfig, map[string]*domain.ServiceStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	configs := make(map[string]domain.ServiceConfig, len(e.configs))
	for id, cfg := range e.configs {
		configs[id] = cfg
	}
	statuses := make(map[string]*domain.ServiceStatus, len(e.statuses))
	for id, st := range e.statuses {
		c := cloneStatus(st)
		statuses[id] = &c
	}
	return configs, statuses
}

// Restore loads a snapshot, replacing any current state. Statuses present
// without a config (or vice versa) are kept as-is; Normalize has already
// filled structural gaps.
func (e *Engine) Restore(configs map[string]domain.ServiceConfig, statuses map[string]*domain.ServiceStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = make(map[string]domain.ServiceConfig, len(configs))
	e.statuses = make(map[string]*domain.ServiceStatus, len(statuses))
	e.locks = make(map[string]*sync.Mutex)
	for id, cfg := range configs {
		e.configs[id] = cfg
		e.locks[id] = &sync.Mutex{}
	}
	for id, st := range statuses {
		c := cloneStatus(st)
		e.statuses[id] = &c
		if _, ok := e.locks[id]; !ok {
			e.locks[id] = &sync.Mutex{}
		}
	}
}

func cloneStatus(st *domain.ServiceStatus) domain.ServiceStatus {
	out := *st
	out.DowntimePeriods = make([]domain.DowntimePeriod, len(st.DowntimePeriods))
	for i, p := range st.DowntimePeriods {
		out.DowntimePeriods[i] = p
		if p.End != nil {
			end := *p.End
			out.DowntimePeriods[i].End = &end
		}
	}
	if st.LastDowntime != nil {
		ld := *st.LastDowntime
		if st.LastDowntime.End != nil {
			end := *st.LastDowntime.End
			ld.End = &end
		}
		out.LastDowntime = &ld
	}
	out.AssignedSlaves = append([]string(nil), st.AssignedSlaves...)
	return out
}
