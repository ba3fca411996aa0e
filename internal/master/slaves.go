package master

import (
	"sort"
	"sync"
	"time"

	"uptimefleet/internal/domain"
)

// SlaveRegistry tracks worker liveness and service assignment. The
// assignment set is authoritative and only changes through Assign/Unassign;
// a heartbeat updates lastHeartbeat and the diagnostic reported set, never
// the assignment. isActive is derived on read.
type SlaveRegistry struct {
	timeout time.Duration

	mu     sync.RWMutex
	slaves map[string]*domain.SlaveStatus
}

func NewSlaveRegistry(heartbeatTimeout time.Duration) *SlaveRegistry {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = time.Minute
	}
	return &SlaveRegistry{
		timeout: heartbeatTimeout,
		slaves:  make(map[string]*domain.SlaveStatus),
	}
}

// Observe upserts a slave from a heartbeat and returns the assigned
// services the slave did not report — the divergence the master
// reconciles by re-pushing.
func (r *SlaveRegistry) Observe(hb domain.Heartbeat, now time.Time) (missing []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sl := r.slaves[hb.SlaveID]
	if sl == nil {
		sl = &domain.SlaveStatus{ID: hb.SlaveID, Services: []string{}}
		r.slaves[hb.SlaveID] = sl
	}
	sl.Name = hb.SlaveName
	sl.Host = hb.Host
	sl.Port = hb.Port
	sl.LastHeartbeat = now
	sl.ReportedServices = append([]string(nil), hb.Services...)
	sl.Stats = hb.Stats

	reported := make(map[string]struct{}, len(hb.Services))
	for _, id := range hb.Services {
		reported[id] = struct{}{}
	}
	for _, id := range sl.Services {
		if _, ok := reported[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Assign adds a service to a slave's authoritative set.
func (r *SlaveRegistry) Assign(slaveID, serviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sl := r.slaves[slaveID]
	if sl == nil {
		return
	}
	for _, id := range sl.Services {
		if id == serviceID {
			return
		}
	}
	sl.Services = append(sl.Services, serviceID)
	sort.Strings(sl.Services)
}

// Unassign removes a service from every slave's set and returns the
// slaves that were running it.
func (r *SlaveRegistry) Unassign(serviceID string) []domain.SlaveStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected []domain.SlaveStatus
	for _, sl := range r.slaves {
		kept := sl.Services[:0]
		had := false
		for _, id := range sl.Services {
			if id == serviceID {
				had = true
				continue
			}
			kept = append(kept, id)
		}
		sl.Services = kept
		if had {
			affected = append(affected, cloneSlave(sl, time.Now(), r.timeout))
		}
	}
	return affected
}

// Get returns a copy of one slave with liveness computed.
func (r *SlaveRegistry) Get(id string, now time.Time) (domain.SlaveStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sl, ok := r.slaves[id]
	if !ok {
		return domain.SlaveStatus{}, false
	}
	return cloneSlave(sl, now, r.timeout), true
}

// List returns copies of all slaves with liveness computed, sorted by id.
func (r *SlaveRegistry) List(now time.Time) []domain.SlaveStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SlaveStatus, 0, len(r.slaves))
	for _, sl := range r.slaves {
		out = append(out, cloneSlave(sl, now, r.timeout))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PickActive returns the active slave with the fewest assigned services.
func (r *SlaveRegistry) PickActive(now time.Time) (domain.SlaveStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.SlaveStatus
	for _, sl := range r.slaves {
		if now.Sub(sl.LastHeartbeat) >= r.timeout {
			continue
		}
		if best == nil || len(sl.Services) < len(best.Services) ||
			(len(sl.Services) == len(best.Services) && sl.ID < best.ID) {
			best = sl
		}
	}
	if best == nil {
		return domain.SlaveStatus{}, false
	}
	return cloneSlave(best, now, r.timeout), true
}

// Export deep-copies the registry for persistence.
func (r *SlaveRegistry) Export(now time.Time) map[string]*domain.SlaveStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.SlaveStatus, len(r.slaves))
	for id, sl := range r.slaves {
		c := cloneSlave(sl, now, r.timeout)
		out[id] = &c
	}
	return out
}

// Restore loads persisted slaves. Liveness is recomputed on read, so a
// stale isActive flag from disk is harmless.
func (r *SlaveRegistry) Restore(slaves map[string]*domain.SlaveStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slaves = make(map[string]*domain.SlaveStatus, len(slaves))
	for id, sl := range slaves {
		c := cloneSlave(sl, sl.LastHeartbeat, r.timeout)
		if c.Services == nil {
			c.Services = []string{}
		}
		r.slaves[id] = &c
	}
}

func cloneSlave(sl *domain.SlaveStatus, now time.Time, timeout time.Duration) domain.SlaveStatus {
	out := *sl
	out.Services = append([]string(nil), sl.Services...)
	out.ReportedServices = append([]string(nil), sl.ReportedServices...)
	if sl.Stats != nil {
		st := *sl.Stats
		out.Stats = &st
	}
	out.IsActive = now.Sub(sl.LastHeartbeat) < timeout
	return out
}
