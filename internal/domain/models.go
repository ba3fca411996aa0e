package domain

import "time"

type ServiceType string

const (
	TypeHTTP ServiceType = "http"
	TypeICMP ServiceType = "icmp"
)

// ServiceConfig describes one monitored service. Immutable once registered;
// updates go through delete + recreate.
type ServiceConfig struct {
	ID       string      `json:"id" validate:"required"`
	Name     string      `json:"name" validate:"required"`
	Type     ServiceType `json:"type" validate:"required,oneof=http icmp"`
	URL      string      `json:"url,omitempty" validate:"required_if=Type http,omitempty,url"`
	Host     string      `json:"host,omitempty" validate:"required_if=Type icmp"`
	Interval int         `json:"interval" validate:"required,gt=0"` // seconds
	Timeout  int         `json:"timeout" validate:"required,gt=0"`  // milliseconds
}

// Target returns the probe target for the config's type.
func (c ServiceConfig) Target() string {
	if c.Type == TypeICMP {
		return c.Host
	}
	return c.URL
}

func (c ServiceConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c ServiceConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// MonitoringResult is the outcome of one full check (possibly several probe
// attempts). Duration is the deciding attempt's latency in milliseconds;
// inter-retry sleep is not counted.
type MonitoringResult struct {
	ServiceID string    `json:"serviceId"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  float64   `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// DowntimePeriod is a contiguous outage. End == nil means still down.
type DowntimePeriod struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

// Duration of the period, counting an open period up to now.
func (p DowntimePeriod) Duration(now time.Time) time.Duration {
	end := now
	if p.End != nil {
		end = *p.End
	}
	if end.Before(p.Start) {
		return 0
	}
	return end.Sub(p.Start)
}

// ServiceStatus is the master's aggregate view of one service. Mutated only
// by the uptime state engine.
type ServiceStatus struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Type                ServiceType      `json:"type"`
	Target              string           `json:"target"`
	Interval            int              `json:"interval"`
	Timeout             int              `json:"timeout"`
	CreatedAt           time.Time        `json:"createdAt"`
	LastCheck           time.Time        `json:"lastCheck"`
	LastStatus          bool             `json:"lastStatus"`
	UptimePercentage    float64          `json:"uptimePercentage"`
	UptimePercentage30d float64          `json:"uptimePercentage30d"`
	AssignedSlaves      []string         `json:"assignedSlaves,omitempty"`
	LastDowntime        *DowntimePeriod  `json:"lastDowntime,omitempty"`
	DowntimePeriods     []DowntimePeriod `json:"downtimePeriods"`

	// ArchivedDowntimeMS carries the summed duration of downtime periods
	// pruned by retention, so lifetime percentages stay exact while the
	// period list stays bounded.
	ArchivedDowntimeMS float64 `json:"archivedDowntimeMs,omitempty"`
}

// OpenDowntime returns the currently open period, if any.
func (s *ServiceStatus) OpenDowntime() *DowntimePeriod {
	if n := len(s.DowntimePeriods); n > 0 && s.DowntimePeriods[n-1].End == nil {
		return &s.DowntimePeriods[n-1]
	}
	return nil
}

// SlaveStats is host telemetry a slave attaches to its heartbeats.
type SlaveStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemPercent float64 `json:"memPercent"`
	MemUsed    uint64  `json:"memUsed"`
	MemTotal   uint64  `json:"memTotal"`
	Goroutines int     `json:"goroutines"`
}

// SlaveStatus tracks one worker. Services is the master's authoritative
// assignment set; ReportedServices is what the slave last claimed via
// heartbeat (diagnostic only). IsActive is derived on read, never stored
// as a durable fact.
type SlaveStatus struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Host             string      `json:"host"`
	Port             int         `json:"port"`
	LastHeartbeat    time.Time   `json:"lastHeartbeat"`
	IsActive         bool        `json:"isActive"`
	Services         []string    `json:"services"`
	ReportedServices []string    `json:"reportedServices,omitempty"`
	Stats            *SlaveStats `json:"stats,omitempty"`
}

// StorageSnapshot is the unit of durable persistence.
type StorageSnapshot struct {
	ServiceConfigs  map[string]ServiceConfig  `json:"serviceConfigs"`
	ServiceStatuses map[string]*ServiceStatus `json:"serviceStatuses"`
	SlaveStatuses   map[string]*SlaveStatus   `json:"slaveStatuses"`
	LastUpdated     time.Time                 `json:"lastUpdated"`
}

// Normalize fills nil collections so a partially-shaped snapshot (fresh
// file, older schema) never trips callers.
func (s *StorageSnapshot) Normalize() {
	if s.ServiceConfigs == nil {
		s.ServiceConfigs = make(map[string]ServiceConfig)
	}
	if s.ServiceStatuses == nil {
		s.ServiceStatuses = make(map[string]*ServiceStatus)
	}
	if s.SlaveStatuses == nil {
		s.SlaveStatuses = make(map[string]*SlaveStatus)
	}
	for _, st := range s.ServiceStatuses {
		if st.DowntimePeriods == nil {
			st.DowntimePeriods = []DowntimePeriod{}
		}
	}
}
