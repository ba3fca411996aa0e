package domain

// Heartbeat is the slave→master liveness payload. Identity also travels in
// the X-Slave-ID / X-Slave-Name headers; the body is authoritative for the
// addressable endpoint and the self-reported service set.
type Heartbeat struct {
	SlaveID   string      `json:"slaveId"`
	SlaveName string      `json:"slaveName"`
	Host      string      `json:"host"`
	Port      int         `json:"port"`
	Services  []string    `json:"services"`
	Stats     *SlaveStats `json:"stats,omitempty"`
}

// Report wraps a MonitoringResult with the reporting slave's identity.
type Report struct {
	MonitoringResult
	SlaveID string `json:"slaveId"`
}
