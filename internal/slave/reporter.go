package slave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

// Reporter ships check results and periodic heartbeats to the master.
// Transport failures have their own bounded retry, separate from check
// retries, and are never fatal to the slave.
type Reporter struct {
	Logger    *zap.Logger
	Client    *http.Client
	MasterURL string
	APIKey    string
	SlaveID   string
	SlaveName string
	Host      string
	Port      int

	HeartbeatEvery time.Duration
	Services       func() []string
	Stats          func(context.Context) *domain.SlaveStats

	// Delivery retry policy for one report.
	DeliveryAttempts int
	DeliveryBackoff  time.Duration
}

func NewReporter(logger *zap.Logger, masterURL, apiKey, slaveID, slaveName, host string, port int, heartbeatEvery time.Duration) *Reporter {
	return &Reporter{
		Logger:           logger,
		Client:           &http.Client{Timeout: 10 * time.Second},
		MasterURL:        masterURL,
		APIKey:           apiKey,
		SlaveID:          slaveID,
		SlaveName:        slaveName,
		Host:             host,
		Port:             port,
		HeartbeatEvery:   heartbeatEvery,
		Services:         func() []string { return nil },
		Stats:            CollectStats,
		DeliveryAttempts: 3,
		DeliveryBackoff:  500 * time.Millisecond,
	}
}

// Run consumes the registry's result stream and drives the heartbeat loop.
// Blocks until ctx is cancelled.
func (rp *Reporter) Run(ctx context.Context, results <-chan domain.MonitoringResult) {
	go rp.heartbeatLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			rp.Logger.Info("reporter_stopped")
			return
		case res := <-results:
			rp.deliver(ctx, res)
		}
	}
}

func (rp *Reporter) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(rp.HeartbeatEvery)
	defer t.Stop()

	// immediate first beat
	rp.sendHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rp.sendHeartbeat(ctx)
		}
	}
}

func (rp *Reporter) sendHeartbeat(ctx context.Context) {
	hb := domain.Heartbeat{
		SlaveID:   rp.SlaveID,
		SlaveName: rp.SlaveName,
		Host:      rp.Host,
		Port:      rp.Port,
		Services:  rp.Services(),
	}
	if rp.Stats != nil {
		hb.Stats = rp.Stats(ctx)
	}

	if err := rp.post(ctx, "/api/heartbeat", hb); err != nil {
		// Next tick retries; the master tolerates one missed beat.
		rp.Logger.Warn("heartbeat_failed",
			zap.String("slave_id", rp.SlaveID),
			zap.Error(err),
		)
		return
	}
	rp.Logger.Debug("heartbeat_sent",
		zap.String("slave_id", rp.SlaveID),
		zap.Int("services", len(hb.Services)),
	)
}

// deliver posts one result, retrying transient transport failures.
// At-least-once: a duplicate from a retried delivery is idempotent on the
// master side.
func (rp *Reporter) deliver(ctx context.Context, res domain.MonitoringResult) {
	report := domain.Report{MonitoringResult: res, SlaveID: rp.SlaveID}

	var err error
	for attempt := 0; attempt < rp.DeliveryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * rp.DeliveryBackoff):
			}
		}
		if err = rp.post(ctx, "/api/report", report); err == nil {
			return
		}
	}

	rp.Logger.Warn("report_delivery_failed",
		zap.String("slave_id", rp.SlaveID),
		zap.String("service_id", res.ServiceID),
		zap.Time("checked_at", res.Timestamp),
		zap.Error(err),
	)
}

func (rp *Reporter) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rp.MasterURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rp.APIKey)
	req.Header.Set("X-Slave-ID", rp.SlaveID)
	req.Header.Set("X-Slave-Name", rp.SlaveName)

	resp, err := rp.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("master returned %s", resp.Status)
	}
	return nil
}
