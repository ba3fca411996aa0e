package master

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"uptimefleet/internal/notify"
)

// Alerter turns engine transitions into notifications. DOWN alerts honor a
// cooldown so a flapping service does not spam the channel; RECOVERED
// alerts bypass the cooldown.
type Alerter struct {
	logger   *zap.Logger
	notifier notify.Notifier
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // per service, DOWN alerts only
}

func NewAlerter(logger *zap.Logger, notifier notify.Notifier, cooldown time.Duration) *Alerter {
	return &Alerter{
		logger:   logger,
		notifier: notifier,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
	}
}

// Handle is wired as the engine's transition hook. Best-effort: a send
// failure is logged and the transition is otherwise unaffected.
func (a *Alerter) Handle(tr Transition) {
	if a.notifier == nil {
		return
	}

	title := "🔴 Service DOWN"
	if tr.Up {
		title = "🟢 Service RECOVERED"
	}

	if !tr.Up {
		a.mu.Lock()
		if last, ok := a.lastSent[tr.Status.ID]; ok && tr.At.Sub(last) < a.cooldown {
			a.mu.Unlock()
			return
		}
		a.lastSent[tr.Status.ID] = tr.At
		a.mu.Unlock()
	}

	text := fmt.Sprintf(
		"Service: %s (%s)\nTarget: %s\nUptime: %.2f%% (30d: %.2f%%)\nAt: %s",
		tr.Status.Name, tr.Status.ID, tr.Status.Target,
		tr.Status.UptimePercentage, tr.Status.UptimePercentage30d,
		tr.At.Format(time.RFC3339),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.logger.Warn("alert_send_failed",
			zap.String("service_id", tr.Status.ID),
			zap.Bool("up", tr.Up),
			zap.Error(err),
		)
	}
}
