package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Notifier delivers a service up/down alert to one channel.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Fanout delivers to every configured channel. All channels are attempted
// even when one fails; the errors come back joined.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, title, text string) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, title, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes alerts to the structured log. It is the default sink
// when no webhook is configured, so transitions always land somewhere.
type LogNotifier struct {
	Logger *zap.Logger
}

func (l *LogNotifier) Send(_ context.Context, title, text string) error {
	l.Logger.Info("alert",
		zap.String("title", title),
		zap.String("text", text),
	)
	return nil
}
