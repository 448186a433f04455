package eventbus

import (
	"context"

	"github.com/annel0/polyview/internal/logging"
)

// StartLoggingListener подписывает логгер на все события шины
func StartLoggingListener(bus EventBus) (Subscription, error) {
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s %s", ev.ID, ev.EventType, ev.Source, ev.Payload)
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
