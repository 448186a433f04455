package eventbus

import (
	"context"

	"github.com/annel0/polyview/internal/logging"
)

// Emit упаковывает полезную нагрузку и публикует её в шину.
// Шина может быть nil; ошибки публикации только логируются, события мира
// не должны останавливать его обработку.
func Emit(bus EventBus, source, eventType string, payload any) {
	if bus == nil {
		return
	}
	ev, err := NewEnvelope(source, eventType, payload)
	if err != nil {
		logging.Warn("⚠️ Не удалось упаковать событие %s: %v", eventType, err)
		return
	}
	ev.Priority = 3
	if err := bus.Publish(context.Background(), ev); err != nil {
		logging.Warn("⚠️ Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
