package wizard

import (
	"time"

	"github.com/annel0/polyview/internal/metrics"
)

// Ticker - реестр тикаемых визардов одного мира.
// Передаётся кешам чанков явно; работает в потоке мира, без блокировок.
type Ticker struct {
	wizards map[Wizard]struct{}
}

// NewTicker создаёт пустой реестр
func NewTicker() *Ticker {
	return &Ticker{wizards: make(map[Wizard]struct{})}
}

// Add регистрирует визарда (повторная регистрация игнорируется)
func (t *Ticker) Add(w Wizard) {
	if _, exists := t.wizards[w]; exists {
		return
	}
	t.wizards[w] = struct{}{}
	metrics.WizardsLive.Inc()
}

// Remove снимает визарда с тиков
func (t *Ticker) Remove(w Wizard) {
	if _, exists := t.wizards[w]; !exists {
		return
	}
	delete(t.wizards, w)
	metrics.WizardsLive.Dec()
}

// Contains проверяет регистрацию визарда
func (t *Ticker) Contains(w Wizard) bool {
	_, exists := t.wizards[w]
	return exists
}

// Len возвращает количество зарегистрированных визардов
func (t *Ticker) Len() int { return len(t.wizards) }

// Tick вызывает OnTick у всех зарегистрированных визардов
func (t *Ticker) Tick(tick uint64) {
	start := time.Now()
	for w := range t.wizards {
		Guard("tick", w, func() { w.OnTick(tick) })
	}
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}
