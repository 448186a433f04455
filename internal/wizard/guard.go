package wizard

import (
	"fmt"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/metrics"
)

// Guard выполняет колбэк визарда, перехватывая панику.
// Сбой одного визарда не должен прерывать обработку остальных.
func Guard(op string, w Wizard, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			metrics.WizardPanics.WithLabelValues(op).Inc()
			logging.Error("❌ Паника в визарде %T на %v (%s): %s", w, w.Pos(), op, fmt.Sprint(r))
		}
	}()
	fn()
	return true
}
