package middleware

import (
	"net/http"
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDKey - ключ gin.Context с идентификатором запроса
const TraceIDKey = "trace_id"

const traceHeader = "X-Trace-Id"

// RequestLogger выдаёт запросу trace-ID и пишет строку на вход и выход.
// Ответы 5xx и ошибки из c.Errors идут в WARN, остальное в DEBUG.
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger: nil - логгер по умолчанию
func NewRequestLogger(log *logging.Logger) *RequestLogger {
	return &RequestLogger{log: log}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := requestTraceID(c)
		c.Set(TraceIDKey, traceID)
		c.Header(traceHeader, traceID)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rl.debug("[HTTP] ▶ %s %s ip=%s trace=%s", c.Request.Method, route, c.ClientIP(), traceID)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError || len(c.Errors) > 0 {
			rl.warn("[HTTP] ❌ %s %s %d %s trace=%s err=%s",
				c.Request.Method, route, status, elapsed, traceID, c.Errors.String())
			return
		}
		rl.debug("[HTTP] ◀ %s %s %d %s trace=%s", c.Request.Method, route, status, elapsed, traceID)
	}
}

// requestTraceID берёт trace-ID из активного span, затем из заголовка клиента,
// иначе генерирует новый
func requestTraceID(c *gin.Context) string {
	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	if id := c.GetHeader(traceHeader); id != "" && len(id) <= 64 {
		return id
	}
	return uuid.NewString()
}

func (rl *RequestLogger) debug(format string, args ...interface{}) {
	if rl.log != nil {
		rl.log.Debug(format, args...)
		return
	}
	logging.Debug(format, args...)
}

func (rl *RequestLogger) warn(format string, args ...interface{}) {
	if rl.log != nil {
		rl.log.Warn(format, args...)
		return
	}
	logging.Warn(format, args...)
}
