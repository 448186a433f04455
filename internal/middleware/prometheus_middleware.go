package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPath = "/metrics"

// PrometheusMiddleware считает HTTP-метрики отладочного API:
//
//	<ns>_http_request_duration_seconds{method,path,status}
//	<ns>_http_response_size_bytes{path}  (дампы чанков бывают большими)
//	<ns>_http_requests_inflight
//	<ns>_http_request_errors_total{method,path,status}  (4xx/5xx)
//
// Запросы самого /metrics не учитываются.
type PrometheusMiddleware struct {
	reqDuration *prometheus.HistogramVec
	respSize    *prometheus.HistogramVec
	reqInflight prometheus.Gauge
	reqErrors   *prometheus.CounterVec
}

// NewPrometheusMiddleware регистрирует метрики в reg. Второй вызов с тем же
// namespace получает уже зарегистрированные коллекторы.
func NewPrometheusMiddleware(namespace string, reg prometheus.Registerer) *PrometheusMiddleware {
	labels := []string{"method", "path", "status"}
	pm := &PrometheusMiddleware{}

	pm.reqDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Длительность HTTP-запросов.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, labels))
	pm.respSize = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "Размер тела ответа.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"path"}))
	pm.reqInflight = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_inflight",
		Help:      "Запросы в обработке.",
	}))
	pm.reqErrors = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_request_errors_total",
		Help:      "Запросы, завершившиеся 4xx/5xx.",
	}, labels))
	return pm
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

// Handler подключается через router.Use()
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == metricsPath {
			c.Next()
			return
		}

		pm.reqInflight.Inc()
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		pm.reqInflight.Dec()

		if route == "" {
			// произвольные URL раздули бы кардинальность
			route = "unmatched"
		}
		code := c.Writer.Status()
		status := strconv.Itoa(code)
		method := c.Request.Method

		pm.reqDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
		if size := c.Writer.Size(); size > 0 {
			pm.respSize.WithLabelValues(route).Observe(float64(size))
		}
		if code >= http.StatusBadRequest {
			pm.reqErrors.WithLabelValues(method, route, status).Inc()
		}
	}
}

// RegisterMetricsEndpoint вешает GET /metrics с данными из g
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine, g prometheus.Gatherer) {
	r.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
