package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector отдаёт Stats шины в Prometheus в момент сбора
type Collector struct {
	bus EventBus

	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// NewCollector описывает метрики шины с меткой backend
func NewCollector(bus EventBus, backend string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("polyview", "eventbus", name),
			help, nil, prometheus.Labels{"backend": backend},
		)
	}
	return &Collector{
		bus:       bus,
		published: desc("messages_published_total", "Опубликованные события."),
		consumed:  desc("messages_consumed_total", "События, доставленные подписчикам."),
		dropped:   desc("messages_dropped_total", "События, потерянные при переполнении или ошибке отправки."),
		inflight:  desc("messages_inflight", "События в очереди, ещё не доставленные."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.consumed
	ch <- c.dropped
	ch <- c.inflight
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.consumed, prometheus.CounterValue, float64(s.Consumed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(s.InFlight))
}
