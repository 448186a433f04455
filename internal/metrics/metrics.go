// Package metrics содержит Prometheus-метрики подсистемы визардов.
//
// Коллекторы создаются на уровне пакета и работают без регистрации
// (в тестах), в main их нужно один раз зарегистрировать через Register.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "polyview"

var (
	// WizardsLive - количество живых визардов, зарегистрированных в тикере
	WizardsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "wizards_live",
		Help:      "Количество живых визардов во всех загруженных чанках.",
	})

	// WizardsCreated - созданные визарды по причине (scan|place)
	WizardsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wizards_created_total",
		Help:      "Общее число созданных визардов.",
	}, []string{"reason"})

	// WizardsRemoved - снятые визарды по причине (replace|move|discard)
	WizardsRemoved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wizards_removed_total",
		Help:      "Общее число снятых визардов.",
	}, []string{"reason"})

	// TablesBuilt - построенные таблицы визардов (scanned|empty)
	TablesBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wizard_tables_built_total",
		Help:      "Число построенных таблиц позиция→визард по результату.",
	}, []string{"result"})

	// ScanDuration - длительность сканирования секции по пути (palette|direct|empty)
	ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "section_scan_duration_seconds",
		Help:      "Длительность сканирования одной секции чанка.",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"path"})

	// MalformedSections - секции, пропущенные из-за повреждённых данных
	MalformedSections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_sections_total",
		Help:      "Число секций с несогласованными данными хранилища.",
	})

	// BlockSetEvents - события установки блока, обработанные кешем
	BlockSetEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_set_events_total",
		Help:      "Число событий установки блока, обработанных кешем визардов.",
	})

	// WizardPanics - перехваченные паники в колбэках визардов
	WizardPanics = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wizard_panics_total",
		Help:      "Паники в колбэках визардов, перехваченные без прерывания обработки.",
	}, []string{"op"})

	// TickDuration - длительность одного тика визардов мира
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "wizard_tick_duration_seconds",
		Help:      "Длительность тика всех визардов мира.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	// ChunksLoaded - загруженные чанки
	ChunksLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chunks_loaded",
		Help:      "Количество загруженных чанков.",
	})
)

var registerOnce sync.Once

// Register регистрирует все метрики в указанном регистре (один раз за процесс)
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			WizardsLive,
			WizardsCreated,
			WizardsRemoved,
			TablesBuilt,
			ScanDuration,
			MalformedSections,
			BlockSetEvents,
			WizardPanics,
			TickDuration,
			ChunksLoaded,
		)
	})
}
