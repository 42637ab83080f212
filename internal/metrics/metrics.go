package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quizresults"

// Metrics содержит счётчики сервиса.
type Metrics struct {
	registry      *prometheus.Registry
	submissions   *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
	droppedErrors prometheus.Counter
}

// New создаёт Metrics на собственном реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Test result submissions by outcome.",
		}, []string{"outcome"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cached view lookups by key and result.",
		}, []string{"key", "result"}),
		droppedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_sink_dropped_total",
			Help:      "Error records dropped because the sink buffer was full.",
		}),
	}

	m.registry.MustRegister(
		m.submissions,
		m.cacheRequests,
		m.droppedErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveSubmission учитывает исход обработки заявки.
func (m *Metrics) ObserveSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

// ObserveCache учитывает обращение к закэшированному представлению.
func (m *Metrics) ObserveCache(key, result string) {
	m.cacheRequests.WithLabelValues(key, result).Inc()
}

// ObserveDroppedError учитывает запись, не попавшую в журнал ошибок.
func (m *Metrics) ObserveDroppedError() {
	m.droppedErrors.Inc()
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
