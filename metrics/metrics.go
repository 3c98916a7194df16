// Package metrics exposes Prometheus counters for the detection workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultMerged  = "merged"
	ResultSkipped = "skipped"
)

type Metrics struct {
	registry   *prometheus.Registry
	detections *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	merges     *prometheus.CounterVec
	imported   prometheus.Counter
}

// New creates a private registry with process/go collectors and the
// service counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bureau",
			Name:      "detections_ingested_total",
			Help:      "Detections logged, by initial status.",
		}, []string{"status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bureau",
			Name:      "alerts_total",
			Help:      "Alert dispatch attempts, by result.",
		}, []string{"result"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bureau",
			Name:      "encoding_merges_total",
			Help:      "Continuous learning attempts, by result.",
		}, []string{"result"}),
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bureau",
			Name:      "external_records_imported_total",
			Help:      "Missing person records inserted by the external import.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.detections, m.alerts, m.merges, m.imported,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The observe helpers are nil-safe so collaborators can run without metrics.

func (m *Metrics) ObserveDetection(status string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAlert(result string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveMerge(result string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveImported(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.imported.Add(float64(n))
}
