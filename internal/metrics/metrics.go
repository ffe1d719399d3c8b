// Package metrics exposes the server's Prometheus counters and
// histograms against a registry the server owns rather than the global
// default registry, so tests can inspect a fresh set of collectors. No
// HTTP exporter is started by this server; the registry exists purely
// as an ambient observability surface, exercised directly by tests via
// testutil.ToFloat64.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this server registers.
type Metrics struct {
	Registry *prometheus.Registry

	DocumentsOpen      prometheus.Gauge
	AnalysesTotal       prometheus.Counter
	AnalysisDuration     prometheus.Histogram
	CommandsTotal       *prometheus.CounterVec
	SendMessageOutcomes *prometheus.CounterVec
}

// New builds and registers a fresh set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		DocumentsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hl7ls_documents_open",
			Help: "Number of HL7 documents currently open in the server.",
		}),
		AnalysesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7ls_analyses_total",
			Help: "Total number of document analyses run by the Analysis Engine.",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hl7ls_analysis_duration_seconds",
			Help:    "Duration of a single document analysis.",
			Buckets: prometheus.DefBuckets,
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hl7ls_commands_total",
			Help: "Total number of workspace/executeCommand invocations by command name and outcome.",
		}, []string{"command", "outcome"}),
		SendMessageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hl7ls_send_message_outcomes_total",
			Help: "Outcomes of hl7.sendMessage MLLP outcalls.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.DocumentsOpen,
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.CommandsTotal,
		m.SendMessageOutcomes,
	)

	return m
}

// ObserveAnalysis records one Analysis Engine run.
func (m *Metrics) ObserveAnalysis(d time.Duration) {
	m.AnalysesTotal.Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// ObserveCommand records one executeCommand invocation.
func (m *Metrics) ObserveCommand(name, outcome string) {
	m.CommandsTotal.WithLabelValues(name, outcome).Inc()
}

// ObserveSendMessage records one sendMessage outcall outcome.
func (m *Metrics) ObserveSendMessage(outcome string) {
	m.SendMessageOutcomes.WithLabelValues(outcome).Inc()
}
