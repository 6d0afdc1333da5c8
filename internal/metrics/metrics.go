// Package metrics exports reconciliation metrics in the Prometheus format.
//
// A batch run has no scrape endpoint, so metrics are gathered into a
// private registry and written once as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "footprint"

// RunMetrics collects per-run metrics. It implements footprint.Observer
// and is safe for concurrent use.
type RunMetrics struct {
	registry *prometheus.Registry

	unitsMatched prometheus.Counter
	unitsFailed  prometheus.Counter
	unitDuration prometheus.Histogram
	entries      *prometheus.CounterVec
	ambiguous    prometheus.Counter
	issues       *prometheus.CounterVec
	unitRate     *prometheus.GaugeVec
	unitPrimary  *prometheus.GaugeVec
	lastRun      prometheus.Gauge
}

var _ footprint.Observer = (*RunMetrics)(nil)

// New creates RunMetrics registered on a fresh registry. An empty
// namespace selects DefaultNamespace.
func New(namespace string) *RunMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		unitsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_matched_total",
			Help:      "Units whose matching completed.",
		}),
		unitsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_failed_total",
			Help:      "Units whose matching timed out.",
		}),
		unitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_match_duration_seconds",
			Help:      "Time spent matching a single unit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correspondences_total",
			Help:      "Correspondence entries by match kind.",
		}, []string{"kind"}),
		ambiguous: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ambiguous_matches_total",
			Help:      "Exact matches with more than one equal candidate.",
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geometry_issues_total",
			Help:      "Records excluded because of malformed geometry.",
		}, []string{"source"}),
		unitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_match_rate_percent",
			Help:      "Matched share of primary buildings per unit.",
		}, []string{"unit", "kind"}),
		unitPrimary: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_primary_buildings",
			Help:      "Primary buildings assigned to each unit.",
		}, []string{"unit"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last run.",
		}),
	}

	m.registry.MustRegister(
		m.unitsMatched, m.unitsFailed, m.unitDuration, m.entries,
		m.ambiguous, m.issues, m.unitRate, m.unitPrimary, m.lastRun,
	)
	return m
}

// Registry returns the registry holding the run metrics.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// UnitMatched implements footprint.Observer.
func (m *RunMetrics) UnitMatched(u *footprint.UnitMatch, elapsed time.Duration) {
	m.unitsMatched.Inc()
	m.unitDuration.Observe(elapsed.Seconds())
	for _, e := range u.Entries {
		m.entries.WithLabelValues(e.Kind.String()).Inc()
		if e.Ambiguous {
			m.ambiguous.Inc()
		}
	}
}

// UnitFailed implements footprint.Observer.
func (m *RunMetrics) UnitFailed(string, error) {
	m.unitsFailed.Inc()
}

// GeometryIssue implements footprint.Observer.
func (m *RunMetrics) GeometryIssue(issue footprint.GeometryError) {
	source := "unit"
	if issue.Source.Valid() {
		source = issue.Source.String()
	}
	m.issues.WithLabelValues(source).Inc()
}

// RecordAccuracy publishes per-unit match rates. Units with undefined
// rates only report their primary count.
func (m *RunMetrics) RecordAccuracy(records []footprint.AccuracyRecord, overall footprint.AccuracyRecord, finished time.Time) {
	for _, r := range append(append([]footprint.AccuracyRecord(nil), records...), overall) {
		m.unitPrimary.WithLabelValues(r.Unit).Set(float64(r.TotalPrimary))
		if r.RatesUndefined {
			continue
		}
		m.unitRate.WithLabelValues(r.Unit, "exact").Set(r.ExactRate)
		m.unitRate.WithLabelValues(r.Unit, "overlap").Set(r.OverlapRate)
		m.unitRate.WithLabelValues(r.Unit, "total").Set(r.TotalRate)
	}
	m.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes the gathered metrics to path atomically, in the
// format read by the node_exporter textfile collector.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
