// Package metrics records bandwidth, outcome and playbook timing metrics for a
// regression run on a private Prometheus registry.
package metrics

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/thc1006/nmeta-systemtest/pkg/security"
)

// TextfileName is the metrics snapshot written into the run directory
const TextfileName = "metrics.prom"

// Test results used as the result label
const (
	ResultPass = "pass"
	ResultFail = "fail"
)

// PrometheusMetrics contains all Prometheus metrics for a run
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Bandwidth as reported in the result file, per role
	Bandwidth *prometheus.GaugeVec

	// Test outcome metrics
	TestsTotal *prometheus.CounterVec
	LogErrors  prometheus.Counter

	// Automation metrics
	PlaybookDuration *prometheus.HistogramVec
	PlaybookFailures *prometheus.CounterVec

	// Run metrics
	RunStart prometheus.Gauge
}

// NewPrometheusMetrics creates the metrics on a new registry
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,

		Bandwidth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nmeta_systemtest_bandwidth",
				Help: "Bandwidth reported by iperf for the last iteration of a test",
			},
			[]string{"family", "test", "role"},
		),

		TestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmeta_systemtest_tests_total",
				Help: "Total number of test iterations by outcome",
			},
			[]string{"family", "result"},
		),

		LogErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nmeta_systemtest_log_errors_total",
				Help: "Total number of log checks that found ERROR or CRITICAL entries",
			},
		),

		PlaybookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nmeta_systemtest_playbook_duration_seconds",
				Help:    "Wall clock duration of playbook runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"playbook"},
		),

		PlaybookFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nmeta_systemtest_playbook_failures_total",
				Help: "Total number of playbook runs that exited non-zero",
			},
			[]string{"playbook", "exit_code"},
		),

		RunStart: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nmeta_systemtest_run_start_timestamp_seconds",
				Help: "Unix time the run started",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// MarkRunStart records the run start time
func (m *PrometheusMetrics) MarkRunStart(t time.Time) {
	m.RunStart.Set(float64(t.Unix()))
}

// ObservePlaybook records a completed playbook run
func (m *PrometheusMetrics) ObservePlaybook(name string, duration time.Duration, exitCode int) {
	m.PlaybookDuration.WithLabelValues(name).Observe(duration.Seconds())
	if exitCode != 0 {
		m.PlaybookFailures.WithLabelValues(name, strconv.Itoa(exitCode)).Inc()
	}
}

// SetBandwidth records the bandwidth measured for one role of a test
func (m *PrometheusMetrics) SetBandwidth(family, test, role string, value int64) {
	m.Bandwidth.WithLabelValues(family, test, role).Set(float64(value))
}

// RecordTest counts one finished test iteration
func (m *PrometheusMetrics) RecordTest(family string, passed bool) {
	result := ResultPass
	if !passed {
		result = ResultFail
	}
	m.TestsTotal.WithLabelValues(family, result).Inc()
}

// RecordLogErrors counts a log check that found errors
func (m *PrometheusMetrics) RecordLogErrors() {
	m.LogErrors.Inc()
}

// WriteTextfile writes every metric family in the Prometheus text format
func (m *PrometheusMetrics) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}

	return security.SecureWriteFile(path, buf.Bytes())
}
