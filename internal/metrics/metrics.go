// Package metrics exports attempt outcomes in the Prometheus text format so a
// node exporter textfile collector can pick them up after each run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xkilldash9x/gatepass/internal/login"
)

const namespace = "gatepass"

// Recorder owns a private registry with the attempt collectors.
type Recorder struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration prometheus.Histogram
	phaseDuration   *prometheus.HistogramVec
	lastAttempt     prometheus.Gauge
}

// NewRecorder creates a Recorder with its collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Login attempts by terminal state.",
			},
			[]string{"state"},
		),

		attemptDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time from navigation to the last recorded phase.",
				Buckets:   []float64{5, 10, 15, 20, 30, 45, 60, 90, 120},
			},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of each attempt phase by status.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 6, 8, 10, 20, 60},
			},
			[]string{"phase", "status"},
		),

		lastAttempt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_attempt_timestamp_seconds",
				Help:      "Unix time at which the last attempt finished.",
			},
		),
	}

	r.registry.MustRegister(
		r.attemptsTotal,
		r.attemptDuration,
		r.phaseDuration,
		r.lastAttempt,
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordResult records one finished attempt.
func (r *Recorder) RecordResult(res *login.Result, finished time.Time) {
	if res == nil {
		return
	}
	r.attemptsTotal.WithLabelValues(string(res.State)).Inc()
	r.lastAttempt.Set(float64(finished.Unix()))

	if res.Attempt == nil || len(res.Attempt.Phases) == 0 {
		return
	}
	for _, p := range res.Attempt.Phases {
		r.phaseDuration.WithLabelValues(string(p.Phase), string(p.Status)).Observe(nonNegative(p.Duration).Seconds())
	}
	last := res.Attempt.Phases[len(res.Attempt.Phases)-1]
	r.attemptDuration.Observe(nonNegative(last.Elapsed).Seconds())
}

// WriteTextfile atomically writes every metric to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
