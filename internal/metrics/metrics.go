package metrics

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pead-drift/internal/research/pead"
)

// Recorder collects run metrics on its own registry so they can be written
// to a node_exporter textfile at the end of a batch run
type Recorder struct {
	registry     *prometheus.Registry
	attempts     *prometheus.CounterVec
	unavailable  *prometheus.CounterVec
	companies    *prometheus.CounterVec
	continuation *prometheus.CounterVec
	lastRun      *prometheus.GaugeVec
}

var _ pead.AttemptSink = (*Recorder)(nil)

// New creates a metrics recorder
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pead_provider_attempts_total",
				Help: "Provider fetch attempts by capture window and outcome",
			},
			[]string{"when", "ok"},
		),
		unavailable: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pead_provider_failures_total",
				Help: "Failed provider attempts by reason class",
			},
			[]string{"when", "reason"},
		),
		companies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pead_companies_scored_total",
				Help: "Companies scored per run phase",
			},
			[]string{"phase"},
		),
		continuation: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pead_continuation_friendly_total",
				Help: "Companies flagged continuation friendly per run phase",
			},
			[]string{"phase"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pead_last_run_timestamp_seconds",
				Help: "Execution timestamp of the last completed run",
			},
			[]string{"phase"},
		),
	}
}

// RecordAttempt implements pead.AttemptSink
func (r *Recorder) RecordAttempt(_ context.Context, _ string, at pead.Attempt) {
	r.attempts.WithLabelValues(at.When, strconv.FormatBool(at.OK)).Inc()
	if !at.OK {
		r.unavailable.WithLabelValues(at.When, pead.ReasonClass(at.Reason)).Inc()
	}
}

// ObserveReport records the totals of a completed run
func (r *Recorder) ObserveReport(report *pead.Report) {
	phase := string(report.Phase)
	r.companies.WithLabelValues(phase).Add(float64(len(report.Companies)))
	for _, c := range report.Companies {
		if c.ContinuationFriendly != nil && *c.ContinuationFriendly {
			r.continuation.WithLabelValues(phase).Inc()
		}
	}
	r.lastRun.WithLabelValues(phase).Set(float64(report.ExecutionTimestamp.Unix()))
}

// Registry exposes the gatherer for tests and custom exporters
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
