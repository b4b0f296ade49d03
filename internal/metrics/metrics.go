package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the collectors of the screening pipeline
type Pipeline struct {
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	StageDuration     *prometheus.HistogramVec
	SourceCallsTotal  *prometheus.CounterVec
	SourceRetries     *prometheus.CounterVec
	FlaggedEntities   prometheus.Gauge
	FindingsTotal     *prometheus.CounterVec
	EntityErrorsTotal *prometheus.CounterVec
}

// New registers the pipeline collectors on reg
func New(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantscope_runs_total",
				Help: "Total number of pipeline runs by final status",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "merchantscope_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
			},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "merchantscope_stage_duration_seconds",
				Help:    "Stage duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
			[]string{"stage"},
		),
		SourceCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantscope_source_calls_total",
				Help: "Calls into external data sources by outcome",
			},
			[]string{"source", "outcome"},
		),
		SourceRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantscope_source_retries_total",
				Help: "Retried external data source calls",
			},
			[]string{"source"},
		),
		FlaggedEntities: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "merchantscope_flagged_entities",
				Help: "Merchants flagged in the last run",
			},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantscope_findings_total",
				Help: "Outlier transactions found by reason",
			},
			[]string{"reason"},
		),
		EntityErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "merchantscope_entity_errors_total",
				Help: "Per-merchant failures by stage and kind",
			},
			[]string{"stage", "kind"},
		),
	}
}

// ObserveStage records how long a stage took. Safe on a nil receiver.
func (p *Pipeline) ObserveStage(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the final status and duration of a run
func (p *Pipeline) ObserveRun(status string, d time.Duration) {
	if p == nil {
		return
	}
	p.RunsTotal.WithLabelValues(status).Inc()
	p.RunDuration.Observe(d.Seconds())
}

// SourceCall counts one attempt against a data source
func (p *Pipeline) SourceCall(source, outcome string) {
	if p == nil {
		return
	}
	p.SourceCallsTotal.WithLabelValues(source, outcome).Inc()
}

// SourceRetry counts a retry against a data source
func (p *Pipeline) SourceRetry(source string) {
	if p == nil {
		return
	}
	p.SourceRetries.WithLabelValues(source).Inc()
}

// Flagged sets the flagged merchant gauge
func (p *Pipeline) Flagged(n int) {
	if p == nil {
		return
	}
	p.FlaggedEntities.Set(float64(n))
}

// Finding counts one finding
func (p *Pipeline) Finding(reason string) {
	if p == nil {
		return
	}
	p.FindingsTotal.WithLabelValues(reason).Inc()
}

// EntityError counts one per-merchant failure
func (p *Pipeline) EntityError(stage, kind string) {
	if p == nil {
		return
	}
	p.EntityErrorsTotal.WithLabelValues(stage, kind).Inc()
}
