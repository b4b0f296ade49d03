package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/metrics"
	"github.com/Alias1177/MerchantScope/internal/model"
	"github.com/Alias1177/MerchantScope/internal/report"
)

// Source labels used for retries, logs and metrics
const (
	sourceStatistics = "statistics"
	sourceDetails    = "details"
)

// Engine sequences the screening stages over a single PipelineState
type Engine struct {
	stats   model.StatisticsSource
	details model.DetailSource
	metrics *metrics.Pipeline
	logger  zerolog.Logger
	now     func() time.Time
	newID   func() string
	retry   func(maxRetries int) RetryPolicy
}

// Option customizes an Engine
type Option func(*Engine)

// WithMetrics records run, stage and source metrics
func WithMetrics(m *metrics.Pipeline) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunIDs replaces the uuid run id generator
func WithRunIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithRetryPolicy replaces DefaultRetryPolicy
func WithRetryPolicy(policy func(maxRetries int) RetryPolicy) Option {
	return func(e *Engine) { e.retry = policy }
}

// NewEngine creates an engine reading from the given sources
func NewEngine(stats model.StatisticsSource, details model.DetailSource, opts ...Option) *Engine {
	e := &Engine{
		stats:   stats,
		details: details,
		logger:  log.With().Str("component", "workflow").Logger(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one pipeline run. It always returns a well-formed report;
// failures are reported in Report.Errors.
func (e *Engine) Run(ctx context.Context, cfg model.RunConfig) report.Report {
	st := model.NewPipelineState(e.newID(), cfg, e.now())
	logger := e.logger.With().Str("run_id", st.RunID).Logger()

	if err := cfg.Validate(); err != nil {
		st.Fail(model.NewErrorRecord(string(model.StageInit), "", err))
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = model.DefaultRunConfig().Timeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info().
		Int("window_days", cfg.WindowDays).
		Float64("dispersion_threshold", cfg.DispersionThreshold).
		Float64("deviation_threshold", cfg.DeviationThreshold).
		Int("max_concurrency", cfg.MaxConcurrency).
		Msg("Starting screening run")

	var rep report.Report
	stage := model.StageInit
	for {
		started := time.Now()
		switch stage {
		case model.StageInit:
			st.Start()
		case model.StageFetchStats:
			e.fetchStatistics(ctx, st, logger)
		case model.StageFilter:
			e.filter(st, logger)
		case model.StageFetchDetails:
			e.fetchDetails(ctx, st, logger)
		case model.StageAnalyze:
			e.analyze(ctx, st, logger)
		case model.StageError:
			logger.Error().Int("errors", len(st.Errors)).Msg("Run failed, emitting partial report")
		case model.StageReport:
			st.Freeze(e.now())
			rep = report.Assemble(st)
		}
		e.metrics.ObserveStage(string(stage), time.Since(started))

		if stage == model.StageDone {
			break
		}

		next := Next(stage, st)
		if err := ctx.Err(); err != nil && isWorkStage(next) {
			st.Fail(model.NewErrorRecord(string(next), "", err))
			next = Next(stage, st)
		}
		logger.Debug().Str("from", string(stage)).Str("to", string(next)).Msg("Stage transition")
		stage = next
	}

	e.metrics.ObserveRun(string(rep.Status), rep.GeneratedAt.Sub(st.StartedAt))
	logger.Info().
		Str("status", string(rep.Status)).
		Int("flagged", rep.Summary.FlaggedCount).
		Int("findings", rep.Summary.FindingsCount).
		Int("errors", rep.Summary.ErrorCount).
		Msg("Screening run finished")

	return rep
}

// call wraps one collaborator call in the retry policy and records metrics
func (e *Engine) call(ctx context.Context, source string, maxRetries int, logger zerolog.Logger, op func(ctx context.Context) error) error {
	policy := e.retry(maxRetries)
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, wait time.Duration) {
		e.metrics.SourceRetry(source)
		logger.Warn().Err(err).Str("source", source).Dur("wait", wait).Msg("Retrying data source call")
		if onRetry != nil {
			onRetry(err, wait)
		}
	}

	attempts, err := policy.Do(ctx, op)
	switch {
	case err == nil:
		e.metrics.SourceCall(source, "success")
	case model.KindOf(err) == model.KindNotFound:
		e.metrics.SourceCall(source, "not_found")
	default:
		e.metrics.SourceCall(source, "failure")
		logger.Debug().Err(err).Str("source", source).Int("attempts", attempts).Msg("Data source call failed")
	}
	return err
}
