package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Alias1177/MerchantScope/internal/analysis/anomaly"
	"github.com/Alias1177/MerchantScope/internal/analysis/filter"
	"github.com/Alias1177/MerchantScope/internal/model"
)

// fetchStatistics owns PipelineState.Statistics
func (e *Engine) fetchStatistics(ctx context.Context, st *model.PipelineState, logger zerolog.Logger) {
	cfg := st.Config
	statsFilter := model.StatsFilter{
		MinTransactionCount: cfg.MinTransactionCount,
		Limit:               cfg.StatsLimit,
	}

	var stats []model.EntityStatistics
	err := e.call(ctx, sourceStatistics, cfg.MaxRetries, logger, func(ctx context.Context) error {
		var err error
		stats, err = e.stats.FetchAggregates(ctx, st.Window, statsFilter)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch merchant statistics")
		st.Fail(model.NewErrorRecord(string(model.StageFetchStats), "", fmt.Errorf("fetching statistics: %w", err)))
		return
	}

	if stats == nil {
		stats = []model.EntityStatistics{}
	}
	st.SetStatistics(stats)
	logger.Info().Int("merchants", len(stats)).Msg("Fetched merchant statistics")
}

// filter owns PipelineState.Flagged
func (e *Engine) filter(st *model.PipelineState, logger zerolog.Logger) {
	res := filter.Filter(st.Statistics, filter.Options{
		Threshold:  st.Config.DispersionThreshold,
		MinSupport: st.Config.MinTransactionCount,
	})

	for _, skip := range res.Skipped {
		st.AddSkip(skip)
	}
	st.SetFlagged(res.FlaggedIDs())
	e.metrics.Flagged(len(res.Flagged))

	logger.Info().
		Int("flagged", len(res.Flagged)).
		Int("skipped", len(res.Skipped)).
		Float64("threshold", st.Config.DispersionThreshold).
		Msg("Filtered merchants by dispersion ratio")
}

type detailResult struct {
	attempted bool
	records   []model.TransactionRecord
	err       error
}

// fetchDetails owns PipelineState.RecordsByEntity
func (e *Engine) fetchDetails(ctx context.Context, st *model.PipelineState, logger zerolog.Logger) {
	cfg := st.Config
	targets := st.Flagged
	if cfg.MaxDetailedEntities > 0 && len(targets) > cfg.MaxDetailedEntities {
		for _, id := range targets[cfg.MaxDetailedEntities:] {
			st.AddSkip(model.SkipRecord{
				Stage:    string(model.StageFetchDetails),
				EntityID: id,
				Reason:   fmt.Sprintf("detail limit of %d merchants reached", cfg.MaxDetailedEntities),
			})
		}
		targets = targets[:cfg.MaxDetailedEntities]
	}

	// every worker writes only its own slot
	results := make([]detailResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)
	for i, id := range targets {
		i, id := i, id
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			var recs []model.TransactionRecord
			err := e.call(gctx, sourceDetails, cfg.MaxRetries, logger, func(ctx context.Context) error {
				var err error
				recs, err = e.details.FetchRecords(ctx, id, st.DetailWindow)
				return err
			})
			results[i] = detailResult{attempted: true, records: recs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	stage := string(model.StageFetchDetails)
	fetched := 0
	for i, id := range targets {
		res := results[i]
		switch {
		case !res.attempted:
			st.AddSkip(model.SkipRecord{Stage: stage, EntityID: id, Reason: "not attempted: run interrupted"})
		case res.err == nil:
			st.PutRecords(id, res.records)
			fetched++
		case model.KindOf(res.err) == model.KindNotFound:
			st.PutRecords(id, []model.TransactionRecord{})
			fetched++
		default:
			rec := model.NewErrorRecord(stage, id, fmt.Errorf("fetching records: %w", res.err))
			st.AddError(rec)
			e.metrics.EntityError(stage, string(rec.Kind))
			logger.Warn().Err(res.err).Str("entity_id", id).Msg("Failed to fetch merchant transactions")
		}
	}

	if err := ctx.Err(); err != nil {
		st.Fail(model.NewErrorRecord(stage, "", err))
	}

	logger.Info().Int("requested", len(targets)).Int("fetched", fetched).Msg("Fetched merchant transactions")
}

type analyzeResult struct {
	attempted bool
	analysis  anomaly.Analysis
	err       error
}

// analyze owns PipelineState.Profiles and PipelineState.Findings
func (e *Engine) analyze(ctx context.Context, st *model.PipelineState, logger zerolog.Logger) {
	stage := string(model.StageAnalyze)
	cfg := anomaly.Config{
		DeviationThreshold: st.Config.DeviationThreshold,
		MinSampleSize:      st.Config.MinSampleSize,
	}

	var targets []string
	for _, id := range st.Flagged {
		recs, ok := st.RecordsByEntity[id]
		if !ok {
			continue
		}
		if len(recs) == 0 {
			st.AddSkip(model.SkipRecord{Stage: stage, EntityID: id, Reason: "no transactions in detail window"})
			continue
		}
		targets = append(targets, id)
	}

	results := make([]analyzeResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(st.Config.MaxConcurrency)
	for i, id := range targets {
		i, id := i, id
		records := st.RecordsByEntity[id]
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			a, err := anomaly.Analyze(id, records, cfg)
			results[i] = analyzeResult{attempted: true, analysis: a, err: err}
			return nil
		})
	}
	_ = g.Wait()

	findings := 0
	for i, id := range targets {
		res := results[i]
		switch {
		case !res.attempted:
			st.AddSkip(model.SkipRecord{Stage: stage, EntityID: id, Reason: "not attempted: run interrupted"})
		case res.err != nil:
			rec := model.NewErrorRecord(stage, id, res.err)
			st.AddError(rec)
			e.metrics.EntityError(stage, string(rec.Kind))
			logger.Warn().Err(res.err).Str("entity_id", id).Msg("Failed to analyze merchant")
		case res.analysis.Skip != "":
			st.AddSkip(model.SkipRecord{Stage: stage, EntityID: id, Reason: res.analysis.Skip})
		default:
			st.AddProfile(res.analysis.Profile)
			st.AddFindings(res.analysis.Findings...)
			for _, f := range res.analysis.Findings {
				e.metrics.Finding(f.Reason)
			}
			findings += len(res.analysis.Findings)
		}
	}

	if err := ctx.Err(); err != nil {
		st.Fail(model.NewErrorRecord(stage, "", err))
	}

	logger.Info().Int("analyzed", len(targets)).Int("findings", findings).Msg("Analyzed flagged merchants")
}
