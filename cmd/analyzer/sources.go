package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/api/statsapi"
	rediscache "github.com/Alias1177/MerchantScope/internal/cache/redis"
	"github.com/Alias1177/MerchantScope/internal/config"
	"github.com/Alias1177/MerchantScope/internal/database"
	"github.com/Alias1177/MerchantScope/internal/model"
	"github.com/Alias1177/MerchantScope/internal/payment"
	"github.com/Alias1177/MerchantScope/internal/source/memory"
)

// sources holds the collaborators of one run and what must be closed after it
type sources struct {
	stats   model.StatisticsSource
	details model.DetailSource
	closers []func() error
}

// Close releases connections opened for the run
func (s *sources) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// statsDetailSource is implemented by sources serving both roles
type statsDetailSource interface {
	model.StatisticsSource
	model.DetailSource
}

func buildSources(ctx context.Context, cfg *config.Config) (*sources, error) {
	src := &sources{}

	primary, err := openPrimary(ctx, cfg, src)
	if err != nil {
		src.Close()
		return nil, err
	}
	src.stats = primary
	src.details = primary

	if cfg.DetailSource == config.SourceStripe {
		src.details = payment.NewStripeService(payment.StripeOptions{
			APIKey:         cfg.StripeAPIKey,
			RequestsPerSec: cfg.RequestsPerSec,
		})
	}

	if cfg.RedisAddr != "" {
		client := rediscache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		src.closers = append(src.closers, client.Close)
		src.details = rediscache.NewDetailCache(client, src.details, rediscache.Options{TTL: cfg.CacheTTL})
		log.Info().Str("addr", cfg.RedisAddr).Msg("Caching merchant transactions in redis")
	}

	return src, nil
}

func openPrimary(ctx context.Context, cfg *config.Config, src *sources) (statsDetailSource, error) {
	switch cfg.Source {
	case config.SourceWarehouse:
		db, err := database.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("initializing warehouse: %w", err)
		}
		db.Configure(cfg.DBMaxConns)
		src.closers = append(src.closers, db.Close)
		return db, nil

	case config.SourceSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("initializing sqlite warehouse: %w", err)
		}
		src.closers = append(src.closers, db.Close)
		return db, nil

	case config.SourceAPI:
		return statsapi.NewClient(statsapi.ClientOptions{
			BaseURL:        cfg.APIBaseURL,
			APIKey:         cfg.APIKey,
			RequestTimeout: cfg.RequestTimeout,
			RequestsPerSec: cfg.RequestsPerSec,
		}), nil

	case config.SourceMemory:
		store, err := memory.LoadFile(cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("loading fixture: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
