package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/model"
)

const (
	defaultPrefix = "merchantscope:"
	defaultTTL    = 15 * time.Minute
)

// Options configures a DetailCache
type Options struct {
	Prefix string
	TTL    time.Duration
}

// DetailCache is a read-through cache in front of a DetailSource. Redis
// failures never fail a fetch; the wrapped source is used instead.
type DetailCache struct {
	client *redis.Client
	next   model.DetailSource
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewClient creates a redis client for the cache
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   -1, // the cache is optional, don't retry
	})
}

// NewDetailCache wraps next with a redis cache
func NewDetailCache(client *redis.Client, next model.DetailSource, opts Options) *DetailCache {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}

	return &DetailCache{
		client: client,
		next:   next,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		logger: log.With().Str("component", "detail_cache").Logger(),
	}
}

// FetchRecords returns cached records or fetches and caches them
func (c *DetailCache) FetchRecords(ctx context.Context, entityID string, window model.Window) ([]model.TransactionRecord, error) {
	key := c.Key(entityID, window)

	if records, ok := c.get(ctx, key); ok {
		c.logger.Debug().Str("entity_id", entityID).Msg("Cache hit")
		return records, nil
	}

	records, err := c.next.FetchRecords(ctx, entityID, window)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, records)
	return records, nil
}

// Key builds the cache key of one merchant and window
func (c *DetailCache) Key(entityID string, window model.Window) string {
	return fmt.Sprintf("%srecords:%s:%d:%d", c.prefix, entityID, window.Start.Unix(), window.End.Unix())
}

func (c *DetailCache) get(ctx context.Context, key string) ([]model.TransactionRecord, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, using source")
		return nil, false
	}

	var records []model.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Dropping unreadable cache entry")
		return nil, false
	}
	return records, true
}

func (c *DetailCache) set(ctx context.Context, key string, records []model.TransactionRecord) {
	if ctx.Err() != nil {
		return
	}

	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to encode records for cache")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}
