package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ticketchain/internal/analysis/domain"
	"ticketchain/platform/logger"
)

const (
	cacheKeyPrefix  = "ticketchain:"
	recordCacheTTL  = 24 * time.Hour
	latestCacheMiss = "none"
)

// Cached fronts a Store with Redis. Records are immutable once saved, so a
// cached copy never goes stale; the latest-complete pointer is refreshed on
// every complete save. Redis failures fall back to the backing store.
type Cached struct {
	next      Store
	rdb       *redis.Client
	latestTTL time.Duration
	log       *logger.Logger
}

// NewCached wraps next. latestTTL bounds how long a latest-complete lookup is
// reused; callers pass the freshness window.
func NewCached(next Store, rdb *redis.Client, latestTTL time.Duration, log *logger.Logger) *Cached {
	if latestTTL <= 0 {
		latestTTL = time.Hour
	}
	return &Cached{next: next, rdb: rdb, latestTTL: latestTTL, log: log}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func recordKey(id uuid.UUID) string { return cacheKeyPrefix + "analysis:" + id.String() }

func latestKey(chainID string, phase domain.Phase) string {
	return fmt.Sprintf("%slatest:%s:%d", cacheKeyPrefix, chainID, phase)
}

func (c *Cached) Save(ctx context.Context, r domain.AnalysisResult) error {
	if err := c.next.Save(ctx, r); err != nil {
		return err
	}
	r = normalize(r)
	c.put(ctx, recordKey(r.ID), r, recordCacheTTL)
	if r.Status == domain.StatusComplete {
		c.put(ctx, latestKey(r.ChainID, r.Phase), r, c.latestTTL)
	}
	return nil
}

// List always reads through; listings change on every save.
func (c *Cached) List(ctx context.Context, f ListFilter) ([]domain.Summary, error) {
	return c.next.List(ctx, f)
}

func (c *Cached) Get(ctx context.Context, id uuid.UUID) (domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	if c.get(ctx, recordKey(id), &r) {
		return r, nil
	}
	r, err := c.next.Get(ctx, id)
	if err != nil {
		return r, err
	}
	c.put(ctx, recordKey(id), r, recordCacheTTL)
	return r, nil
}

func (c *Cached) LatestComplete(ctx context.Context, chainID string, phase domain.Phase) (domain.AnalysisResult, bool, error) {
	key := latestKey(chainID, phase)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil && string(raw) == latestCacheMiss:
		return domain.AnalysisResult{}, false, nil
	case err == nil:
		var r domain.AnalysisResult
		if jsonErr := json.Unmarshal(raw, &r); jsonErr == nil {
			return r, true, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn("analysis cache read failed", "key", key, "error", err)
	}

	r, ok, err := c.next.LatestComplete(ctx, chainID, phase)
	if err != nil {
		return r, ok, err
	}
	if ok {
		c.put(ctx, key, r, c.latestTTL)
	} else if setErr := c.rdb.Set(ctx, key, latestCacheMiss, time.Minute).Err(); setErr != nil {
		c.log.Warn("analysis cache write failed", "key", key, "error", setErr)
	}
	return r, ok, nil
}

func (c *Cached) Close() error {
	return errors.Join(c.next.Close(), c.rdb.Close())
}

func (c *Cached) get(ctx context.Context, key string, dst *domain.AnalysisResult) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("analysis cache read failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (c *Cached) put(ctx context.Context, key string, r domain.AnalysisResult, ttl time.Duration) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.Warn("analysis cache write failed", "key", key, "error", err)
	}
}
