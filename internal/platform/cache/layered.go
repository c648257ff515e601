package cache

import (
	"context"
	"errors"
	"time"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// LayeredCache implements a two-tier cache (L1: memory, L2: Redis).
// Either layer may be nil.
type LayeredCache struct {
	l1      Cache
	l2      Cache
	l1TTL   time.Duration
	metrics *observability.Metrics
}

// LayeredConfig configures a LayeredCache
type LayeredConfig struct {
	L1      Cache
	L2      Cache
	L1TTL   time.Duration // cap on L1 entry lifetime, default 1m
	Metrics *observability.Metrics
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(cfg LayeredConfig) *LayeredCache {
	if cfg.L1TTL <= 0 {
		cfg.L1TTL = time.Minute
	}
	return &LayeredCache{
		l1:      cfg.L1,
		l2:      cfg.L2,
		l1TTL:   cfg.L1TTL,
		metrics: cfg.Metrics,
	}
}

// Get retrieves a value from cache (L1 → L2 → miss). An L2 hit backfills L1.
func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if lc.l1 != nil {
		if val, err := lc.l1.Get(ctx, key); err == nil {
			lc.metrics.RecordCacheHit(ctx, "l1")
			return val, nil
		}
		lc.metrics.RecordCacheMiss(ctx, "l1")
	}

	if lc.l2 != nil {
		val, err := lc.l2.Get(ctx, key)
		if err == nil {
			lc.metrics.RecordCacheHit(ctx, "l2")
			if lc.l1 != nil {
				_ = lc.l1.Set(ctx, key, val, lc.l1TTL)
			}
			return val, nil
		}
		lc.metrics.RecordCacheMiss(ctx, "l2")
	}

	return nil, ErrNotFound
}

// Set writes through to both layers. It fails only if every configured layer fails.
func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var l1Err, l2Err error

	if lc.l1 != nil {
		l1TTL := ttl
		if ttl > lc.l1TTL {
			l1TTL = lc.l1TTL
		}
		l1Err = lc.l1.Set(ctx, key, value, l1TTL)
	}

	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	switch {
	case lc.l1 != nil && lc.l2 != nil:
		if l1Err != nil && l2Err != nil {
			return errors.Join(l1Err, l2Err)
		}
		return nil
	case lc.l2 != nil:
		return l2Err
	default:
		return l1Err
	}
}

// Delete removes a key from both cache layers
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	var errs []error
	if lc.l1 != nil {
		errs = append(errs, lc.l1.Delete(ctx, key))
	}
	if lc.l2 != nil {
		errs = append(errs, lc.l2.Delete(ctx, key))
	}
	return errors.Join(errs...)
}

// Close closes both cache layers
func (lc *LayeredCache) Close() error {
	var errs []error
	if lc.l1 != nil {
		errs = append(errs, lc.l1.Close())
	}
	if lc.l2 != nil {
		errs = append(errs, lc.l2.Close())
	}
	return errors.Join(errs...)
}

// InvalidateL1 invalidates only L1 cache for a key
func (lc *LayeredCache) InvalidateL1(ctx context.Context, key string) error {
	if lc.l1 != nil {
		return lc.l1.Delete(ctx, key)
	}
	return nil
}
