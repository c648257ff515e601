package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// WarmupProvider pre-populates the cache at startup. Warmup must be idempotent.
type WarmupProvider interface {
	Name() string
	Warmup(ctx context.Context) error
}

// WarmupConfig configures the cache warming behavior.
type WarmupConfig struct {
	// Timeout bounds the whole warmup
	Timeout time.Duration

	// ContinueOnError keeps sequential warming going past a failed provider
	ContinueOnError bool

	// Parallel warms all providers concurrently
	Parallel bool
}

// DefaultWarmupConfig returns the startup defaults.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
	}
}

// WarmupResult contains the result of warming a single provider.
type WarmupResult struct {
	Provider string
	Duration time.Duration
	Err      error
}

// WarmupResults contains the aggregate results of cache warming.
type WarmupResults struct {
	Results   []WarmupResult
	TotalTime time.Duration
	Errors    int
}

// HasErrors returns true if any provider failed during warmup.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs registered providers.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

// NewWarmer creates a new cache warmer.
func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmupConfig().Timeout
	}
	return &Warmer{
		logger: logger,
		config: config,
	}
}

// RegisterProvider adds a warmup provider to the warmer.
func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup runs every provider and reports per-provider outcomes in registration order.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{}

	if len(w.providers) == 0 {
		return results
	}

	warmupCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.warmupParallel(warmupCtx)
	} else {
		results.Results = w.warmupSequential(warmupCtx)
	}

	for _, r := range results.Results {
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	if results.HasErrors() {
		w.logger.LogWarn(ctx, "cache warmup finished with errors",
			"failed", results.Errors,
			"providers", len(w.providers),
			"duration_ms", results.TotalTime.Milliseconds(),
		)
	} else {
		w.logger.LogInfo(ctx, "cache warmup finished",
			"providers", len(w.providers),
			"duration_ms", results.TotalTime.Milliseconds(),
		)
	}

	return results
}

func (w *Warmer) warmupParallel(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, len(w.providers))

	// Provider errors are recorded, not propagated, so siblings keep running.
	var g errgroup.Group
	for i, provider := range w.providers {
		g.Go(func() error {
			results[i] = w.warmupProvider(ctx, provider)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (w *Warmer) warmupSequential(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, 0, len(w.providers))

	for _, provider := range w.providers {
		result := w.warmupProvider(ctx, provider)
		results = append(results, result)

		if result.Err != nil && !w.config.ContinueOnError {
			break
		}
	}

	return results
}

func (w *Warmer) warmupProvider(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	err := provider.Warmup(ctx)
	duration := time.Since(start)

	if err != nil {
		w.logger.LogWarn(ctx, "cache warmup failed", "provider", name, "error", err.Error())
	} else {
		w.logger.LogDebug(ctx, "cache warmed", "provider", name, "duration_ms", duration.Milliseconds())
	}

	return WarmupResult{
		Provider: name,
		Duration: duration,
		Err:      err,
	}
}
