// Package pricing looks up USD prices for registered tokens from a
// CoinGecko-compatible HTTP API.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/cache"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/resilience"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/worker"
)

const providerName = "coingecko"

// StatusError is a non-200 response from the price API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether err is an HTTP 429 from the price API
func IsRateLimited(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}

// ClientConfig holds price client configuration
type ClientConfig struct {
	BaseURL        string
	Platform       string // asset platform id for contract lookups
	NativeID       string // coin id of the native asset
	APIKey         string
	BatchSize      int
	Timeout        time.Duration
	CacheTTL       time.Duration
	RateLimitRPM   int
	RateLimitBurst int
	Pool           *worker.Pool
	Cache          cache.Cache
	Registry       *config.TokenRegistry
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
	HTTPClient     *http.Client
}

// Client queries token prices in batches with caching, rate limiting and a
// single retry on HTTP 429
type Client struct {
	client    *http.Client
	baseURL   string
	platform  string
	nativeID  string
	apiKey    string
	batchSize int
	cacheTTL  time.Duration

	pool        *worker.Pool
	cache       cache.Cache
	registry    *config.TokenRegistry
	rateLimiter *resilience.RateLimiter
	cb          *resilience.CircuitBreaker
	retryCfg    resilience.RetryConfig
	logger      *observability.Logger
	metrics     *observability.Metrics

	healthMu sync.RWMutex
	health   ProviderHealth
}

// NewClient creates a price client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Platform == "" {
		cfg.Platform = "ethereum"
	}
	if cfg.NativeID == "" {
		cfg.NativeID = "ethereum"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = 30
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 5
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("worker pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
	if cfg.RetryConfig != nil {
		retryCfg = *cfg.RetryConfig
	}

	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             providerName,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				cfg.Logger.LogWarn(context.Background(), "price API circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
				cfg.Metrics.SetCircuitBreakerState(context.Background(), name, int64(to))
			},
		})
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		client:      httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		platform:    cfg.Platform,
		nativeID:    cfg.NativeID,
		apiKey:      cfg.APIKey,
		batchSize:   cfg.BatchSize,
		cacheTTL:    cfg.CacheTTL,
		pool:        cfg.Pool,
		cache:       cfg.Cache,
		registry:    cfg.Registry,
		rateLimiter: resilience.NewRateLimiterFromRPM(cfg.RateLimitRPM, cfg.RateLimitBurst),
		cb:          cb,
		retryCfg:    retryCfg,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		health:      ProviderHealth{Provider: providerName},
	}, nil
}

type priceResponse map[string]map[string]float64

func tokenCacheKey(addr common.Address) string {
	return "price:usd:" + strings.ToLower(addr.Hex())
}

// TokenPrices returns USD prices keyed by token address. Addresses are
// queried in batches of at most BatchSize, concurrently on the worker pool.
// Tokens the API does not know are absent from the result. The error joins
// the failed batches; prices from the other batches are still returned.
func (c *Client) TokenPrices(ctx context.Context, addresses []common.Address) (map[common.Address]decimal.Decimal, error) {
	prices := make(map[common.Address]decimal.Decimal, len(addresses))
	var misses []common.Address
	for _, addr := range addresses {
		if price, ok := c.cached(ctx, tokenCacheKey(addr)); ok {
			prices[addr] = price
			continue
		}
		misses = append(misses, addr)
	}
	if len(misses) == 0 {
		return prices, nil
	}

	var jobs []worker.Job[priceResponse]
	for start := 0; start < len(misses); start += c.batchSize {
		batch := misses[start:min(start+c.batchSize, len(misses))]
		jobs = append(jobs, worker.Job[priceResponse]{
			ID: fmt.Sprintf("batch-%d", start/c.batchSize),
			Execute: func(ctx context.Context) (priceResponse, error) {
				return c.fetchTokenBatch(ctx, batch)
			},
		})
	}

	var errs []error
	for _, res := range worker.Run(ctx, c.pool, jobs) {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.JobID, res.Err))
			continue
		}
		for key, quotes := range res.Value {
			usd, ok := quotes["usd"]
			if !ok || !common.IsHexAddress(key) {
				continue
			}
			addr := common.HexToAddress(key)
			price := decimal.NewFromFloat(usd)
			prices[addr] = price
			c.store(ctx, tokenCacheKey(addr), price)
		}
	}

	if len(errs) > 0 {
		c.logger.LogWarn(ctx, "some price batches failed", "failed", len(errs), "batches", len(jobs))
	}
	return prices, errors.Join(errs...)
}

func (c *Client) fetchTokenBatch(ctx context.Context, batch []common.Address) (priceResponse, error) {
	addrs := make([]string, len(batch))
	for i, addr := range batch {
		addrs[i] = strings.ToLower(addr.Hex())
	}
	q := url.Values{}
	q.Set("contract_addresses", strings.Join(addrs, ","))
	q.Set("vs_currencies", "usd")
	endpoint := fmt.Sprintf("%s/simple/token_price/%s?%s", c.baseURL, url.PathEscape(c.platform), q.Encode())

	resp, err := c.get(ctx, "token_price", endpoint)
	if err != nil {
		return nil, err
	}
	// the API keys results by lower-cased address
	return resp, nil
}

// NativePrice returns the USD price of the native asset, looked up by coin id
func (c *Client) NativePrice(ctx context.Context) (decimal.Decimal, error) {
	key := "price:usd:native:" + c.nativeID
	if price, ok := c.cached(ctx, key); ok {
		return price, nil
	}

	q := url.Values{}
	q.Set("ids", c.nativeID)
	q.Set("vs_currencies", "usd")
	resp, err := c.get(ctx, "price", c.baseURL+"/simple/price?"+q.Encode())
	if err != nil {
		return decimal.Zero, err
	}
	usd, ok := resp[c.nativeID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USD price for %s", c.nativeID)
	}

	price := decimal.NewFromFloat(usd)
	c.store(ctx, key, price)
	return price, nil
}

// Prices returns USD prices keyed by symbol for tokens, combining the native
// lookup with the batched contract lookup
func (c *Client) Prices(ctx context.Context, tokens []config.Token) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(tokens))
	var (
		addresses []common.Address
		errs      []error
	)
	for _, t := range tokens {
		if t.IsNative() {
			price, err := c.NativePrice(ctx)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Symbol, err))
				continue
			}
			out[t.Symbol] = price
			continue
		}
		addresses = append(addresses, t.Address)
	}

	if len(addresses) > 0 {
		prices, err := c.TokenPrices(ctx, addresses)
		if err != nil {
			errs = append(errs, err)
		}
		for _, t := range tokens {
			if price, ok := prices[t.Address]; ok && !t.IsNative() {
				out[t.Symbol] = price
			}
		}
	}
	return out, errors.Join(errs...)
}

func (c *Client) get(ctx context.Context, endpointName, endpoint string) (priceResponse, error) {
	return resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) (priceResponse, error) {
		return resilience.RetryIfWithResult(ctx, c.retryCfg, IsRateLimited, func(ctx context.Context) (priceResponse, error) {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter error: %w", err)
			}

			start := time.Now()
			resp, err := c.fetch(ctx, endpoint)
			duration := time.Since(start)

			c.recordHealth(err, duration)
			status := "success"
			if err != nil {
				status = "error"
			}
			c.metrics.RecordUpstreamCall(ctx, providerName, endpointName, status, duration)
			return resp, err
		})
	})
}

func (c *Client) fetch(ctx context.Context, endpoint string) (priceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

func (c *Client) cached(ctx context.Context, key string) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	raw, err := cache.GetJSON[string](ctx, c.cache, key)
	if err != nil {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func (c *Client) store(ctx context.Context, key string, price decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.cache, key, price.String(), c.cacheTTL); err != nil {
		c.logger.LogDebug(ctx, "failed to cache price", "key", key, "error", err.Error())
	}
}

// Name returns the provider name for warmup logging
func (c *Client) Name() string { return providerName }

// Warmup pre-populates the cache with the prices of every registered token
func (c *Client) Warmup(ctx context.Context) error {
	if c.registry == nil {
		return nil
	}
	prices, err := c.Prices(ctx, c.registry.All())
	if err != nil {
		return fmt.Errorf("failed to warm prices: %w", err)
	}
	c.logger.LogInfo(ctx, "price cache warmed", "tokens", len(prices))
	return nil
}
