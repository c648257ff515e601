package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/api"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/balances"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/chain"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/dex"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/launchpad"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/cache"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/worker"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/pricing"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/quote"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/txflow"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml)")
	flag.Parse()

	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad(*configPath)

	// Setup observability (foundational - must be first)
	log.Println("Setting up observability...")
	obs := cfg.Observability
	logger := observability.NewLogger(obs.Logging.Level, obs.Logging.Format)

	metrics, err := observability.NewMetrics(obs.ServiceName, obs.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, obs.ServiceName, obs.Environment, obs.Tracing.Endpoint, obs.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(ctx)

	logger.Info("observability setup complete")

	// Cache: L1 memory, plus Redis as L2 when enabled
	memCache := cache.NewMemoryCache(cfg.Cache.L1MaxSize, cfg.Cache.L2TTL)
	var priceCache cache.Cache = memCache
	checks := map[string]api.Check{}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "farmrswap:",
		})
		if err != nil {
			logger.LogError(ctx, "failed to create Redis cache", err)
			log.Fatalf("Failed to create Redis cache: %v", err)
		}
		priceCache = cache.NewLayeredCache(cache.LayeredConfig{L1: memCache, L2: redisCache, Metrics: metrics})
		checks["redis"] = redisCache.Ping
	}
	defer priceCache.Close()

	// Notifications: in-process hub, fanned out to SNS when AWS is enabled
	hub := notification.NewHub(notification.HubConfig{Logger: logger, Metrics: metrics})
	notifier := notification.Multi{hub}
	var activity api.ActivitySource
	if cfg.AWS.Enabled {
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
		})
		if err != nil {
			logger.LogError(ctx, "failed to load AWS config", err)
			log.Fatalf("Failed to load AWS config: %v", err)
		}

		publisher, err := notification.NewPublisher(notification.PublisherConfig{
			SNSClient: aws.NewSNSClient(aws.SNSClientConfig{
				AWSConfig: awsCfg,
				Logger:    logger,
				Metrics:   metrics,
			}),
			TopicARN: cfg.AWS.SNSTopicARN,
			Logger:   logger,
			Metrics:  metrics,
			Tracer:   tracer.Tracer(),
		})
		if err != nil {
			logger.LogError(ctx, "failed to create publisher", err)
			log.Fatalf("Failed to create publisher: %v", err)
		}
		notifier = append(notifier, publisher)

		activityStore, err := aws.NewActivityStore(aws.ActivityStoreConfig{
			AWSConfig: awsCfg,
			Table:     cfg.AWS.ActivityTable,
		})
		if err != nil {
			logger.LogError(ctx, "failed to create activity store", err)
			log.Fatalf("Failed to create activity store: %v", err)
		}
		activity = activityStore
	}

	// Bind to the chain
	logger.Info("connecting to network...")
	binding, err := chain.Bind(ctx, cfg, logger, metrics)
	if err != nil {
		logger.LogError(ctx, "failed to bind network", err)
		log.Fatalf("Failed to bind network: %v", err)
	}
	defer binding.Close()
	if err := binding.VerifyChainID(ctx); err != nil {
		logger.LogError(ctx, "wrong network", err)
		log.Fatalf("Wrong network: %v", err)
	}
	binding.Pool.Start(ctx)
	checks["rpc"] = func(context.Context) error {
		if binding.Pool.HealthyCount() == 0 {
			return chain.ErrNoHealthyEndpoint
		}
		return nil
	}

	store := balances.NewStore(balances.Config{
		Reader:   binding.Reader,
		Registry: binding.Registry,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err := store.Refresh(ctx, binding.Wallet.Address()); err != nil {
		logger.LogWarn(ctx, "initial balance refresh failed", "error", err.Error())
	}

	// Price lookup
	pool := worker.NewPool(ctx, worker.PoolConfig{Workers: cfg.Pricing.Workers, QueueSize: cfg.Pricing.Workers * 4})
	defer pool.Close()

	prices, err := pricing.NewClient(pricing.ClientConfig{
		BaseURL:        cfg.Pricing.BaseURL,
		Platform:       cfg.Pricing.Platform,
		NativeID:       cfg.Pricing.NativeID,
		APIKey:         cfg.Pricing.APIKey,
		BatchSize:      cfg.Pricing.BatchSize,
		Timeout:        cfg.Pricing.Timeout,
		CacheTTL:       cfg.Pricing.CacheTTL,
		RateLimitRPM:   cfg.Pricing.RateLimit.RequestsPerMinute,
		RateLimitBurst: cfg.Pricing.RateLimit.Burst,
		Pool:           pool,
		Cache:          priceCache,
		Registry:       binding.Registry,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create price client", err)
		log.Fatalf("Failed to create price client: %v", err)
	}

	warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
	warmer.RegisterProvider(prices)
	go warmer.Warmup(ctx)

	// Quotes and operations
	paths, err := quote.NewPathFinder(cfg.Quote.Pairs, "WETH")
	if err != nil {
		log.Fatalf("Failed to build quote routes: %v", err)
	}
	estimator, err := quote.NewEstimator(quote.EstimatorConfig{
		Registry:    binding.Registry,
		Paths:       paths,
		FeeBps:      cfg.Quote.FeeBps,
		SlippageBps: cfg.Trade.SlippageBps,
		DepthUSD:    cfg.Quote.DepthUSD,
		Debounce:    cfg.Quote.Debounce,
		Metrics:     metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create quote estimator: %v", err)
	}

	operations, err := dex.NewService(dex.Config{
		Registry:    binding.Registry,
		Backend:     binding.Backend,
		Wallet:      binding.Wallet,
		Contracts:   cfg.Contracts,
		Paths:       paths,
		SlippageBps: cfg.Trade.SlippageBps,
		Deadline:    cfg.Trade.Deadline,
		Flow: txflow.Config{
			Receipts:    binding.Receipts,
			Balances:    store,
			Notifier:    notifier,
			Logger:      logger,
			Metrics:     metrics,
			ExplorerURL: binding.ExplorerTxURL,
			BaseContext: ctx,
		},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create operation service", err)
		log.Fatalf("Failed to create operation service: %v", err)
	}

	server, err := api.NewServer(api.Config{
		Registry:       binding.Registry,
		Wallet:         binding.Wallet,
		Balances:       store,
		Estimator:      estimator,
		Prices:         prices,
		Operations:     operations,
		Launchpad:      launchpad.NewCatalog(launchpad.DefaultProjects(time.Now()), nil),
		Hub:            hub,
		Activity:       activity,
		Checks:         checks,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		ExplorerTxURL:  binding.ExplorerTxURL,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(ctx, "HTTP server error", err)
			cancel()
		}
	}()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP server shutdown failed", err)
	}
	cancel()
	logger.Info("application stopped")
}
