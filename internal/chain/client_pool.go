// Package chain binds the process to one EVM network: a pool of RPC
// endpoints, the signing wallet, batched balance reads and receipt polling.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/config"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// ErrNoHealthyEndpoint is returned when every endpoint is marked unhealthy
var ErrNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

// Conn is a connection to one endpoint, handed out by the pool
type Conn struct {
	URL string
	Eth *ethclient.Client
	RPC *rpc.Client
}

type endpoint struct {
	url     string
	weight  int
	healthy atomic.Bool

	mu  sync.Mutex // guards rpc and eth across reconnects
	rpc *rpc.Client
	eth *ethclient.Client
}

func (e *endpoint) conn() (Conn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.eth == nil {
		return Conn{}, false
	}
	return Conn{URL: e.url, Eth: e.eth, RPC: e.rpc}, true
}

func (e *endpoint) dial(ctx context.Context) error {
	client, err := rpc.DialContext(ctx, e.url)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.rpc = client
	e.eth = ethclient.NewClient(client)
	e.mu.Unlock()
	return nil
}

func (e *endpoint) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rpc != nil {
		e.rpc.Close()
	}
	e.rpc, e.eth = nil, nil
}

// ClientPool manages the RPC endpoints of the active network with health
// tracking and weighted round-robin failover
type ClientPool struct {
	endpoints []*endpoint
	schedule  []int // endpoint indexes, each repeated weight times
	next      atomic.Uint64

	logger         *observability.Logger
	metrics        *observability.Metrics
	healthCheckTTL time.Duration
	checkTimeout   time.Duration
}

// ClientPoolConfig holds client pool configuration
type ClientPoolConfig struct {
	Endpoints      []config.RPCEndpoint
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	HealthCheckTTL time.Duration
	CheckTimeout   time.Duration
}

// NewClientPool dials every endpoint. Endpoints that fail to dial start
// unhealthy and are retried by the health loop.
func NewClientPool(ctx context.Context, cfg ClientPoolConfig) (*ClientPool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.HealthCheckTTL == 0 {
		cfg.HealthCheckTTL = 30 * time.Second
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 10 * time.Second
	}

	pool := &ClientPool{
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		healthCheckTTL: cfg.HealthCheckTTL,
		checkTimeout:   cfg.CheckTimeout,
	}

	healthy := 0
	for i, epCfg := range cfg.Endpoints {
		ep := &endpoint{url: epCfg.URL, weight: max(epCfg.Weight, 1)}
		if err := ep.dial(ctx); err != nil {
			cfg.Logger.LogError(ctx, "failed to connect to RPC endpoint", err, "url", epCfg.URL)
		} else {
			ep.healthy.Store(true)
			healthy++
			cfg.Logger.LogInfo(ctx, "connected to RPC endpoint", "url", epCfg.URL, "weight", ep.weight)
		}
		pool.endpoints = append(pool.endpoints, ep)
		for range ep.weight {
			pool.schedule = append(pool.schedule, i)
		}
	}

	if healthy == 0 {
		return nil, ErrNoHealthyEndpoint
	}
	return pool, nil
}

// Start runs periodic health checks until ctx is done
func (cp *ClientPool) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cp.healthCheckTTL)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cp.CheckAll(ctx)
			}
		}
	}()
}

// GetClient returns the next healthy connection in weighted round-robin order
func (cp *ClientPool) GetClient() (Conn, error) {
	n := len(cp.schedule)
	start := cp.next.Add(1) - 1
	for i := 0; i < n; i++ {
		ep := cp.endpoints[cp.schedule[(start+uint64(i))%uint64(n)]]
		if !ep.healthy.Load() {
			continue
		}
		if conn, ok := ep.conn(); ok {
			return conn, nil
		}
	}
	return Conn{}, ErrNoHealthyEndpoint
}

// MarkUnhealthy takes an endpoint out of rotation until its next successful check
func (cp *ClientPool) MarkUnhealthy(ctx context.Context, url string) {
	for _, ep := range cp.endpoints {
		if ep.url != url {
			continue
		}
		if ep.healthy.Swap(false) {
			cp.logger.LogWarn(ctx, "marking RPC endpoint as unhealthy", "url", url)
			cp.metrics.RecordRPCEndpointHealth(ctx, url, false)
		}
		return
	}
}

// ReportError inspects an error returned through conn and marks the endpoint
// unhealthy if it looks like a transport failure. JSON-RPC errors, reverts and
// not-found results mean the endpoint answered.
func (cp *ClientPool) ReportError(ctx context.Context, url string, err error) {
	if err == nil || ctx.Err() != nil || errors.Is(err, ethereum.NotFound) {
		return
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
		return
	}
	cp.MarkUnhealthy(ctx, url)
}

// CheckAll checks every endpoint concurrently and waits for the results
func (cp *ClientPool) CheckAll(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, cp.checkTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, ep := range cp.endpoints {
		wg.Add(1)
		go func(ep *endpoint) {
			defer wg.Done()
			cp.checkEndpoint(checkCtx, ep)
		}(ep)
	}
	wg.Wait()
}

func (cp *ClientPool) checkEndpoint(ctx context.Context, ep *endpoint) {
	conn, ok := ep.conn()
	if !ok {
		if err := ep.dial(ctx); err != nil {
			ep.healthy.Store(false)
			cp.metrics.RecordRPCEndpointHealth(ctx, ep.url, false)
			return
		}
		if conn, ok = ep.conn(); !ok {
			// closed again before the check could use it
			return
		}
		cp.logger.LogInfo(ctx, "reconnected to RPC endpoint", "url", ep.url)
	}

	if _, err := conn.Eth.BlockNumber(ctx); err != nil {
		if ctx.Err() != nil {
			// the check itself timed out; keep the client
			cp.logger.LogDebug(ctx, "RPC health check timed out", "url", ep.url, "error", err.Error())
			return
		}
		if ep.healthy.Swap(false) {
			cp.logger.LogError(ctx, "RPC endpoint health check failed", err, "url", ep.url)
		}
		cp.metrics.RecordRPCEndpointHealth(ctx, ep.url, false)
		ep.close()
		return
	}

	if !ep.healthy.Swap(true) {
		cp.logger.LogInfo(ctx, "RPC endpoint is now healthy", "url", ep.url)
	}
	cp.metrics.RecordRPCEndpointHealth(ctx, ep.url, true)
}

// HealthyCount returns the number of healthy endpoints
func (cp *ClientPool) HealthyCount() int {
	count := 0
	for _, ep := range cp.endpoints {
		if ep.healthy.Load() {
			count++
		}
	}
	return count
}

// EndpointStatus returns the health of every endpoint keyed by URL
func (cp *ClientPool) EndpointStatus() map[string]bool {
	status := make(map[string]bool, len(cp.endpoints))
	for _, ep := range cp.endpoints {
		status[ep.url] = ep.healthy.Load()
	}
	return status
}

// Close closes all client connections
func (cp *ClientPool) Close() {
	for _, ep := range cp.endpoints {
		ep.close()
	}
	cp.logger.LogInfo(context.Background(), "closed all RPC client connections")
}
