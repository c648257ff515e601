package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Transaction lifecycle metrics
	TxSubmitted           metric.Int64Counter
	TxConfirmed           metric.Int64Counter
	TxFailed              metric.Int64Counter
	TxConfirmationLatency metric.Float64Histogram

	// Balance store metrics
	BalanceRefreshes       metric.Int64Counter
	BalanceRefreshDuration metric.Float64Histogram
	BalanceReadFailures    metric.Int64Counter

	// Upstream HTTP/AWS call metrics
	UpstreamCalls    metric.Int64Counter
	UpstreamDuration metric.Float64Histogram

	// Quote metrics
	QuotesComputed metric.Int64Counter

	// RPC endpoint metrics
	RPCEndpointHealth metric.Int64Gauge

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Notification metrics
	NotificationsSent metric.Int64Counter

	// Error metrics
	Errors metric.Int64Counter

	enabled bool
}

// NewMetrics creates a new Metrics instance. When disabled every instrument is a no-op.
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		m := &Metrics{meter: noop.NewMeterProvider().Meter(serviceName)}
		if err := m.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		return m, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:   provider.Meter(serviceName),
		enabled: true,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// NewNoopMetrics returns metrics backed by a no-op meter.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics("noop", false)
	return m
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	if m.TxSubmitted, err = m.meter.Int64Counter(
		"farmrswap.tx.submitted",
		metric.WithDescription("Transactions handed to the wallet and accepted by the node"),
	); err != nil {
		return err
	}

	if m.TxConfirmed, err = m.meter.Int64Counter(
		"farmrswap.tx.confirmed",
		metric.WithDescription("Transactions mined successfully"),
	); err != nil {
		return err
	}

	if m.TxFailed, err = m.meter.Int64Counter(
		"farmrswap.tx.failed",
		metric.WithDescription("Transactions rejected at submission or reverted on chain"),
	); err != nil {
		return err
	}

	if m.TxConfirmationLatency, err = m.meter.Float64Histogram(
		"farmrswap.tx.confirmation.latency",
		metric.WithDescription("Time from submission to terminal receipt in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.BalanceRefreshes, err = m.meter.Int64Counter(
		"farmrswap.balances.refreshes",
		metric.WithDescription("Balance snapshot refreshes"),
	); err != nil {
		return err
	}

	if m.BalanceRefreshDuration, err = m.meter.Float64Histogram(
		"farmrswap.balances.refresh.duration",
		metric.WithDescription("Balance refresh duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.BalanceReadFailures, err = m.meter.Int64Counter(
		"farmrswap.balances.read_failures",
		metric.WithDescription("Individual balance reads that degraded to zero"),
	); err != nil {
		return err
	}

	if m.UpstreamCalls, err = m.meter.Int64Counter(
		"farmrswap.upstream.calls",
		metric.WithDescription("Calls to external services (price API, SNS, DynamoDB)"),
	); err != nil {
		return err
	}

	if m.UpstreamDuration, err = m.meter.Float64Histogram(
		"farmrswap.upstream.duration",
		metric.WithDescription("External call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return err
	}

	if m.QuotesComputed, err = m.meter.Int64Counter(
		"farmrswap.quotes.computed",
		metric.WithDescription("Mock quotes computed"),
	); err != nil {
		return err
	}

	if m.RPCEndpointHealth, err = m.meter.Int64Gauge(
		"farmrswap.rpc.endpoint.health",
		metric.WithDescription("RPC endpoint health (1 healthy, 0 unhealthy)"),
	); err != nil {
		return err
	}

	if m.CacheHits, err = m.meter.Int64Counter(
		"farmrswap.cache.hits",
		metric.WithDescription("Cache hits"),
	); err != nil {
		return err
	}

	if m.CacheMisses, err = m.meter.Int64Counter(
		"farmrswap.cache.misses",
		metric.WithDescription("Cache misses"),
	); err != nil {
		return err
	}

	if m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"farmrswap.circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0 closed, 1 open, 2 half-open)"),
	); err != nil {
		return err
	}

	if m.NotificationsSent, err = m.meter.Int64Counter(
		"farmrswap.notifications.sent",
		metric.WithDescription("User notifications emitted"),
	); err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"farmrswap.errors",
		metric.WithDescription("Total errors encountered"),
	)
	return err
}

// RecordTxSubmitted records a transaction accepted for broadcast
func (m *Metrics) RecordTxSubmitted(ctx context.Context, operation, slot string) {
	if m == nil {
		return
	}
	m.TxSubmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("slot", slot),
	))
}

// RecordTxOutcome records a terminal transaction outcome
func (m *Metrics) RecordTxOutcome(ctx context.Context, operation, slot string, success bool, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("slot", slot),
	)
	if success {
		m.TxConfirmed.Add(ctx, 1, attrs)
	} else {
		m.TxFailed.Add(ctx, 1, attrs)
	}
	if latency > 0 {
		m.TxConfirmationLatency.Record(ctx, float64(latency.Milliseconds()), attrs)
	}
}

// RecordSubmissionError records a transaction that never got a hash
func (m *Metrics) RecordSubmissionError(ctx context.Context, operation, slot, category string) {
	if m == nil {
		return
	}
	m.TxFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("slot", slot),
		attribute.String("category", category),
	))
}

// RecordBalanceRefresh records a balance snapshot refresh
func (m *Metrics) RecordBalanceRefresh(ctx context.Context, tokens, failures int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BalanceRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.Int("tokens", tokens)))
	m.BalanceRefreshDuration.Record(ctx, float64(duration.Milliseconds()))
	if failures > 0 {
		m.BalanceReadFailures.Add(ctx, int64(failures))
	}
}

// RecordUpstreamCall records a call to an external service
func (m *Metrics) RecordUpstreamCall(ctx context.Context, service, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.UpstreamCalls.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordQuote records a computed quote
func (m *Metrics) RecordQuote(ctx context.Context, pair string) {
	if m == nil {
		return
	}
	m.QuotesComputed.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", pair)))
}

// RecordRPCEndpointHealth records RPC endpoint health status
func (m *Metrics) RecordRPCEndpointHealth(ctx context.Context, url string, healthy bool) {
	if m == nil {
		return
	}
	val := int64(0)
	if healthy {
		val = 1
	}
	m.RPCEndpointHealth.Record(ctx, val, metric.WithAttributes(
		attribute.String("url", url),
	))
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// SetCircuitBreakerState sets circuit breaker state
// 0 = closed, 1 = open, 2 = half-open
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordNotification records a user notification
func (m *Metrics) RecordNotification(ctx context.Context, level, sink string) {
	if m == nil {
		return
	}
	m.NotificationsSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", level),
		attribute.String("sink", sink),
	))
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics.
// The OpenTelemetry Prometheus exporter registers with the default registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Enabled reports whether metrics are exported
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}
