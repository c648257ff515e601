package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

// Publisher publishes notifications to SNS for the webhook relay and the
// activity history
type Publisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
}

// NewPublisher creates a new notification publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}

	return &Publisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// Notify publishes n. Level and operation become message attributes so
// subscriptions can filter on them.
func (p *Publisher) Notify(ctx context.Context, n Notification) error {
	var span trace.Span
	if p.tracer != nil {
		ctx, span = observability.StartSpan(ctx, p.tracer, "Publisher.Notify",
			attribute.String("notification_id", n.ID),
			attribute.String("level", string(n.Level)),
		)
	}

	err := p.publish(ctx, n)
	if span != nil {
		observability.EndSpan(span, err)
	}
	return err
}

func (p *Publisher) publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	attributes := map[string]string{"level": string(n.Level)}
	if n.Operation != "" {
		attributes["operation"] = n.Operation
	}

	if err := p.snsClient.Publish(ctx, p.topicARN, payload, attributes); err != nil {
		p.logger.LogError(ctx, "failed to publish notification to SNS", err,
			"notification_id", n.ID,
			"topic_arn", p.topicARN,
		)
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	p.metrics.RecordNotification(ctx, string(n.Level), "sns")
	p.logger.LogDebug(ctx, "published notification to SNS", "notification_id", n.ID, "level", n.Level)
	return nil
}

// CircuitBreakerState returns the SNS circuit breaker state
func (p *Publisher) CircuitBreakerState() string {
	return p.snsClient.CircuitBreakerState().String()
}

// NoOpPublisher only logs notifications. Used when SNS is not configured.
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a publisher that only logs
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	return &NoOpPublisher{logger: logger}
}

// Notify logs n
func (p *NoOpPublisher) Notify(ctx context.Context, n Notification) error {
	if p.logger != nil {
		p.logger.LogInfo(ctx, "notification (SNS disabled)",
			"notification_id", n.ID,
			"level", n.Level,
			"title", n.Title,
			"operation", n.Operation,
			"tx_hash", n.TxHash,
		)
	}
	return nil
}
