package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/resilience"
)

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient wraps AWS SNS client with resilience patterns
type SNSClient struct {
	api            SNSAPI
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    resilience.RetryConfig
	logger         *observability.Logger
	metrics        *observability.Metrics
}

// SNSClientConfig holds SNS client configuration
type SNSClientConfig struct {
	AWSConfig      aws.Config
	API            SNSAPI // overrides the client built from AWSConfig
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	RetryConfig    *resilience.RetryConfig
	CircuitBreaker *resilience.CircuitBreaker
}

// NewSNSClient creates a new SNS client with resilience patterns
func NewSNSClient(cfg SNSClientConfig) *SNSClient {
	api := cfg.API
	if api == nil {
		api = sns.NewFromConfig(cfg.AWSConfig)
	}

	retryConfig := resilience.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.1,
	}
	if cfg.RetryConfig != nil {
		retryConfig = *cfg.RetryConfig
	}

	circuitBreaker := cfg.CircuitBreaker
	if circuitBreaker == nil {
		circuitBreaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "sns",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				if cfg.Logger != nil {
					cfg.Logger.Info("SNS circuit breaker state changed",
						"from", from.String(),
						"to", to.String(),
					)
				}
				cfg.Metrics.SetCircuitBreakerState(context.Background(), name, int64(to))
			},
		})
	}

	return &SNSClient{
		api:            api,
		circuitBreaker: circuitBreaker,
		retryConfig:    retryConfig,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// Publish sends message to topicARN. String attributes become SNS message
// attributes so subscribers can filter on them.
func (s *SNSClient) Publish(ctx context.Context, topicARN string, message []byte, attributes map[string]string) error {
	start := time.Now()

	err := s.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.RetryIf(ctx, s.retryConfig, retryablePublishError, func(ctx context.Context) error {
			return s.publishOnce(ctx, topicARN, string(message), attributes)
		})
	})

	duration := time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		if s.logger != nil {
			s.logger.LogError(ctx, "SNS publish failed", err,
				"topic_arn", topicARN,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	s.metrics.RecordUpstreamCall(ctx, "sns", "publish", status, duration)

	return err
}

func (s *SNSClient) publishOnce(ctx context.Context, topicARN, message string, attributes map[string]string) error {
	messageAttributes := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		messageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := s.api.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(message),
		MessageAttributes: messageAttributes,
	})
	if err != nil {
		return fmt.Errorf("SNS publish failed: %w", err)
	}
	return nil
}

// retryablePublishError skips retries for errors a retry cannot fix
func retryablePublishError(err error) bool {
	var notFound *types.NotFoundException
	var invalid *types.InvalidParameterException
	var authz *types.AuthorizationErrorException
	switch {
	case errors.As(err, &notFound), errors.As(err, &invalid), errors.As(err, &authz):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// CircuitBreakerState returns current circuit breaker state
func (s *SNSClient) CircuitBreakerState() resilience.State {
	return s.circuitBreaker.State()
}
