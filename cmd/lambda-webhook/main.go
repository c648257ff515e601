package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/resilience"
)

// relay forwards transaction notifications from the SNS topic (via SQS) to
// an external webhook
type relay struct {
	client *http.Client
	url    string
	retry  resilience.RetryConfig
	logger *observability.Logger
}

func newRelay() *relay {
	return &relay{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    os.Getenv("WEBHOOK_URL"),
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    8 * time.Second,
			Jitter:      0.1,
		},
		logger: observability.NewLogger(os.Getenv("LOG_LEVEL"), "json"),
	}
}

// Handler processes SQS events and sends webhooks
func (r *relay) Handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure
	sent := 0

	for _, record := range sqsEvent.Records {
		n, err := decodeRecord(record)
		if err != nil {
			r.logger.LogError(ctx, "failed to decode record", err, "message_id", record.MessageId)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		url := r.url
		if url == "" {
			if attr, ok := record.MessageAttributes["webhookURL"]; ok && attr.StringValue != nil {
				url = *attr.StringValue
			}
		}
		if url == "" {
			// nothing to deliver to is not a failure
			r.logger.LogWarn(ctx, "no webhook URL configured, skipping", "message_id", record.MessageId)
			continue
		}

		if err := resilience.RetryIf(ctx, r.retry, isRetryable, func(ctx context.Context) error {
			return r.send(ctx, url, n)
		}); err != nil {
			r.logger.LogError(ctx, "failed to send webhook", err, "notification_id", n.ID)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		sent++
		r.logger.LogInfo(ctx, "webhook sent", "notification_id", n.ID, "url", maskURL(url))
	}

	r.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"sent", sent,
		"failed", len(failures),
	)

	// SQS retries only the failed messages
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

// decodeRecord unwraps the SNS envelope in an SQS record body
func decodeRecord(record events.SQSMessage) (notification.Notification, error) {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(record.Body), &envelope); err != nil {
		return notification.Notification{}, fmt.Errorf("failed to parse SQS body: %w", err)
	}
	var n notification.Notification
	if err := json.Unmarshal([]byte(envelope.Message), &n); err != nil {
		return notification.Notification{}, fmt.Errorf("failed to parse notification: %w", err)
	}
	return n, nil
}

func (r *relay) send(ctx context.Context, url string, n notification.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FarmrSwap-Webhook/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(detail)}
}

// HTTPError is a non-2xx webhook response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook failed with status %d", e.StatusCode)
}

// isRetryable retries 5xx responses and transport errors
func isRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}

// maskURL hides the middle of a webhook URL, which usually carries a secret
func maskURL(url string) string {
	if len(url) > 30 {
		return url[:15] + "..." + url[len(url)-10:]
	}
	return url
}

func main() {
	lambda.Start(newRelay().Handler)
}
