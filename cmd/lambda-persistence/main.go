package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/notification"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/aws"
	"github.com/farmrswapdex/farmrswap-dex-sub000/internal/platform/observability"
)

const defaultTable = "farmrswap-activity"

// ActivityWriter persists one activity record
type ActivityWriter interface {
	Put(ctx context.Context, rec aws.ActivityRecord) error
}

type persister struct {
	store  ActivityWriter
	logger *observability.Logger
}

// Handler processes SQS events and writes each notification to the
// activity table
func (p *persister) Handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var failures []events.SQSBatchItemFailure

	for _, record := range sqsEvent.Records {
		var envelope struct {
			Message string `json:"Message"`
		}
		if err := json.Unmarshal([]byte(record.Body), &envelope); err != nil {
			p.logger.LogError(ctx, "failed to parse SQS body", err, "message_id", record.MessageId)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		var n notification.Notification
		if err := json.Unmarshal([]byte(envelope.Message), &n); err != nil {
			p.logger.LogError(ctx, "failed to parse notification", err, "message_id", record.MessageId)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}

		if err := p.store.Put(ctx, notification.ToActivity(n)); err != nil {
			p.logger.LogError(ctx, "failed to persist activity", err, "notification_id", n.ID)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
			continue
		}
		p.logger.LogDebug(ctx, "persisted activity", "notification_id", n.ID, "wallet", n.Wallet)
	}

	p.logger.LogInfo(ctx, "batch processed",
		"records", len(sqsEvent.Records),
		"failed", len(failures),
	)
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func main() {
	ctx := context.Background()
	logger := observability.NewLogger(os.Getenv("LOG_LEVEL"), "json")

	awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
		Region:   os.Getenv("AWS_REGION"),
		Endpoint: os.Getenv("AWS_ENDPOINT_URL"),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	table := os.Getenv("ACTIVITY_TABLE")
	if table == "" {
		table = defaultTable
	}
	store, err := aws.NewActivityStore(aws.ActivityStoreConfig{AWSConfig: awsCfg, Table: table})
	if err != nil {
		panic(fmt.Sprintf("failed to create activity store: %v", err))
	}

	logger.LogInfo(ctx, "persistence lambda initialized", "table", table)
	lambda.Start((&persister{store: store, logger: logger}).Handler)
}
