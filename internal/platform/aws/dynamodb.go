package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultActivityTTL is how long activity records live before DynamoDB expires them.
const DefaultActivityTTL = 30 * 24 * time.Hour

// DynamoAPI is the subset of the DynamoDB client used here
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ActivityRecord is one persisted user notification.
// Partition key is the wallet address, sort key orders records by time.
type ActivityRecord struct {
	Wallet    string `dynamodbav:"pk" json:"wallet"`
	SortKey   string `dynamodbav:"sk" json:"-"`
	ID        string `dynamodbav:"id" json:"id"`
	Level     string `dynamodbav:"level" json:"level"`
	Title     string `dynamodbav:"title" json:"title"`
	Message   string `dynamodbav:"message" json:"message"`
	Operation string `dynamodbav:"operation,omitempty" json:"operation,omitempty"`
	Slot      string `dynamodbav:"slot,omitempty" json:"slot,omitempty"`
	TxHash    string `dynamodbav:"tx_hash,omitempty" json:"txHash,omitempty"`
	CreatedAt string `dynamodbav:"created_at" json:"createdAt"` // RFC3339Nano
	TTL       int64  `dynamodbav:"ttl" json:"-"`
}

// ActivityStore persists activity records to a DynamoDB table
type ActivityStore struct {
	api   DynamoAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// ActivityStoreConfig configures an ActivityStore
type ActivityStoreConfig struct {
	AWSConfig aws.Config
	API       DynamoAPI // overrides the client built from AWSConfig
	Table     string
	TTL       time.Duration
}

// NewActivityStore creates an ActivityStore
func NewActivityStore(cfg ActivityStoreConfig) (*ActivityStore, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("DynamoDB table name is required")
	}
	api := cfg.API
	if api == nil {
		api = dynamodb.NewFromConfig(cfg.AWSConfig)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultActivityTTL
	}
	return &ActivityStore{api: api, table: cfg.Table, ttl: cfg.TTL, now: time.Now}, nil
}

// Put writes rec, filling the sort key and expiry.
func (s *ActivityStore) Put(ctx context.Context, rec ActivityRecord) error {
	if rec.Wallet == "" {
		rec.Wallet = "global"
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now().UTC().Format(time.RFC3339Nano)
	}
	rec.SortKey = rec.CreatedAt + "#" + rec.ID
	rec.TTL = s.now().Add(s.ttl).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// Recent returns up to limit records for wallet, newest first.
func (s *ActivityStore) Recent(ctx context.Context, wallet string, limit int32) ([]ActivityRecord, error) {
	if wallet == "" {
		wallet = "global"
	}
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: wallet},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}

	var records []ActivityRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal activity: %w", err)
	}
	return records, nil
}
