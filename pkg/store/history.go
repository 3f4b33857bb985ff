package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/whiskertech/petfeeder/pkg/schedule"
)

// ExecutionHistoryStore appends to and reads the schedule execution audit
// trail. Records are never mutated or deleted here.
type ExecutionHistoryStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewExecutionHistoryStore creates a history store over the given table.
func NewExecutionHistoryStore(client DynamoDBAPI, tableName string) *ExecutionHistoryStore {
	return &ExecutionHistoryStore{client: client, tableName: tableName}
}

// Append writes one execution attempt. An empty ExecutionID is filled in.
func (h *ExecutionHistoryStore) Append(ctx context.Context, rec schedule.ExecutionRecord) error {
	if rec.ExecutionID == "" {
		rec.ExecutionID = uuid.NewString()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	_, err = h.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(h.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put execution record: %w", err)
	}
	return nil
}

// ListBySchedule returns execution attempts for one schedule, newest
// first, up to limit (0 means all).
func (h *ExecutionHistoryStore) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]schedule.ExecutionRecord, error) {
	var records []schedule.ExecutionRecord
	var startKey map[string]types.AttributeValue

	for {
		result, err := h.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(h.tableName),
			FilterExpression: aws.String("schedule_id = :sid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: scheduleID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan execution history: %w", err)
		}

		for _, item := range result.Items {
			var rec schedule.ExecutionRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ExecutedAt > records[j].ExecutedAt
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
