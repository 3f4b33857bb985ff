package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/whiskertech/petfeeder/pkg/feed"
)

// FeedEventStore manages feed event records in the feed history table.
type FeedEventStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewFeedEventStore creates a feed event store over the given table.
func NewFeedEventStore(client DynamoDBAPI, tableName string) *FeedEventStore {
	return &FeedEventStore{client: client, tableName: tableName}
}

// PutEvent records a feed event.
func (f *FeedEventStore) PutEvent(ctx context.Context, evt feed.Event) error {
	item, err := attributevalue.MarshalMap(evt)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	_, err = f.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(f.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put feed event: %w", err)
	}
	return nil
}

// Get returns the feed event for an ID, or nil when none exists.
func (f *FeedEventStore) Get(ctx context.Context, feedID string) (*feed.Event, error) {
	result, err := f.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(f.tableName),
		Key: map[string]types.AttributeValue{
			"feed_id": &types.AttributeValueMemberS{Value: feedID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get feed event %s: %w", feedID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var evt feed.Event
	if err := attributevalue.UnmarshalMap(result.Item, &evt); err != nil {
		return nil, fmt.Errorf("unmarshal feed event %s: %w", feedID, err)
	}
	return &evt, nil
}

// PutEventIfAbsent records a feed event only when no event with the same
// feed_id exists yet. The backend gateway and the device both announce the
// start of a feed; whichever arrives second is dropped here.
func (f *FeedEventStore) PutEventIfAbsent(ctx context.Context, evt feed.Event) error {
	item, err := attributevalue.MarshalMap(evt)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	_, err = f.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(f.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(feed_id)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			log.Printf("Feed event %s already exists, skipping creation", evt.FeedID)
			return nil
		}
		return fmt.Errorf("put feed event: %w", err)
	}
	return nil
}

// RecordOutcome moves the feed event for evt.FeedID to its terminal status
// (completed or failed). When the initiated event exists it is updated in
// place; the after-dispense weight is stored and, when the initiated event
// carried a before-dispense weight, the dispensed delta is derived from the
// two. When no event exists (the device reported before the backend wrote
// one) a terminal record is created from the payload instead.
func (f *FeedEventStore) RecordOutcome(ctx context.Context, evt feed.Event) error {
	existing, err := f.Get(ctx, evt.FeedID)
	if err != nil {
		return err
	}

	if existing == nil {
		log.Printf("Feed event %s doesn't exist, creating with status %s", evt.FeedID, evt.Status)
		return f.PutEvent(ctx, evt)
	}

	setParts := []string{"#st = :st"}
	values := map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: string(evt.Status)},
	}
	if evt.WeightAfterG != 0 {
		setParts = append(setParts, "weight_after_g = :wa")
		values[":wa"] = &types.AttributeValueMemberN{
			Value: fmt.Sprintf("%.1f", evt.WeightAfterG),
		}
		if existing.WeightBeforeG != 0 {
			delta := math.Round((evt.WeightAfterG-existing.WeightBeforeG)*10) / 10
			setParts = append(setParts, "weight_delta_g = :wd")
			values[":wd"] = &types.AttributeValueMemberN{
				Value: fmt.Sprintf("%.1f", delta),
			}
		}
	}

	_, err = f.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(f.tableName),
		Key: map[string]types.AttributeValue{
			"feed_id": &types.AttributeValueMemberS{Value: evt.FeedID},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(setParts, ", ")),
		ExpressionAttributeNames:  map[string]string{"#st": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update feed event %s: %w", evt.FeedID, err)
	}

	log.Printf("Updated feed event %s to status %s", evt.FeedID, evt.Status)
	return nil
}

// HistoryPage is one page of feed history.
type HistoryPage struct {
	Items      []feed.Event `json:"items"`
	TotalItems int          `json:"total_items"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

// History returns feed events newest-first, paginated in memory, optionally
// bounded by an inclusive [startTime, endTime] window on the event
// timestamp. The full table is scanned; a timestamp-keyed index would be
// needed for server-side pagination on large tables.
func (f *FeedEventStore) History(ctx context.Context, page, limit int, startTime, endTime string) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var all []feed.Event
	var startKey map[string]types.AttributeValue

	for {
		result, err := f.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(f.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan feed events: %w", err)
		}

		for _, item := range result.Items {
			var evt feed.Event
			if err := attributevalue.UnmarshalMap(item, &evt); err != nil {
				continue
			}
			if evt.Timestamp == "" {
				continue
			}
			if startTime != "" && evt.Timestamp < startTime {
				continue
			}
			if endTime != "" && evt.Timestamp > endTime {
				continue
			}
			all = append(all, evt)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})

	start := (page - 1) * limit
	end := start + limit
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	return &HistoryPage{
		Items:      all[start:end],
		TotalItems: len(all),
		Page:       page,
		Limit:      limit,
		TotalPages: (len(all) + limit - 1) / limit,
	}, nil
}
