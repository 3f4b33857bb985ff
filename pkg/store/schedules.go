package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/whiskertech/petfeeder/pkg/schedule"
)

// ScheduleStore manages feeding schedule records.
type ScheduleStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewScheduleStore creates a schedule store over the given table.
func NewScheduleStore(client DynamoDBAPI, tableName string) *ScheduleStore {
	return &ScheduleStore{client: client, tableName: tableName}
}

// CreateScheduleInput carries user input for a new schedule. ScheduledTime
// may be naive or zone-suffixed; naive values are interpreted in Timezone.
type CreateScheduleInput struct {
	RequestedBy   string
	ScheduledTime string
	FeedCycles    int
	Recurrence    schedule.Recurrence
	Enabled       bool
	Timezone      string
}

// Validate checks the input against the schedule constraints.
func (in *CreateScheduleInput) Validate() error {
	if in.RequestedBy == "" {
		return fmt.Errorf("requested_by is required")
	}
	if in.FeedCycles < schedule.MinFeedCycles || in.FeedCycles > schedule.MaxFeedCycles {
		return fmt.Errorf("feed_cycles must be between %d and %d",
			schedule.MinFeedCycles, schedule.MaxFeedCycles)
	}
	if in.Recurrence != "" && !in.Recurrence.Valid() {
		return fmt.Errorf("invalid recurrence %q", in.Recurrence)
	}
	return nil
}

// Create stores a new schedule. The scheduled time is converted to the
// canonical UTC wire format before it is written; the timezone is kept on
// the record only as a note of how the input was interpreted.
func (s *ScheduleStore) Create(ctx context.Context, in CreateScheduleInput) (*schedule.Schedule, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	utcTime, err := schedule.ConvertToUTC(in.ScheduledTime, tz)
	if err != nil {
		return nil, fmt.Errorf("convert scheduled time: %w", err)
	}

	recurrence := in.Recurrence
	if recurrence == "" {
		recurrence = schedule.RecurrenceNone
	}

	now := schedule.FormatUTC(time.Now())
	rec := &schedule.Schedule{
		ScheduleID:    uuid.NewString(),
		RequestedBy:   in.RequestedBy,
		ScheduledTime: utcTime,
		FeedCycles:    in.FeedCycles,
		Recurrence:    recurrence,
		Enabled:       in.Enabled,
		Timezone:      tz,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return nil, fmt.Errorf("put schedule: %w", err)
	}

	return rec, nil
}

// Get retrieves a schedule by ID.
func (s *ScheduleStore) Get(ctx context.Context, scheduleID string) (*schedule.Schedule, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"schedule_id": &types.AttributeValueMemberS{Value: scheduleID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("schedule not found: %s", scheduleID)
	}

	var rec schedule.Schedule
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return &rec, nil
}

// ListEnabled returns every enabled schedule, following scan pagination
// until the table is exhausted.
func (s *ScheduleStore) ListEnabled(ctx context.Context) ([]schedule.Schedule, error) {
	var schedules []schedule.Schedule
	var startKey map[string]types.AttributeValue

	for {
		result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("enabled = :enabled"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":enabled": &types.AttributeValueMemberBOOL{Value: true},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan schedules: %w", err)
		}

		for _, item := range result.Items {
			var rec schedule.Schedule
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				continue // Skip malformed records
			}
			schedules = append(schedules, rec)
		}

		if result.LastEvaluatedKey == nil {
			return schedules, nil
		}
		startKey = result.LastEvaluatedKey
	}
}

// SchedulePage is one page of a schedule listing.
type SchedulePage struct {
	Schedules []schedule.Schedule `json:"schedules"`
	Total     int                 `json:"total"`
	Page      int                 `json:"page"`
	PageSize  int                 `json:"page_size"`
	HasNext   bool                `json:"has_next"`
}

// List returns schedules sorted newest-first, paginated in memory,
// optionally filtered by owner.
func (s *ScheduleStore) List(ctx context.Context, page, pageSize int, requestedBy string) (*SchedulePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	if requestedBy != "" {
		input.FilterExpression = aws.String("requested_by = :user")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":user": &types.AttributeValueMemberS{Value: requestedBy},
		}
	}

	var all []schedule.Schedule
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan schedules: %w", err)
		}
		for _, item := range result.Items {
			var rec schedule.Schedule
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				continue
			}
			all = append(all, rec)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt > all[j].CreatedAt
	})

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}

	return &SchedulePage{
		Schedules: all[start:end],
		Total:     len(all),
		Page:      page,
		PageSize:  pageSize,
		HasNext:   end < len(all),
	}, nil
}

// UpdateScheduleInput carries a partial schedule update. Nil fields are
// left untouched.
type UpdateScheduleInput struct {
	ScheduledTime *string
	FeedCycles    *int
	Recurrence    *schedule.Recurrence
	Enabled       *bool
	Timezone      *string
}

// Update applies a partial update. When the scheduled time changes, the
// idempotency guard (last_executed_at) is removed in the same write so the
// new occurrence becomes eligible to fire.
func (s *ScheduleStore) Update(ctx context.Context, scheduleID string, in UpdateScheduleInput) (*schedule.Schedule, error) {
	var setParts []string
	values := map[string]types.AttributeValue{}
	names := map[string]string{}
	removeGuard := false

	if in.FeedCycles != nil {
		if *in.FeedCycles < schedule.MinFeedCycles || *in.FeedCycles > schedule.MaxFeedCycles {
			return nil, fmt.Errorf("feed_cycles must be between %d and %d",
				schedule.MinFeedCycles, schedule.MaxFeedCycles)
		}
		setParts = append(setParts, "feed_cycles = :fc")
		values[":fc"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *in.FeedCycles)}
	}

	if in.Recurrence != nil {
		if !in.Recurrence.Valid() {
			return nil, fmt.Errorf("invalid recurrence %q", *in.Recurrence)
		}
		setParts = append(setParts, "recurrence = :rec")
		values[":rec"] = &types.AttributeValueMemberS{Value: string(*in.Recurrence)}
	}

	if in.Enabled != nil {
		setParts = append(setParts, "enabled = :en")
		values[":en"] = &types.AttributeValueMemberBOOL{Value: *in.Enabled}
	}

	if in.Timezone != nil {
		if _, err := time.LoadLocation(*in.Timezone); err != nil {
			return nil, fmt.Errorf("unknown timezone %q", *in.Timezone)
		}
		setParts = append(setParts, "#tz = :tz")
		names["#tz"] = "timezone"
		values[":tz"] = &types.AttributeValueMemberS{Value: *in.Timezone}
	}

	if in.ScheduledTime != nil {
		tz := "UTC"
		if in.Timezone != nil {
			tz = *in.Timezone
		} else if current, err := s.Get(ctx, scheduleID); err == nil && current.Timezone != "" {
			tz = current.Timezone
		}
		utcTime, err := schedule.ConvertToUTC(*in.ScheduledTime, tz)
		if err != nil {
			return nil, fmt.Errorf("convert scheduled time: %w", err)
		}
		setParts = append(setParts, "#st = :st")
		names["#st"] = "scheduled_time"
		values[":st"] = &types.AttributeValueMemberS{Value: utcTime}
		removeGuard = true
	}

	setParts = append(setParts, "updated_at = :ua")
	values[":ua"] = &types.AttributeValueMemberS{Value: schedule.FormatUTC(time.Now())}

	expr := "SET " + strings.Join(setParts, ", ")
	if removeGuard {
		expr += " REMOVE last_executed_at"
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"schedule_id": &types.AttributeValueMemberS{Value: scheduleID},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(schedule_id)"),
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	result, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("update schedule %s: %w", scheduleID, err)
	}

	var rec schedule.Schedule
	if err := attributevalue.UnmarshalMap(result.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal updated schedule: %w", err)
	}
	return &rec, nil
}

// SetEnabled flips the enabled flag.
func (s *ScheduleStore) SetEnabled(ctx context.Context, scheduleID string, enabled bool) (*schedule.Schedule, error) {
	return s.Update(ctx, scheduleID, UpdateScheduleInput{Enabled: &enabled})
}

// Delete removes a schedule.
func (s *ScheduleStore) Delete(ctx context.Context, scheduleID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"schedule_id": &types.AttributeValueMemberS{Value: scheduleID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete schedule %s: %w", scheduleID, err)
	}
	return nil
}

// CompleteOccurrence marks the given occurrence as fired in a single
// conditional write. The condition requires that the stored scheduled_time
// still equals the occurrence and that last_executed_at has not already
// been set to it, which closes the window where two overlapping executor
// runs both decide to fire the same occurrence.
func (s *ScheduleStore) CompleteOccurrence(ctx context.Context, scheduleID, occurrence, next string, disable bool) error {
	now := schedule.FormatUTC(time.Now())

	values := map[string]types.AttributeValue{
		":occ": &types.AttributeValueMemberS{Value: occurrence},
		":ua":  &types.AttributeValueMemberS{Value: now},
	}

	var expr string
	if disable {
		expr = "SET enabled = :disabled, last_executed_at = :occ, updated_at = :ua"
		values[":disabled"] = &types.AttributeValueMemberBOOL{Value: false}
	} else {
		expr = "SET #st = :next, last_executed_at = :occ, updated_at = :ua"
		values[":next"] = &types.AttributeValueMemberS{Value: next}
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"schedule_id": &types.AttributeValueMemberS{Value: scheduleID},
		},
		UpdateExpression: aws.String(expr),
		ConditionExpression: aws.String(
			"#st = :occ AND (attribute_not_exists(last_executed_at) OR last_executed_at <> :occ)"),
		ExpressionAttributeNames:  map[string]string{"#st": "scheduled_time"},
		ExpressionAttributeValues: values,
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("occurrence %s of schedule %s already recorded: %w", occurrence, scheduleID, err)
		}
		return fmt.Errorf("complete occurrence for schedule %s: %w", scheduleID, err)
	}
	return nil
}
