package store

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/whiskertech/petfeeder/pkg/schedule"
)

// mockDynamoDB implements DynamoDBAPI with overridable func fields.
type mockDynamoDB struct {
	getItemFunc    func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	putItemFunc    func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	updateItemFunc func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	deleteItemFunc func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	scanFunc       func(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

func (m *mockDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.getItemFunc(ctx, params, optFns...)
}

func (m *mockDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.putItemFunc(ctx, params, optFns...)
}

func (m *mockDynamoDB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.updateItemFunc(ctx, params, optFns...)
}

func (m *mockDynamoDB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return m.deleteItemFunc(ctx, params, optFns...)
}

func (m *mockDynamoDB) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return m.scanFunc(ctx, params, optFns...)
}

func mustMarshal(t *testing.T, v interface{}) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		t.Fatal(err)
	}
	return item
}

func TestCreateConvertsToUTC(t *testing.T) {
	var stored map[string]types.AttributeValue
	mock := &mockDynamoDB{
		putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			stored = params.Item
			return &dynamodb.PutItemOutput{}, nil
		},
	}

	s := NewScheduleStore(mock, "feed_schedules")
	rec, err := s.Create(context.Background(), CreateScheduleInput{
		RequestedBy:   "alice",
		ScheduledTime: "2025-12-14T14:00:00",
		FeedCycles:    2,
		Recurrence:    schedule.RecurrenceDaily,
		Enabled:       true,
		Timezone:      "America/New_York",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if rec.ScheduledTime != "2025-12-14T19:00:00Z" {
		t.Errorf("scheduled_time = %q, want UTC conversion of 14:00 EST", rec.ScheduledTime)
	}
	if rec.ScheduleID == "" {
		t.Error("expected a generated schedule_id")
	}
	if rec.Timezone != "America/New_York" {
		t.Errorf("timezone = %q", rec.Timezone)
	}

	if stored == nil {
		t.Fatal("nothing written to DynamoDB")
	}
	var written schedule.Schedule
	if err := attributevalue.UnmarshalMap(stored, &written); err != nil {
		t.Fatal(err)
	}
	if written.ScheduledTime != rec.ScheduledTime {
		t.Errorf("stored scheduled_time = %q, want %q", written.ScheduledTime, rec.ScheduledTime)
	}
}

func TestCreateValidation(t *testing.T) {
	s := NewScheduleStore(&mockDynamoDB{}, "feed_schedules")

	tests := []struct {
		name  string
		input CreateScheduleInput
	}{
		{
			name:  "missing requested_by",
			input: CreateScheduleInput{ScheduledTime: "2025-12-14T14:00:00Z", FeedCycles: 2},
		},
		{
			name:  "feed_cycles too low",
			input: CreateScheduleInput{RequestedBy: "alice", ScheduledTime: "2025-12-14T14:00:00Z", FeedCycles: 0},
		},
		{
			name:  "feed_cycles too high",
			input: CreateScheduleInput{RequestedBy: "alice", ScheduledTime: "2025-12-14T14:00:00Z", FeedCycles: 11},
		},
		{
			name:  "bad recurrence",
			input: CreateScheduleInput{RequestedBy: "alice", ScheduledTime: "2025-12-14T14:00:00Z", FeedCycles: 2, Recurrence: "hourly"},
		},
		{
			name:  "bad timezone",
			input: CreateScheduleInput{RequestedBy: "alice", ScheduledTime: "2025-12-14T14:00:00", FeedCycles: 2, Timezone: "Nowhere/Land"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(context.Background(), tt.input); err == nil {
				t.Errorf("Create(%+v) expected error", tt.input)
			}
		})
	}
}

func TestGetNotFound(t *testing.T) {
	mock := &mockDynamoDB{
		getItemFunc: func(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	s := NewScheduleStore(mock, "feed_schedules")

	if _, err := s.Get(context.Background(), "missing"); err == nil {
		t.Error("expected error for a missing schedule")
	}
}

func TestListEnabledFollowsPagination(t *testing.T) {
	page1 := []schedule.Schedule{
		{ScheduleID: "a", ScheduledTime: "2025-12-14T14:00:00Z", Enabled: true},
		{ScheduleID: "b", ScheduledTime: "2025-12-14T15:00:00Z", Enabled: true},
	}
	page2 := []schedule.Schedule{
		{ScheduleID: "c", ScheduledTime: "2025-12-14T16:00:00Z", Enabled: true},
	}

	calls := 0
	mock := &mockDynamoDB{
		scanFunc: func(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
			calls++
			if params.FilterExpression == nil || *params.FilterExpression != "enabled = :enabled" {
				t.Errorf("unexpected filter expression: %v", params.FilterExpression)
			}
			switch calls {
			case 1:
				if params.ExclusiveStartKey != nil {
					t.Error("first scan must not carry a start key")
				}
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{
						mustMarshal(t, page1[0]),
						mustMarshal(t, page1[1]),
					},
					LastEvaluatedKey: map[string]types.AttributeValue{
						"schedule_id": &types.AttributeValueMemberS{Value: "b"},
					},
				}, nil
			case 2:
				if params.ExclusiveStartKey == nil {
					t.Error("second scan must carry the last evaluated key")
				}
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{mustMarshal(t, page2[0])},
				}, nil
			}
			t.Fatalf("unexpected scan call %d", calls)
			return nil, nil
		},
	}

	s := NewScheduleStore(mock, "feed_schedules")
	got, err := s.ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 schedules across pages, got %d", len(got))
	}
	if got[0].ScheduleID != "a" || got[2].ScheduleID != "c" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestUpdateTimeChangeRemovesGuard(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDB{
		getItemFunc: func(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{
				Item: mustMarshal(t, schedule.Schedule{
					ScheduleID: "sched-1",
					Timezone:   "America/New_York",
				}),
			}, nil
		},
		updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{
				Attributes: mustMarshal(t, schedule.Schedule{
					ScheduleID:    "sched-1",
					ScheduledTime: "2025-12-15T19:00:00Z",
				}),
			}, nil
		},
	}

	s := NewScheduleStore(mock, "feed_schedules")
	newTime := "2025-12-15T14:00:00"
	rec, err := s.Update(context.Background(), "sched-1", UpdateScheduleInput{ScheduledTime: &newTime})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if captured == nil {
		t.Fatal("no UpdateItem issued")
	}
	expr := *captured.UpdateExpression
	if !strings.Contains(expr, "REMOVE last_executed_at") {
		t.Errorf("time change must clear the execution guard, expression = %q", expr)
	}
	st, ok := captured.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS)
	if !ok || st.Value != "2025-12-15T19:00:00Z" {
		t.Errorf("new scheduled_time not converted in the stored timezone: %v", captured.ExpressionAttributeValues[":st"])
	}
	if rec.ScheduledTime != "2025-12-15T19:00:00Z" {
		t.Errorf("returned schedule = %+v", rec)
	}
}

func TestUpdateWithoutTimeKeepsGuard(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDB{
		updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{
				Attributes: mustMarshal(t, schedule.Schedule{ScheduleID: "sched-1", FeedCycles: 5}),
			}, nil
		},
	}

	s := NewScheduleStore(mock, "feed_schedules")
	cycles := 5
	if _, err := s.Update(context.Background(), "sched-1", UpdateScheduleInput{FeedCycles: &cycles}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if strings.Contains(*captured.UpdateExpression, "REMOVE") {
		t.Errorf("cycle-only update must not clear the guard: %q", *captured.UpdateExpression)
	}
	if captured.ConditionExpression == nil || *captured.ConditionExpression != "attribute_exists(schedule_id)" {
		t.Errorf("update must require an existing record: %v", captured.ConditionExpression)
	}
}

func TestUpdateRejectsBadValues(t *testing.T) {
	s := NewScheduleStore(&mockDynamoDB{}, "feed_schedules")

	badCycles := 0
	if _, err := s.Update(context.Background(), "sched-1", UpdateScheduleInput{FeedCycles: &badCycles}); err == nil {
		t.Error("expected error for out-of-range feed_cycles")
	}

	badRec := schedule.Recurrence("hourly")
	if _, err := s.Update(context.Background(), "sched-1", UpdateScheduleInput{Recurrence: &badRec}); err == nil {
		t.Error("expected error for unknown recurrence")
	}

	badTZ := "Nowhere/Land"
	if _, err := s.Update(context.Background(), "sched-1", UpdateScheduleInput{Timezone: &badTZ}); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestCompleteOccurrenceConditionalWrite(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDB{
		updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := NewScheduleStore(mock, "feed_schedules")

	err := s.CompleteOccurrence(context.Background(), "sched-1",
		"2025-12-14T14:30:00Z", "2025-12-15T14:30:00Z", false)
	if err != nil {
		t.Fatalf("CompleteOccurrence: %v", err)
	}

	cond := *captured.ConditionExpression
	if !strings.Contains(cond, "#st = :occ") || !strings.Contains(cond, "last_executed_at <> :occ") {
		t.Errorf("condition must fence both the occurrence and the guard: %q", cond)
	}
	expr := *captured.UpdateExpression
	if !strings.Contains(expr, "#st = :next") || !strings.Contains(expr, "last_executed_at = :occ") {
		t.Errorf("recurring completion must advance and set the guard: %q", expr)
	}
	next, _ := captured.ExpressionAttributeValues[":next"].(*types.AttributeValueMemberS)
	if next == nil || next.Value != "2025-12-15T14:30:00Z" {
		t.Errorf(":next value = %v", captured.ExpressionAttributeValues[":next"])
	}
}

func TestCompleteOccurrenceDisablesOneTime(t *testing.T) {
	var captured *dynamodb.UpdateItemInput
	mock := &mockDynamoDB{
		updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{}, nil
		},
	}
	s := NewScheduleStore(mock, "feed_schedules")

	if err := s.CompleteOccurrence(context.Background(), "once", "2025-12-14T14:30:00Z", "", true); err != nil {
		t.Fatalf("CompleteOccurrence: %v", err)
	}

	expr := *captured.UpdateExpression
	if !strings.Contains(expr, "enabled = :disabled") {
		t.Errorf("one-time completion must disable the schedule: %q", expr)
	}
	if strings.Contains(expr, ":next") {
		t.Errorf("one-time completion must not advance: %q", expr)
	}
	disabled, _ := captured.ExpressionAttributeValues[":disabled"].(*types.AttributeValueMemberBOOL)
	if disabled == nil || disabled.Value {
		t.Errorf(":disabled value = %v", captured.ExpressionAttributeValues[":disabled"])
	}
}

func TestCompleteOccurrenceLosesRace(t *testing.T) {
	mock := &mockDynamoDB{
		updateItemFunc: func(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}
	s := NewScheduleStore(mock, "feed_schedules")

	err := s.CompleteOccurrence(context.Background(), "sched-1", "2025-12-14T14:30:00Z", "", true)
	if err == nil {
		t.Fatal("expected error when the conditional write loses")
	}
	if !strings.Contains(err.Error(), "already recorded") {
		t.Errorf("race loss should be reported as already recorded: %v", err)
	}
}
