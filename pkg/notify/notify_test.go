package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type mockSNS struct {
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	published   []*sns.PublishInput
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, params)
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSendEmail(t *testing.T) {
	mock := &mockSNS{}
	n := NewNotifier(mock, "arn:aws:sns:us-east-1:123456789012:feed-notifications")

	err := n.SendEmail(context.Background(), "owner@example.com", SuccessSubject, "body")
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}

	if len(mock.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(mock.published))
	}
	pub := mock.published[0]
	if aws.ToString(pub.TopicArn) != "arn:aws:sns:us-east-1:123456789012:feed-notifications" {
		t.Errorf("topic = %q", aws.ToString(pub.TopicArn))
	}
	if aws.ToString(pub.Subject) != SuccessSubject {
		t.Errorf("subject = %q", aws.ToString(pub.Subject))
	}
	attr, ok := pub.MessageAttributes["email"]
	if !ok {
		t.Fatal("missing email message attribute")
	}
	if aws.ToString(attr.StringValue) != "owner@example.com" {
		t.Errorf("email attribute = %q", aws.ToString(attr.StringValue))
	}
}

func TestSendEmailPublishError(t *testing.T) {
	mock := &mockSNS{
		publishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("topic gone")
		},
	}
	n := NewNotifier(mock, "arn:aws:sns:us-east-1:123456789012:feed-notifications")

	if err := n.SendEmail(context.Background(), "owner@example.com", FailureSubject, "body"); err == nil {
		t.Error("expected publish error to propagate")
	}
}

func TestParseEmailConfig(t *testing.T) {
	cfg, err := ParseEmailConfig(`{"email":"owner@example.com","enabled":true}`)
	if err != nil {
		t.Fatalf("ParseEmailConfig: %v", err)
	}
	if cfg.Email != "owner@example.com" || !cfg.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := ParseEmailConfig("not json"); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		eventType string
		status    string
		want      bool
	}{
		{"manual_feed", "completed", true},
		{"scheduled_feed", "completed", true},
		{"manual_feed", "failed", true},
		{"scheduled_feed", "failed", true},
		{"manual_feed", "initiated", false},
		{"manual_feed", "sent", false},
		{"consumption", "completed", false},
		{"consumption", "failed", false},
	}

	for _, tt := range tests {
		if got := ShouldNotify(tt.eventType, tt.status); got != tt.want {
			t.Errorf("ShouldNotify(%q, %q) = %v, want %v", tt.eventType, tt.status, got, tt.want)
		}
	}
}

func TestMessageBodies(t *testing.T) {
	o := FeedOutcome{FeedID: "feed-1", Mode: "manual", RequestedBy: "alice", Timestamp: "2025-12-14T15:00:00Z"}

	success := SuccessMessage(o)
	for _, want := range []string{"feed-1", "manual", "alice", "2025-12-14T15:00:00Z", "successfully dispensed"} {
		if !strings.Contains(success, want) {
			t.Errorf("success body missing %q:\n%s", want, success)
		}
	}

	failure := FailureMessage(o)
	if !strings.Contains(failure, "WARNING") || !strings.Contains(failure, "check your device") {
		t.Errorf("failure body missing warning text:\n%s", failure)
	}
}
