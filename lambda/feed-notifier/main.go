// The feed-notifier Lambda consumes the DynamoDB stream of the feed
// history table and emails users about terminal feed outcomes through SNS.
// Initiated feeds and consumption events pass through silently.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/whiskertech/petfeeder/pkg/config"
	"github.com/whiskertech/petfeeder/pkg/notify"
	"github.com/whiskertech/petfeeder/pkg/store"
)

var (
	settings *store.SettingsStore
	notifier *notify.Notifier
)

func init() {
	ctx := context.Background()
	cfg := config.FromEnv()

	if cfg.SNSTopicARN == "" {
		log.Printf("ERROR: Missing required environment variable: SNS_TOPIC_ARN")
	}

	dynamoClient, err := store.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create DynamoDB client: %v", err)
	}
	snsClient, err := notify.NewSNSClient(ctx)
	if err != nil {
		log.Fatalf("failed to create SNS client: %v", err)
	}

	settings = store.NewSettingsStore(dynamoClient, cfg.ConfigTable)
	notifier = notify.NewNotifier(snsClient, cfg.SNSTopicARN)
}

func handler(ctx context.Context, event events.DynamoDBEvent) error {
	emailCfg, err := emailConfig(ctx)
	if err != nil {
		log.Printf("Error fetching email config: %v", err)
		return nil
	}
	if emailCfg == nil || !emailCfg.Enabled || emailCfg.Email == "" {
		log.Printf("Email notifications not configured or disabled. Skipping.")
		return nil
	}

	for _, record := range event.Records {
		if record.EventName != "INSERT" && record.EventName != "MODIFY" {
			continue
		}

		newImage := record.Change.NewImage
		if newImage == nil {
			continue
		}

		status := stringAttr(newImage, "status")
		eventType := stringAttr(newImage, "event_type")
		feedID := stringAttr(newImage, "feed_id")

		log.Printf("Processing record: feed_id=%s, status=%s, event_type=%s", feedID, status, eventType)

		if !notify.ShouldNotify(eventType, status) {
			continue
		}

		outcome := notify.FeedOutcome{
			FeedID:      feedID,
			Mode:        stringAttr(newImage, "mode"),
			RequestedBy: stringAttr(newImage, "requested_by"),
			Timestamp:   stringAttr(newImage, "timestamp"),
		}

		subject := notify.SuccessSubject
		message := notify.SuccessMessage(outcome)
		if status == "failed" {
			subject = notify.FailureSubject
			message = notify.FailureMessage(outcome)
		}

		if err := notifier.SendEmail(ctx, emailCfg.Email, subject, message); err != nil {
			log.Printf("Error sending notification for feed %s: %v", feedID, err)
		}
	}

	return nil
}

func emailConfig(ctx context.Context) (*notify.EmailConfig, error) {
	setting, err := settings.Get(ctx, store.SettingEmailNotifications)
	if err != nil || setting == nil {
		return nil, err
	}
	return notify.ParseEmailConfig(setting.Value)
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	attr, ok := image[key]
	if !ok || attr.DataType() != events.DataTypeString {
		return ""
	}
	return attr.String()
}

func main() {
	lambda.Start(handler)
}
