// The feed-event-logger Lambda receives feed event MQTT payloads through
// an IoT rule. The device announces a dispense as initiated and later
// reports completed or failed under the same feed_id; both land here, so
// one handler creates events and moves them to their terminal status. The
// terminal write is what the feed-notifier's stream subscription reacts to.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"github.com/whiskertech/petfeeder/pkg/config"
	"github.com/whiskertech/petfeeder/pkg/feed"
	"github.com/whiskertech/petfeeder/pkg/schedule"
	"github.com/whiskertech/petfeeder/pkg/store"
)

// EventPayload is the MQTT feed event message published by the ESP32.
// Field names match the firmware.
type EventPayload struct {
	FeedID        string  `json:"feed_id"`
	Mode          string  `json:"mode"`
	RequestedBy   string  `json:"requested_by"`
	Status        string  `json:"status"`
	EventType     string  `json:"event_type"`
	WeightBeforeG float64 `json:"weight_before_g"`
	WeightAfterG  float64 `json:"weight_after_g"`
}

// Response mirrors the API Gateway-style envelope the other Lambdas use.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

var events *store.FeedEventStore

func init() {
	ctx := context.Background()
	cfg := config.FromEnv()

	dynamoClient, err := store.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create DynamoDB client: %v", err)
	}

	events = store.NewFeedEventStore(dynamoClient, cfg.FeedEventsTable)
}

func handler(ctx context.Context, payload EventPayload) (Response, error) {
	log.Printf("Feed event received: feed_id=%s status=%s event_type=%s",
		payload.FeedID, payload.Status, payload.EventType)

	feedID := payload.FeedID
	if feedID == "" {
		log.Printf("No feed_id in payload, generating one")
		feedID = uuid.NewString()
	}

	mode := payload.Mode
	if mode == "" {
		mode = "unknown"
	}
	requestedBy := payload.RequestedBy
	if requestedBy == "" {
		requestedBy = "unknown"
	}
	eventType := payload.EventType
	if eventType == "" {
		eventType = "manual_feed"
	}

	evt := feed.Event{
		FeedID:        feedID,
		Timestamp:     schedule.FormatUTC(time.Now()),
		Mode:          feed.Mode(mode),
		Status:        feed.Status(payload.Status),
		EventType:     eventType,
		RequestedBy:   requestedBy,
		WeightBeforeG: payload.WeightBeforeG,
		WeightAfterG:  payload.WeightAfterG,
	}

	var err error
	switch evt.Status {
	case feed.StatusCompleted, feed.StatusFailed:
		err = events.RecordOutcome(ctx, evt)
	default:
		err = events.PutEventIfAbsent(ctx, evt)
	}
	if err != nil {
		log.Printf("Error logging feed event %s: %v", feedID, err)
		return Response{
			StatusCode: 500,
			Body:       fmt.Sprintf("feed event logger error: %v", err),
		}, nil
	}

	body, _ := json.Marshal(map[string]string{"feed_id": feedID, "status": string(evt.Status)})
	return Response{StatusCode: 200, Body: string(body)}, nil
}

func main() {
	lambda.Start(handler)
}
