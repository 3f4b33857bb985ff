// The schedule-executor Lambda is invoked by an EventBridge rule on a
// ~60 second interval. Each invocation runs one pass of the schedule
// execution engine: scan enabled schedules, fire the ones that are due,
// advance or disable them, and append execution history.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/whiskertech/petfeeder/pkg/config"
	"github.com/whiskertech/petfeeder/pkg/device"
	"github.com/whiskertech/petfeeder/pkg/executor"
	"github.com/whiskertech/petfeeder/pkg/store"
)

// Response mirrors the API Gateway-style envelope the run summary is
// reported in.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

var exec *executor.Executor

func init() {
	ctx := context.Background()
	cfg := config.FromEnv()

	if cfg.IoTEndpoint == "" && !cfg.Demo() {
		log.Printf("ERROR: Missing required environment variable: IOT_ENDPOINT")
	}

	dynamoClient, err := store.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create DynamoDB client: %v", err)
	}

	schedules := store.NewScheduleStore(dynamoClient, cfg.ScheduleTable)
	history := store.NewExecutionHistoryStore(dynamoClient, cfg.HistoryTable)
	deviceStatus := store.NewDeviceStatusStore(dynamoClient, cfg.DeviceStatusTable)
	settings := store.NewSettingsStore(dynamoClient, cfg.ConfigTable)
	feedEvents := store.NewFeedEventStore(dynamoClient, cfg.FeedEventsTable)

	var gateway *device.Gateway
	if cfg.Demo() {
		gateway = device.NewSimulatedGateway(deviceStatus, settings, feedEvents, cfg.IoTThingID)
		log.Printf("Demo environment: feeds are simulated")
	} else {
		iotClient, err := device.NewIoTClient(ctx, cfg.IoTEndpoint)
		if err != nil {
			log.Fatalf("failed to create IoT client: %v", err)
		}
		gateway = device.NewGateway(iotClient, deviceStatus, settings, feedEvents,
			cfg.IoTFeedTopic, cfg.IoTConfigTopic, cfg.IoTThingID)
	}

	exec = executor.New(schedules, history, gateway, executor.Config{
		ToleranceMinutes:  cfg.ToleranceMinutes,
		MaxOverdueMinutes: cfg.MaxOverdueMinutes,
	})

	log.Printf("Configuration: schedules_table=%s, history_table=%s, topic=%s, max_overdue=%dm",
		cfg.ScheduleTable, cfg.HistoryTable, cfg.IoTFeedTopic, cfg.MaxOverdueMinutes)
}

// handler ignores the trigger payload; everything the run needs lives in
// the schedule table.
func handler(ctx context.Context, event json.RawMessage) (Response, error) {
	log.Printf("Event: %s", string(event))

	summary, err := exec.Run(ctx)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return Response{
			StatusCode: 500,
			Body:       fmt.Sprintf("schedule executor error: %v", err),
		}, nil
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return Response{StatusCode: 500, Body: fmt.Sprintf("marshal summary: %v", err)}, nil
	}

	return Response{StatusCode: 200, Body: string(body)}, nil
}

func main() {
	lambda.Start(handler)
}
