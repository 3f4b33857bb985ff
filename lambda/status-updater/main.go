// The status-updater Lambda receives device status MQTT payloads through
// an IoT rule and persists them to the device status table, where the
// weight-safety gate and the dashboard read them.
package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/whiskertech/petfeeder/pkg/config"
	"github.com/whiskertech/petfeeder/pkg/schedule"
	"github.com/whiskertech/petfeeder/pkg/store"
)

// StatusPayload is the MQTT status message published by the ESP32. Field
// names match the firmware.
type StatusPayload struct {
	FeederState    string  `json:"feeder_state"`
	NetworkStatus  string  `json:"network_status"`
	Message        string  `json:"message"`
	TriggerMethod  string  `json:"trigger_method"`
	CurrentWeightG float64 `json:"current_weight_g"`
}

var (
	statusStore *store.DeviceStatusStore
	thingID     string
)

func init() {
	ctx := context.Background()
	cfg := config.FromEnv()

	if cfg.IoTThingID == "" {
		log.Printf("ERROR: Missing required environment variable: IOT_THING_ID")
	}

	dynamoClient, err := store.NewClient(ctx)
	if err != nil {
		log.Fatalf("failed to create DynamoDB client: %v", err)
	}

	statusStore = store.NewDeviceStatusStore(dynamoClient, cfg.DeviceStatusTable)
	thingID = cfg.IoTThingID
}

func handler(ctx context.Context, payload StatusPayload) error {
	state := payload.FeederState
	if state == "" {
		state = "unknown"
	}
	network := payload.NetworkStatus
	if network == "" {
		network = "unknown"
	}

	status := store.DeviceStatus{
		ThingID:        thingID,
		Status:         state,
		NetworkStatus:  network,
		Message:        payload.Message,
		TriggerMethod:  payload.TriggerMethod,
		CurrentWeightG: payload.CurrentWeightG,
		LastUpdated:    schedule.FormatUTC(time.Now()),
	}

	if err := statusStore.Put(ctx, status); err != nil {
		log.Printf("Error updating device status: %v", err)
		return err
	}

	log.Printf("Successfully updated status for %s: %s", thingID, state)
	return nil
}

func main() {
	lambda.Start(handler)
}
