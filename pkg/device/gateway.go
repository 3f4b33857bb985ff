// Package device implements the feed trigger gateway: the path between a
// feed request and the ESP32. It consults the weight-safety gate, publishes
// the MQTT feed command through AWS IoT Core, and records a feed event.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"

	"github.com/whiskertech/petfeeder/pkg/feed"
	"github.com/whiskertech/petfeeder/pkg/schedule"
	"github.com/whiskertech/petfeeder/pkg/store"
)

// DefaultWeightThresholdG is used when no WEIGHT_THRESHOLD_G setting is
// configured: if the bowl already holds this much food, feeds are denied.
const DefaultWeightThresholdG = 450.0

// IoTDataAPI defines the IoT data plane operations the gateway uses.
type IoTDataAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

// StatusReader reads the latest reported device status.
type StatusReader interface {
	Latest(ctx context.Context, thingID string) (*store.DeviceStatus, error)
}

// SettingReader reads config settings.
type SettingReader interface {
	Get(ctx context.Context, key string) (*store.Setting, error)
}

// EventRecorder records feed events.
type EventRecorder interface {
	PutEvent(ctx context.Context, evt feed.Event) error
}

// Gateway triggers feeds on the physical device.
type Gateway struct {
	iot         IoTDataAPI
	status      StatusReader
	settings    SettingReader
	events      EventRecorder
	topic       string
	configTopic string
	thingID     string
	simulate    bool
}

// NewGateway builds a gateway publishing feed commands to topic/thingID
// and config updates to configTopic.
func NewGateway(iot IoTDataAPI, status StatusReader, settings SettingReader, events EventRecorder, topic, configTopic, thingID string) *Gateway {
	return &Gateway{
		iot:         iot,
		status:      status,
		settings:    settings,
		events:      events,
		topic:       topic,
		configTopic: configTopic,
		thingID:     thingID,
	}
}

// NewSimulatedGateway builds a gateway for the demo environment: no IoT
// connection, feed requests short-circuit to a simulated outcome. The
// weight gate and feed history still apply so demo data looks real.
func NewSimulatedGateway(status StatusReader, settings SettingReader, events EventRecorder, thingID string) *Gateway {
	return &Gateway{
		status:   status,
		settings: settings,
		events:   events,
		thingID:  thingID,
		simulate: true,
	}
}

// NewIoTClient builds an IoT data plane client against the account's IoT
// endpoint (the ATS data endpoint, not the generic service endpoint).
func NewIoTClient(ctx context.Context, endpoint string) (*iotdataplane.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return iotdataplane.NewFromConfig(cfg, func(o *iotdataplane.Options) {
		o.BaseEndpoint = aws.String("https://" + endpoint)
	}), nil
}

// feedCommand is the MQTT payload the ESP32 firmware expects.
type feedCommand struct {
	Command     string `json:"command"`
	RequestedBy string `json:"requested_by"`
	Mode        string `json:"mode"`
	FeedCycles  int    `json:"feed_cycles"`
	Timestamp   string `json:"timestamp"`
}

// Trigger processes one feed request. The weight gate runs first: if the
// bowl weight already meets the configured threshold the request is denied
// without issuing any device command. Errors while checking the weight do
// not block the feed. A publish failure yields a failed result, not an
// error, so callers treat it uniformly with a denial.
func (g *Gateway) Trigger(ctx context.Context, req feed.Request) (*feed.Result, error) {
	result := &feed.Result{
		FeedID:      uuid.NewString(),
		RequestedBy: req.RequestedBy,
		Mode:        req.Mode,
		Timestamp:   schedule.FormatUTC(time.Now()),
		EventType:   req.Mode.EventType(),
	}

	if denied, weight, threshold := g.weightExceeded(ctx); denied {
		log.Printf("Feed denied: current weight (%.1fg) >= threshold (%.1fg)", weight, threshold)
		result.Status = feed.StatusDeniedWeightExceeded
		return result, nil
	}

	if g.simulate {
		log.Printf("Simulated feed: feed_id=%s mode=%s cycles=%d", result.FeedID, req.Mode, req.FeedCycles)
		result.Status = feed.StatusSimulated
		g.recordEvent(ctx, req, result)
		return result, nil
	}

	command := feedCommand{
		Command:     "FEED_NOW",
		RequestedBy: req.RequestedBy,
		Mode:        string(req.Mode),
		FeedCycles:  req.FeedCycles,
		Timestamp:   result.Timestamp,
	}
	payload, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal feed command: %w", err)
	}

	topic := g.topic + "/" + g.thingID
	_, err = g.iot.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		log.Printf("Failed to publish feed command to %s: %v", topic, err)
		result.Status = feed.StatusFailed
		g.recordEvent(ctx, req, result)
		return result, nil
	}

	log.Printf("Feed command sent to %s: feed_id=%s mode=%s cycles=%d",
		topic, result.FeedID, req.Mode, req.FeedCycles)
	result.Status = feed.StatusSent
	g.recordEvent(ctx, req, result)
	return result, nil
}

// configUpdate is the MQTT payload broadcast when a device-relevant
// setting changes.
type configUpdate struct {
	ConfigKey string `json:"config_key"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// PushConfig broadcasts a setting change to the device over the config
// topic so the firmware picks it up without polling.
func (g *Gateway) PushConfig(ctx context.Context, key, value string) error {
	if g.simulate {
		log.Printf("Simulated config push: %s=%s", key, value)
		return nil
	}

	payload, err := json.Marshal(configUpdate{
		ConfigKey: key,
		Value:     value,
		Timestamp: schedule.FormatUTC(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("marshal config update: %w", err)
	}

	_, err = g.iot.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(g.configTopic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publish config update to %s: %w", g.configTopic, err)
	}

	log.Printf("Config update sent to %s: %s=%s", g.configTopic, key, value)
	return nil
}

// weightExceeded consults the latest device status against the configured
// threshold. Any error on the way is logged and the feed proceeds; the
// gate only blocks on a positive reading.
func (g *Gateway) weightExceeded(ctx context.Context) (bool, float64, float64) {
	status, err := g.status.Latest(ctx, g.thingID)
	if err != nil {
		log.Printf("Error checking device status: %v. Proceeding with feed command.", err)
		return false, 0, 0
	}
	if status == nil {
		return false, 0, 0
	}

	threshold := DefaultWeightThresholdG
	setting, err := g.settings.Get(ctx, store.SettingWeightThreshold)
	if err != nil {
		log.Printf("Error fetching weight threshold: %v. Using default %.1fg.", err, threshold)
	} else if setting != nil {
		if v, err := strconv.ParseFloat(setting.Value, 64); err == nil {
			threshold = v
		}
	}

	return status.CurrentWeightG >= threshold, status.CurrentWeightG, threshold
}

// recordEvent writes the feed event; the feed-event-logger Lambda later
// moves initiated events to completed or failed when the device reports.
// Simulated feeds have no device to report, so they land terminal right
// away. Event logging is fire-and-forget.
func (g *Gateway) recordEvent(ctx context.Context, req feed.Request, result *feed.Result) {
	status := feed.StatusInitiated
	switch result.Status {
	case feed.StatusFailed:
		status = feed.StatusFailed
	case feed.StatusSimulated:
		status = feed.StatusCompleted
	}

	evt := feed.Event{
		FeedID:      result.FeedID,
		Timestamp:   result.Timestamp,
		Mode:        req.Mode,
		Status:      status,
		EventType:   result.EventType,
		RequestedBy: req.RequestedBy,
		FeedCycles:  req.FeedCycles,
		ScheduleID:  req.ScheduleID,
	}
	if err := g.events.PutEvent(ctx, evt); err != nil {
		log.Printf("Warning: failed to record feed event %s: %v", result.FeedID, err)
	}
}
