package cmd

import (
	"context"
	"fmt"

	"github.com/whiskertech/petfeeder/pkg/config"
	"github.com/whiskertech/petfeeder/pkg/device"
	"github.com/whiskertech/petfeeder/pkg/store"
)

// backend bundles the stores the CLI commands operate on.
type backend struct {
	cfg       *config.Config
	schedules *store.ScheduleStore
	history   *store.ExecutionHistoryStore
	events    *store.FeedEventStore
	status    *store.DeviceStatusStore
	settings  *store.SettingsStore
}

func newBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	client, err := store.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	return &backend{
		cfg:       cfg,
		schedules: store.NewScheduleStore(client, cfg.ScheduleTable),
		history:   store.NewExecutionHistoryStore(client, cfg.HistoryTable),
		events:    store.NewFeedEventStore(client, cfg.FeedEventsTable),
		status:    store.NewDeviceStatusStore(client, cfg.DeviceStatusTable),
		settings:  store.NewSettingsStore(client, cfg.ConfigTable),
	}, nil
}

// gateway builds the feed trigger gateway. The demo environment gets the
// simulated gateway and needs no IoT endpoint; everything else does.
func (b *backend) gateway(ctx context.Context) (*device.Gateway, error) {
	if b.cfg.Demo() {
		return device.NewSimulatedGateway(b.status, b.settings, b.events, b.cfg.IoTThingID), nil
	}

	if b.cfg.IoTEndpoint == "" {
		return nil, fmt.Errorf("IoT endpoint not configured (set IOT_ENDPOINT or iot_endpoint in ~/.petfeeder/config.yaml)")
	}

	iotClient, err := device.NewIoTClient(ctx, b.cfg.IoTEndpoint)
	if err != nil {
		return nil, err
	}

	return device.NewGateway(iotClient, b.status, b.settings, b.events,
		b.cfg.IoTFeedTopic, b.cfg.IoTConfigTopic, b.cfg.IoTThingID), nil
}
