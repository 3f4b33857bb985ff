// Package config loads feeder configuration. Lambda entrypoints read plain
// environment variables; the CLI layers environment over a YAML config file
// over SSM Parameter Store over defaults, the same precedence everywhere.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"

	"github.com/whiskertech/petfeeder/pkg/schedule"
)

const (
	defaultScheduleTable     = "feed_schedules"
	defaultHistoryTable      = "schedule_execution_history"
	defaultFeedEventsTable   = "feed_history"
	defaultDeviceStatusTable = "device_status"
	defaultConfigTable       = "feeder_config"
	defaultFeedTopic         = "petfeeder/commands"
	defaultConfigTopic       = "petfeeder/config"

	// SSM parameter paths for device connectivity.
	ssmIoTEndpointPath = "/petfeeder/iot/endpoint"
	ssmIoTTopicPath    = "/petfeeder/iot/topic_feed"

	configFileName = ".petfeeder/config.yaml"
)

// Config holds everything the executor, gateway, and CLI need.
type Config struct {
	Environment string `yaml:"environment"`

	ScheduleTable     string `yaml:"schedule_table"`
	HistoryTable      string `yaml:"history_table"`
	FeedEventsTable   string `yaml:"feed_events_table"`
	DeviceStatusTable string `yaml:"device_status_table"`
	ConfigTable       string `yaml:"config_table"`

	IoTEndpoint    string `yaml:"iot_endpoint"`
	IoTFeedTopic   string `yaml:"iot_feed_topic"`
	IoTConfigTopic string `yaml:"iot_config_topic"`
	IoTThingID     string `yaml:"iot_thing_id"`

	SNSTopicARN string `yaml:"sns_topic_arn"`

	ToleranceMinutes  int `yaml:"tolerance_minutes"`
	MaxOverdueMinutes int `yaml:"max_overdue_minutes"`
}

// Demo reports whether the backend runs against the simulated demo
// feeder instead of real hardware.
func (c *Config) Demo() bool {
	return strings.EqualFold(c.Environment, "demo")
}

// FromEnv builds a config from environment variables with defaults. This is
// the whole story for the Lambdas, whose environment is set by the
// deployment.
func FromEnv() *Config {
	return &Config{
		Environment:       getEnv("ENVIRONMENT", "prd"),
		ScheduleTable:     getEnv("DYNAMO_FEED_SCHEDULE_TABLE", defaultScheduleTable),
		HistoryTable:      getEnv("SCHEDULE_EXECUTION_HISTORY_TABLE", defaultHistoryTable),
		FeedEventsTable:   getEnv("DYNAMO_FEED_HISTORY_TABLE", defaultFeedEventsTable),
		DeviceStatusTable: getEnv("DEVICE_STATUS_TABLE_NAME", defaultDeviceStatusTable),
		ConfigTable:       getEnv("DYNAMO_CONFIG_TABLE", defaultConfigTable),
		IoTEndpoint:       os.Getenv("IOT_ENDPOINT"),
		IoTFeedTopic:      getEnv("IOT_TOPIC_FEED", defaultFeedTopic),
		IoTConfigTopic:    getEnv("IOT_CONFIG_TOPIC", defaultConfigTopic),
		IoTThingID:        os.Getenv("IOT_THING_ID"),
		SNSTopicARN:       os.Getenv("SNS_TOPIC_ARN"),
		ToleranceMinutes:  getEnvInt("TOLERANCE_MINUTES", schedule.DefaultToleranceMinutes),
		MaxOverdueMinutes: getEnvInt("MAX_OVERDUE_MINUTES", schedule.DefaultMaxOverdueMinutes),
	}
}

// Load builds the CLI configuration with precedence:
// 1. Environment variables
// 2. Config file (~/.petfeeder/config.yaml)
// 3. SSM Parameter Store (device connectivity only)
// 4. Defaults
func Load(ctx context.Context) (*Config, error) {
	cfg := FromEnv()

	if fileCfg, err := loadFromFile(); err == nil && fileCfg != nil {
		applyFile(cfg, fileCfg)
	}

	if cfg.IoTEndpoint == "" {
		if endpoint, topic, err := loadFromSSM(ctx); err == nil {
			if cfg.IoTEndpoint == "" {
				cfg.IoTEndpoint = endpoint
			}
			if topic != "" && cfg.IoTFeedTopic == defaultFeedTopic {
				cfg.IoTFeedTopic = topic
			}
		}
	}

	return cfg, nil
}

// applyFile fills in anything the environment left at its default.
func applyFile(cfg, fileCfg *Config) {
	setIfDefault := func(dst *string, def, val string) {
		if *dst == def && val != "" {
			*dst = val
		}
	}
	setIfDefault(&cfg.ScheduleTable, defaultScheduleTable, fileCfg.ScheduleTable)
	setIfDefault(&cfg.HistoryTable, defaultHistoryTable, fileCfg.HistoryTable)
	setIfDefault(&cfg.FeedEventsTable, defaultFeedEventsTable, fileCfg.FeedEventsTable)
	setIfDefault(&cfg.DeviceStatusTable, defaultDeviceStatusTable, fileCfg.DeviceStatusTable)
	setIfDefault(&cfg.ConfigTable, defaultConfigTable, fileCfg.ConfigTable)
	setIfDefault(&cfg.IoTFeedTopic, defaultFeedTopic, fileCfg.IoTFeedTopic)
	setIfDefault(&cfg.IoTConfigTopic, defaultConfigTopic, fileCfg.IoTConfigTopic)
	setIfDefault(&cfg.IoTEndpoint, "", fileCfg.IoTEndpoint)
	setIfDefault(&cfg.IoTThingID, "", fileCfg.IoTThingID)
	setIfDefault(&cfg.SNSTopicARN, "", fileCfg.SNSTopicARN)
	if fileCfg.MaxOverdueMinutes > 0 && cfg.MaxOverdueMinutes == schedule.DefaultMaxOverdueMinutes {
		cfg.MaxOverdueMinutes = fileCfg.MaxOverdueMinutes
	}
	if fileCfg.ToleranceMinutes > 0 && cfg.ToleranceMinutes == schedule.DefaultToleranceMinutes {
		cfg.ToleranceMinutes = fileCfg.ToleranceMinutes
	}
}

// loadFromFile reads ~/.petfeeder/config.yaml, if present.
func loadFromFile() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(homeDir, configFileName))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFromSSM reads the device connectivity parameters, shared across
// machines without per-machine config files.
func loadFromSSM(ctx context.Context) (endpoint, topic string, err error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", "", err
	}
	client := ssm.NewFromConfig(awsCfg)

	if out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: strPtr(ssmIoTEndpointPath)}); err == nil {
		if out.Parameter != nil && out.Parameter.Value != nil {
			endpoint = *out.Parameter.Value
		}
	}
	if out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: strPtr(ssmIoTTopicPath)}); err == nil {
		if out.Parameter != nil && out.Parameter.Value != nil {
			topic = *out.Parameter.Value
		}
	}

	return endpoint, topic, nil
}

func strPtr(s string) *string { return &s }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
