package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/whiskertech/petfeeder/pkg/schedule"
)

// Well-known config setting keys.
const (
	SettingWeightThreshold    = "WEIGHT_THRESHOLD_G"
	SettingEmailNotifications = "EMAIL_NOTIFICATIONS"
)

// Setting is one row of the config settings table. Value holds either a
// scalar or a JSON document, depending on the key.
type Setting struct {
	ConfigKey string `json:"config_key" dynamodbav:"config_key"`
	Value     string `json:"value" dynamodbav:"value"`
	UpdatedAt string `json:"updated_at,omitempty" dynamodbav:"updated_at,omitempty"`
}

// SettingsStore manages application config settings.
type SettingsStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewSettingsStore creates a settings store over the given table.
func NewSettingsStore(client DynamoDBAPI, tableName string) *SettingsStore {
	return &SettingsStore{client: client, tableName: tableName}
}

// Get returns the setting for a key, or nil when unset.
func (s *SettingsStore) Get(ctx context.Context, key string) (*Setting, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"config_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var setting Setting
	if err := attributevalue.UnmarshalMap(result.Item, &setting); err != nil {
		return nil, fmt.Errorf("unmarshal setting %s: %w", key, err)
	}
	return &setting, nil
}

// Put upserts a setting.
func (s *SettingsStore) Put(ctx context.Context, key, value string) error {
	setting := Setting{
		ConfigKey: key,
		Value:     value,
		UpdatedAt: schedule.FormatUTC(time.Now()),
	}

	item, err := attributevalue.MarshalMap(setting)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}
