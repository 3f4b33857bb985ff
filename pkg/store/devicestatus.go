package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DeviceStatus is the most recent state reported by the feeder over MQTT,
// written by the status updater and read by the weight-safety gate.
type DeviceStatus struct {
	ThingID        string  `json:"thing_id" dynamodbav:"thingId"`
	Status         string  `json:"status" dynamodbav:"status"`
	NetworkStatus  string  `json:"network_status" dynamodbav:"network_status"`
	Message        string  `json:"message" dynamodbav:"message"`
	TriggerMethod  string  `json:"trigger_method" dynamodbav:"trigger_method"`
	CurrentWeightG float64 `json:"current_weight_g" dynamodbav:"current_weight_g"`
	LastUpdated    string  `json:"last_updated" dynamodbav:"lastUpdated"`
}

// DeviceStatusStore manages the per-thing device status table.
type DeviceStatusStore struct {
	client    DynamoDBAPI
	tableName string
}

// NewDeviceStatusStore creates a device status store over the given table.
func NewDeviceStatusStore(client DynamoDBAPI, tableName string) *DeviceStatusStore {
	return &DeviceStatusStore{client: client, tableName: tableName}
}

// Put overwrites the status for a thing.
func (d *DeviceStatusStore) Put(ctx context.Context, status DeviceStatus) error {
	item, err := attributevalue.MarshalMap(status)
	if err != nil {
		return fmt.Errorf("marshal device status: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put device status: %w", err)
	}
	return nil
}

// Latest returns the current status for a thing, or nil when the device
// has never reported.
func (d *DeviceStatusStore) Latest(ctx context.Context, thingID string) (*DeviceStatus, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"thingId": &types.AttributeValueMemberS{Value: thingID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get device status: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var status DeviceStatus
	if err := attributevalue.UnmarshalMap(result.Item, &status); err != nil {
		return nil, fmt.Errorf("unmarshal device status: %w", err)
	}
	return &status, nil
}
