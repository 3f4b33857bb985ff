// Package notify publishes feed notifications to SNS. Subscribers filter
// on the email message attribute, so one topic serves all recipients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI defines the SNS operations the notifier uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EmailConfig is the JSON value of the EMAIL_NOTIFICATIONS setting.
type EmailConfig struct {
	Email   string `json:"email"`
	Enabled bool   `json:"enabled"`
}

// ParseEmailConfig decodes the EMAIL_NOTIFICATIONS setting value.
func ParseEmailConfig(value string) (*EmailConfig, error) {
	var cfg EmailConfig
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, fmt.Errorf("parse email config: %w", err)
	}
	return &cfg, nil
}

// Notifier publishes to one SNS topic.
type Notifier struct {
	client   SNSAPI
	topicARN string
}

// NewNotifier creates a notifier for the given topic.
func NewNotifier(client SNSAPI, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

// NewSNSClient builds an SNS client from the default AWS config chain.
func NewSNSClient(ctx context.Context) (*sns.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return sns.NewFromConfig(cfg), nil
}

// SendEmail publishes a notification addressed to one recipient. The
// recipient rides along as a message attribute for subscription filtering.
func (n *Notifier) SendEmail(ctx context.Context, recipient, subject, message string) error {
	result, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"email": {
				DataType:    aws.String("String"),
				StringValue: aws.String(recipient),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to SNS: %w", err)
	}

	log.Printf("Notification published to SNS for %s. MessageId: %s",
		recipient, aws.ToString(result.MessageId))
	return nil
}
