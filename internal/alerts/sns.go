package alerts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type TopicAdmin interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
}

// SNS subjects are capped at 100 chars.
const maxSubject = 100

type Notifier struct {
	client   SNSClient
	topicArn string
}

// NewNotifier returns nil when topicArn is empty; a nil Notifier drops
// every message.
func NewNotifier(client SNSClient, topicArn string) *Notifier {
	topicArn = strings.TrimSpace(topicArn)
	if topicArn == "" {
		return nil
	}
	return &Notifier{client: client, topicArn: topicArn}
}

func (n *Notifier) Enabled() bool { return n != nil }

// Notify publishes one message and returns its SNS message id.
func (n *Notifier) Notify(ctx context.Context, subject, message string) (string, error) {
	if n == nil {
		return "", nil
	}
	subject = strings.TrimSpace(subject)
	if len(subject) > maxSubject {
		subject = subject[:maxSubject]
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func shortHash(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

// TopicName derives a stable SNS topic name for an alert channel.
func TopicName(project, stage, channel string) string {
	if stage == "" {
		stage = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", project, stage, shortHash(channel))
}

// EnsureEmailTopic creates (or reuses, CreateTopic is idempotent) the topic
// for a channel and subscribes email to it. The subscriber confirms once by
// email. Returns the topic ARN.
func EnsureEmailTopic(ctx context.Context, c TopicAdmin, project, stage, channel, email string) (string, error) {
	email = strings.TrimSpace(email)
	if strings.TrimSpace(channel) == "" {
		return "", fmt.Errorf("channel is required")
	}

	ct, err := c.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(TopicName(project, stage, channel)),
	})
	if err != nil {
		return "", fmt.Errorf("sns create topic: %w", err)
	}
	topicArn := aws.ToString(ct.TopicArn)

	if email == "" {
		return topicArn, nil
	}
	_, err = c.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicArn),
		Protocol: aws.String("email"),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return "", fmt.Errorf("sns subscribe %s: %w", email, err)
	}
	return topicArn, nil
}
