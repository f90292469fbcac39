package alerts

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	published  []*sns.PublishInput
	created    []*sns.CreateTopicInput
	subscribed []*sns.SubscribeInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, in)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSNS) CreateTopic(_ context.Context, in *sns.CreateTopicInput, _ ...func(*sns.Options)) (*sns.CreateTopicOutput, error) {
	f.created = append(f.created, in)
	return &sns.CreateTopicOutput{TopicArn: aws.String("arn:aws:sns:us-east-1:123:" + aws.ToString(in.Name))}, nil
}

func (f *fakeSNS) Subscribe(_ context.Context, in *sns.SubscribeInput, _ ...func(*sns.Options)) (*sns.SubscribeOutput, error) {
	f.subscribed = append(f.subscribed, in)
	return &sns.SubscribeOutput{}, nil
}

func TestNilNotifierDrops(t *testing.T) {
	n := NewNotifier(&fakeSNS{}, "  ")
	assert.Nil(t, n)
	assert.False(t, n.Enabled())
	id, err := n.Notify(context.Background(), "s", "m")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestNotifyTruncatesSubject(t *testing.T) {
	f := &fakeSNS{}
	n := NewNotifier(f, "arn:topic")
	id, err := n.Notify(context.Background(), strings.Repeat("x", 150), "body")
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)
	require.Len(t, f.published, 1)
	assert.Len(t, aws.ToString(f.published[0].Subject), 100)
	assert.Equal(t, "arn:topic", aws.ToString(f.published[0].TopicArn))
}

func TestEnsureEmailTopic(t *testing.T) {
	f := &fakeSNS{}
	arn, err := EnsureEmailTopic(context.Background(), f, "genaiops", "", "quality-report", "ops@example.com")
	require.NoError(t, err)
	assert.Contains(t, arn, "genaiops-dev-")
	require.Len(t, f.subscribed, 1)
	assert.Equal(t, "email", aws.ToString(f.subscribed[0].Protocol))

	// stable naming
	assert.Equal(t, TopicName("p", "prod", "c"), TopicName("p", "prod", "c"))
	assert.NotEqual(t, TopicName("p", "prod", "c"), TopicName("p", "prod", "d"))
}
