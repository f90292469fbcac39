package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type Dimension struct {
	Name  string
	Value string
}

func Dim(name, value string) Dimension {
	return Dimension{Name: name, Value: value}
}

type Datum struct {
	Name       string
	Value      float64
	Unit       types.StandardUnit
	Dimensions []Dimension
}

// Publisher writes custom metrics to one CloudWatch namespace. A nil client
// turns every call into a no-op. Failures are logged and swallowed unless
// Strict is set.
type Publisher struct {
	namespace string
	client    CloudWatchClient
	logger    *zap.Logger
	now       func() time.Time

	Strict bool
}

func NewPublisher(namespace string, client CloudWatchClient, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{namespace: namespace, client: client, logger: logger, now: time.Now}
}

func (p *Publisher) Namespace() string { return p.namespace }

func (p *Publisher) Put(ctx context.Context, name string, value float64, unit types.StandardUnit, dims ...Dimension) error {
	return p.PutData(ctx, Datum{Name: name, Value: value, Unit: unit, Dimensions: dims})
}

func (p *Publisher) PutData(ctx context.Context, data ...Datum) error {
	if p == nil || p.client == nil || len(data) == 0 {
		return nil
	}

	ts := p.now()
	md := make([]types.MetricDatum, 0, len(data))
	for _, d := range data {
		unit := d.Unit
		if unit == "" {
			unit = types.StandardUnitNone
		}
		dims := make([]types.Dimension, 0, len(d.Dimensions))
		for _, dm := range d.Dimensions {
			dims = append(dims, types.Dimension{Name: aws.String(dm.Name), Value: aws.String(dm.Value)})
		}
		md = append(md, types.MetricDatum{
			MetricName: aws.String(d.Name),
			Value:      aws.Float64(d.Value),
			Unit:       unit,
			Dimensions: dims,
			Timestamp:  aws.Time(ts),
		})
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: md,
	})
	if err != nil {
		p.logger.Warn("put metric data failed",
			zap.String("namespace", p.namespace),
			zap.Int("datums", len(md)),
			zap.Error(err),
		)
		if p.Strict {
			return fmt.Errorf("cloudwatch PutMetricData: %w", err)
		}
	}
	return nil
}
