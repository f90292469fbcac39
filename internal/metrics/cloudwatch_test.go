package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCW struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCW) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestPutBuildsDatum(t *testing.T) {
	cw := &fakeCW{}
	p := NewPublisher("CustomerFeedback/TextQuality", cw, zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	require.NoError(t, p.Put(context.Background(), "QualityScore", 0.8, "", Dim("Source", "TextReviews")))
	require.Len(t, cw.inputs, 1)

	in := cw.inputs[0]
	assert.Equal(t, "CustomerFeedback/TextQuality", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 1)
	d := in.MetricData[0]
	assert.Equal(t, "QualityScore", aws.ToString(d.MetricName))
	assert.Equal(t, 0.8, aws.ToFloat64(d.Value))
	assert.Equal(t, types.StandardUnitNone, d.Unit)
	assert.Equal(t, fixed, aws.ToTime(d.Timestamp))
	require.Len(t, d.Dimensions, 1)
	assert.Equal(t, "Source", aws.ToString(d.Dimensions[0].Name))
	assert.Equal(t, "TextReviews", aws.ToString(d.Dimensions[0].Value))
}

func TestPutSwallowsErrorsUnlessStrict(t *testing.T) {
	cw := &fakeCW{err: errors.New("throttled")}
	p := NewPublisher("ns", cw, nil)

	assert.NoError(t, p.Put(context.Background(), "M", 1, types.StandardUnitCount))

	p.Strict = true
	err := p.Put(context.Background(), "M", 1, types.StandardUnitCount)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNilClientIsNoop(t *testing.T) {
	p := NewPublisher("ns", nil, nil)
	assert.NoError(t, p.Put(context.Background(), "M", 1, types.StandardUnitCount))

	var nilPub *Publisher
	assert.NoError(t, nilPub.PutData(context.Background(), Datum{Name: "M"}))
}
