package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/metrics"
	"genaiops/internal/objstore"
	"genaiops/internal/textquality"
)

// TextValidator scores raw text reviews and stores the result next to
// them under validation-results/.
type TextValidator struct {
	store   *objstore.Store
	scorer  *textquality.Scorer
	metrics *metrics.Publisher
	records *db.Records
	source  string
	claim   claimFunc
	logger  *zap.Logger
}

func NewTextValidator(cfg aws.Config, c Config, logger *zap.Logger) (*TextValidator, error) {
	scorer, err := textquality.NewScorer(c.Patterns)
	if err != nil {
		return nil, err
	}
	ddb := dynamodb.NewFromConfig(cfg)
	return &TextValidator{
		store:   objstore.New(s3.NewFromConfig(cfg)),
		scorer:  scorer,
		metrics: metrics.NewPublisher(c.CloudWatchNamespace, cloudwatch.NewFromConfig(cfg), logger),
		records: db.NewRecords(ddb, c.ProcessingTable),
		source:  c.MetricSource,
		claim:   dedupeClaim(ddb, c.DedupeTable, "validate-text"),
		logger:  logger,
	}, nil
}

func (h *TextValidator) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.validate), nil
}

func (h *TextValidator) validate(ctx context.Context, ref ObjectRef) Response {
	if !IsTextReview(ref.Key) {
		return ok("Not a text review file")
	}

	text, err := h.loadReviewText(ctx, ref.Bucket, ref.Key)
	if err != nil {
		h.logger.Error("load review failed", zap.String("key", ref.Key), zap.Error(err))
		return failed(err)
	}

	res := h.scorer.Score(ref.Key, text)

	if err := h.metrics.Put(ctx, "QualityScore", res.QualityScore, cwtypes.StandardUnitNone,
		metrics.Dim("Source", h.source)); err != nil {
		return failed(err)
	}

	vkey := ValidationKey(ref.Key)
	if err := h.store.PutJSON(ctx, ref.Bucket, vkey, res); err != nil {
		h.logger.Error("store validation result failed", zap.String("key", vkey), zap.Error(err))
		return failed(err)
	}

	if err := h.records.Put(ctx, db.Record{
		Kind:         db.KindValidation,
		Bucket:       ref.Bucket,
		SourceKey:    ref.Key,
		ResultKey:    vkey,
		Source:       h.source,
		QualityScore: res.QualityScore,
		ChecksPassed: res.Checks.Passed(),
		ChecksTotal:  res.Checks.Total(),
		Status:       "validated",
	}); err != nil {
		// the S3 result is the source of truth; the record only feeds analytics
		h.logger.Warn("processing record write failed", zap.String("key", ref.Key), zap.Error(err))
	}

	h.logger.Info("review validated",
		zap.String("key", ref.Key),
		zap.Float64("quality_score", res.QualityScore),
		zap.Int("checks_passed", res.Checks.Passed()),
	)
	return ok(res)
}

type rawReview struct {
	ReviewText string `json:"review_text"`
	ProductID  string `json:"product_id"`
	CustomerID string `json:"customer_id"`
	ReviewDate string `json:"review_date"`
	Rating     any    `json:"rating,omitempty"`
}

func (h *TextValidator) loadReviewText(ctx context.Context, bucket, key string) (string, error) {
	b, err := h.store.GetBytes(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(key, ".json") {
		return string(b), nil
	}
	var r rawReview
	if err := json.Unmarshal(b, &r); err != nil {
		return "", fmt.Errorf("decode review %s: %w", key, err)
	}
	return r.ReviewText, nil
}
