package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/nlp"
	"genaiops/internal/objstore"
	"genaiops/internal/textquality"
)

type ReviewMetadata struct {
	ProductID  string `json:"product_id"`
	CustomerID string `json:"customer_id"`
	ReviewDate string `json:"review_date"`
}

type EnrichedReview struct {
	OriginalText    string              `json:"original_text"`
	Entities        []nlp.Entity        `json:"entities"`
	Sentiment       string              `json:"sentiment"`
	SentimentScores nlp.SentimentScores `json:"sentiment_scores"`
	KeyPhrases      []nlp.KeyPhrase     `json:"key_phrases"`
	Metadata        ReviewMetadata      `json:"metadata"`
}

// ReviewEnricher runs Comprehend over reviews whose validation score clears
// the threshold.
type ReviewEnricher struct {
	store     *objstore.Store
	nlp       *nlp.Analyzer
	records   *db.Records
	threshold float64
	claim     claimFunc
	logger    *zap.Logger
}

func NewReviewEnricher(cfg aws.Config, c Config, logger *zap.Logger) *ReviewEnricher {
	ddb := dynamodb.NewFromConfig(cfg)
	return &ReviewEnricher{
		store:     objstore.New(s3.NewFromConfig(cfg)),
		nlp:       nlp.NewAnalyzer(comprehend.NewFromConfig(cfg)),
		records:   db.NewRecords(ddb, c.ProcessingTable),
		threshold: c.QualityThreshold,
		claim:     dedupeClaim(ddb, c.DedupeTable, "enrich-review"),
		logger:    logger,
	}
}

func (h *ReviewEnricher) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.enrich), nil
}

func (h *ReviewEnricher) enrich(ctx context.Context, ref ObjectRef) Response {
	if !IsValidationResult(ref.Key) {
		return ok("Not a validated review file")
	}

	var vr textquality.Result
	if err := h.store.GetJSON(ctx, ref.Bucket, ref.Key, &vr); err != nil {
		return h.fail(ref, err)
	}
	if vr.QualityScore < h.threshold {
		h.logger.Info("quality score too low",
			zap.String("key", ref.Key),
			zap.Float64("quality_score", vr.QualityScore),
			zap.Float64("threshold", h.threshold),
		)
		return ok("Quality score too low")
	}

	review, err := h.loadOriginal(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return h.fail(ref, err)
	}
	text := review.ReviewText

	ents, err := h.nlp.Entities(ctx, text)
	if err != nil {
		return h.fail(ref, err)
	}
	sent, err := h.nlp.Sentiment(ctx, text)
	if err != nil {
		return h.fail(ref, err)
	}
	kps, err := h.nlp.KeyPhrases(ctx, text)
	if err != nil {
		return h.fail(ref, err)
	}

	out := EnrichedReview{
		OriginalText:    text,
		Entities:        ents,
		Sentiment:       sent.Label,
		SentimentScores: sent.Scores,
		KeyPhrases:      kps,
		Metadata: ReviewMetadata{
			ProductID:  review.ProductID,
			CustomerID: review.CustomerID,
			ReviewDate: review.ReviewDate,
		},
	}

	pkey := EnrichedKey(ref.Key)
	if err := h.store.PutJSON(ctx, ref.Bucket, pkey, out); err != nil {
		return h.fail(ref, err)
	}
	if err := h.records.Put(ctx, db.Record{
		Kind:         db.KindEnrichment,
		Bucket:       ref.Bucket,
		SourceKey:    ref.Key,
		ResultKey:    pkey,
		QualityScore: vr.QualityScore,
		Status:       strings.ToLower(sent.Label),
	}); err != nil {
		h.logger.Warn("processing record write failed", zap.String("key", ref.Key), zap.Error(err))
	}

	h.logger.Info("review enriched", zap.String("key", pkey), zap.String("sentiment", sent.Label))
	return ok("Successfully processed review")
}

func (h *ReviewEnricher) fail(ref ObjectRef, err error) Response {
	h.logger.Error("enrich review failed", zap.String("key", ref.Key), zap.Error(err))
	return failed(err)
}

// loadOriginal finds the raw review for a validation result. Plain text
// reviews carry no metadata.
func (h *ReviewEnricher) loadOriginal(ctx context.Context, bucket, validationKey string) (rawReview, error) {
	var lastErr error
	for _, k := range OriginalKeys(validationKey) {
		b, err := h.store.GetBytes(ctx, bucket, k)
		if err != nil {
			if objstore.IsNotFound(err) {
				lastErr = err
				continue
			}
			return rawReview{}, err
		}
		if !strings.HasSuffix(k, ".json") {
			return rawReview{ReviewText: string(b)}, nil
		}
		var r rawReview
		if err := json.Unmarshal(b, &r); err != nil {
			return rawReview{}, fmt.Errorf("decode review %s: %w", k, err)
		}
		return r, nil
	}
	return rawReview{}, fmt.Errorf("original review for %s not found: %w", validationKey, lastErr)
}
