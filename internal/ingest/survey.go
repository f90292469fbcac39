package ingest

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/objstore"
	"genaiops/internal/survey"
)

const SurveyOutputPrefix = ProcessedPrefix + "surveys/"

// IsSurveyExport matches raw-data/**/surveys*.csv.
func IsSurveyExport(key string) bool {
	base := strings.ToLower(path.Base(key))
	return strings.HasPrefix(key, RawPrefix) && strings.HasPrefix(base, "surveys") && strings.HasSuffix(base, ".csv")
}

// SurveyProcessor summarizes uploaded survey exports and writes the
// artifacts under processed-data/surveys/.
type SurveyProcessor struct {
	store  *objstore.Store
	claim  claimFunc
	logger *zap.Logger
}

func NewSurveyProcessor(cfg aws.Config, c Config, logger *zap.Logger) *SurveyProcessor {
	return &SurveyProcessor{
		store:  objstore.New(s3.NewFromConfig(cfg)),
		claim:  dedupeClaim(dynamodb.NewFromConfig(cfg), c.DedupeTable, "process-surveys"),
		logger: logger,
	}
}

type SurveyProcessed struct {
	Bucket       string       `json:"bucket"`
	Source       string       `json:"source"`
	OutputPrefix string       `json:"output_prefix"`
	Stats        survey.Stats `json:"stats"`
}

func (h *SurveyProcessor) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.process), nil
}

func (h *SurveyProcessor) process(ctx context.Context, ref ObjectRef) Response {
	if !IsSurveyExport(ref.Key) {
		return ok("Not a survey export")
	}

	raw, err := h.store.GetBytes(ctx, ref.Bucket, ref.Key)
	if err != nil {
		h.logger.Error("load survey export failed", zap.String("key", ref.Key), zap.Error(err))
		return failed(err)
	}
	res, err := survey.Process(bytes.NewReader(raw))
	if err != nil {
		return failed(err)
	}
	arts, err := res.Artifacts()
	if err != nil {
		return failed(err)
	}
	for _, a := range arts {
		if err := h.store.PutBytes(ctx, ref.Bucket, SurveyOutputPrefix+a.Name, a.ContentType, a.Body); err != nil {
			h.logger.Error("store survey artifact failed", zap.String("name", a.Name), zap.Error(err))
			return failed(err)
		}
	}

	h.logger.Info("survey export processed",
		zap.String("key", ref.Key),
		zap.Int("surveys", res.Stats.TotalSurveys))
	return ok(SurveyProcessed{Bucket: ref.Bucket, Source: ref.Key, OutputPrefix: SurveyOutputPrefix, Stats: res.Stats})
}
