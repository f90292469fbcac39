package ingest

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/claims"
	"genaiops/internal/db"
	"genaiops/internal/llm"
	"genaiops/internal/metrics"
	"genaiops/internal/objstore"
)

// ClaimProcessor runs claim extraction for documents uploaded under
// claims/ and writes processed-claims/<name>.json next to them.
type ClaimProcessor struct {
	store   *objstore.Store
	inv     llm.Invoker
	pub     *metrics.Publisher
	cfg     claims.Config
	claim   claimFunc
	records *db.Records
	logger  *zap.Logger

	mu       sync.Mutex
	policies map[string]*claims.PolicyIndex
}

func NewClaimProcessor(cfg aws.Config, c Config, cc claims.Config, logger *zap.Logger) *ClaimProcessor {
	ddb := dynamodb.NewFromConfig(cfg)
	var inv llm.Invoker = llm.NewBedrock(bedrockruntime.NewFromConfig(cfg))
	if cache := llm.NewResponseCache(ddb, db.ResponseCacheTableName(), 0); cache != nil {
		inv = llm.NewCached(inv, cache)
	}
	return &ClaimProcessor{
		store:    objstore.New(s3.NewFromConfig(cfg)),
		inv:      inv,
		pub:      metrics.NewPublisher(cc.MetricsNamespace, cloudwatch.NewFromConfig(cfg), logger),
		cfg:      cc,
		claim:    dedupeClaim(ddb, c.DedupeTable, "process-claim"),
		records:  db.NewRecords(ddb, c.ProcessingTable),
		logger:   logger,
		policies: map[string]*claims.PolicyIndex{},
	}
}

func (h *ClaimProcessor) Handle(ctx context.Context, ev events.S3Event) (Response, error) {
	return eachObject(ctx, ev, h.claim, h.logger, h.process), nil
}

// policyIndex loads the bucket's policy snippets once per container. A
// missing file means no policy context.
func (h *ClaimProcessor) policyIndex(ctx context.Context, bucket string) *claims.PolicyIndex {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ix, ok := h.policies[bucket]; ok {
		return ix
	}
	ix, err := claims.LoadPolicies(ctx, h.store, bucket, h.cfg.PolicyKey)
	if err != nil {
		h.logger.Warn("policy snippets unavailable", zap.String("bucket", bucket), zap.String("key", h.cfg.PolicyKey), zap.Error(err))
		ix = claims.NewPolicyIndex(nil)
	}
	h.policies[bucket] = ix
	return ix
}

func (h *ClaimProcessor) process(ctx context.Context, ref ObjectRef) Response {
	if !strings.HasPrefix(ref.Key, claims.InputPrefix) || strings.HasSuffix(ref.Key, "/") {
		return ok("Not a claim document")
	}

	p := claims.NewProcessor(h.inv, h.store, h.policyIndex(ctx, ref.Bucket), h.pub, h.logger)
	res, err := p.Process(ctx, ref.Bucket, ref.Key, h.cfg.Model, h.cfg.ValidationModels)
	if err != nil {
		h.logger.Error("claim processing failed", zap.String("key", ref.Key), zap.Error(err))
		return failed(err)
	}

	out := claims.OutputKey(ref.Key)
	if err := h.store.PutJSON(ctx, ref.Bucket, out, res); err != nil {
		return failed(err)
	}
	if err := h.records.Put(ctx, db.Record{
		Kind:      db.KindClaim,
		Bucket:    ref.Bucket,
		SourceKey: ref.Key,
		ResultKey: out,
		Source:    res.Model,
		Status:    res.Validation.Consensus,
	}); err != nil {
		h.logger.Warn("processing record failed", zap.String("key", ref.Key), zap.Error(err))
	}

	h.logger.Info("claim processed",
		zap.String("key", ref.Key),
		zap.String("model", res.Model),
		zap.String("consensus", res.Validation.Consensus))
	return ok(res)
}
