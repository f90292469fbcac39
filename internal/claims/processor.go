package claims

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genaiops/internal/llm"
	"genaiops/internal/metrics"
	"genaiops/internal/objstore"
)

const (
	DefaultModel           = "amazon.nova-micro-v1:0"
	DefaultValidationModel = "amazon.nova-lite-v1:0"

	InputPrefix  = "claims/"
	OutputPrefix = "processed-claims/"
)

type Validation struct {
	Consensus string              `json:"consensus"`
	Details   map[string]ModelRun `json:"details"`
}

type Metrics struct {
	TotalProcessingTimeSec float64 `json:"total_processing_time_sec"`
}

type Result struct {
	File             string     `json:"file"`
	Model            string     `json:"model"`
	ExtractedInfo    string     `json:"extracted_info"`
	RelevantPolicies string     `json:"relevant_policies"`
	Summary          string     `json:"summary"`
	Validation       Validation `json:"validation"`
	Metrics          Metrics    `json:"metrics"`
}

// OutputKey maps claims/<dir>/<name>.<ext> to processed-claims/<name>.json.
func OutputKey(key string) string {
	base := path.Base(key)
	return OutputPrefix + strings.TrimSuffix(base, path.Ext(base)) + ".json"
}

type Processor struct {
	inv      llm.Invoker
	store    *objstore.Store
	policies *PolicyIndex
	metrics  *metrics.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewProcessor(inv llm.Invoker, store *objstore.Store, policies *PolicyIndex, pub *metrics.Publisher, logger *zap.Logger) *Processor {
	return &Processor{inv: inv, store: store, policies: policies, metrics: pub, logger: logger, now: time.Now}
}

// Process reads the document from S3 and runs ProcessText.
func (p *Processor) Process(ctx context.Context, bucket, key, model string, validationModels []string) (Result, error) {
	raw, err := p.store.GetBytes(ctx, bucket, key)
	if err != nil {
		return Result{}, err
	}
	return p.ProcessText(ctx, key, string(raw), model, validationModels)
}

// ProcessText extracts, validates across models, retrieves policies and
// summarizes one document. Only extraction and summary failures are
// errors; validation failures are reported in the result.
func (p *Processor) ProcessText(ctx context.Context, key, document, model string, validationModels []string) (Result, error) {
	start := p.now()
	if model == "" {
		model = DefaultModel
	}
	if len(validationModels) == 0 {
		validationModels = []string{model, DefaultValidationModel}
	}

	extracted, err := p.invoke(ctx, llm.Request{
		ModelID:     model,
		Prompt:      ExtractPrompt(document),
		MaxTokens:   extractMaxTokens,
		Temperature: extractTemperature,
	}, "extract")
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", key, err)
	}

	runs := ValidateWithModels(ctx, p.inv, document, ValidationGoal, validationModels)
	policies := p.policies.Retrieve(document)

	summary, err := p.invoke(ctx, llm.Request{
		ModelID:     model,
		Prompt:      SummaryPrompt(extracted, policies),
		MaxTokens:   summaryMaxTokens,
		Temperature: summaryTemperature,
	}, "summarize")
	if err != nil {
		return Result{}, fmt.Errorf("summarize %s: %w", key, err)
	}

	return Result{
		File:             key,
		Model:            model,
		ExtractedInfo:    extracted,
		RelevantPolicies: policies,
		Summary:          summary,
		Validation:       Validation{Consensus: Consensus(runs), Details: runs},
		Metrics:          Metrics{TotalProcessingTimeSec: math.Round(p.now().Sub(start).Seconds()*100) / 100},
	}, nil
}

func (p *Processor) invoke(ctx context.Context, r llm.Request, step string) (string, error) {
	comp, err := p.inv.Invoke(ctx, r)
	status := "success"
	if err != nil {
		status = "error"
	}
	_ = p.metrics.PutData(ctx, metrics.Datum{
		Name:  "ModelInvocation",
		Value: 1,
		Unit:  cwtypes.StandardUnitCount,
		Dimensions: []metrics.Dimension{
			metrics.Dim("ModelId", r.ModelID),
			metrics.Dim("Step", step),
			metrics.Dim("Status", status),
		},
	})
	if err != nil {
		return "", err
	}
	return comp.Text, nil
}

type BatchItem struct {
	File   string  `json:"file"`
	Model  string  `json:"model"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// RunBatch processes every file with every model. Each file is read once.
// Items keep files x models order; per-item failures are recorded.
func (p *Processor) RunBatch(ctx context.Context, bucket string, files, models []string, concurrency int) ([]BatchItem, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	docs := make([]string, len(files))
	for i, f := range files {
		raw, err := p.store.GetBytes(ctx, bucket, f)
		if err != nil {
			return nil, err
		}
		docs[i] = string(raw)
	}

	items := make([]BatchItem, len(files)*len(models))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for fi, f := range files {
		for mi, m := range models {
			i, f, m, doc := fi*len(models)+mi, f, m, docs[fi]
			g.Go(func() error {
				res, err := p.ProcessText(gctx, f, doc, m, []string{m, DefaultValidationModel})
				items[i] = BatchItem{File: f, Model: m}
				if err != nil {
					p.logger.Warn("claim batch item failed", zap.String("file", f), zap.String("model", m), zap.Error(err))
					items[i].Error = err.Error()
					return nil
				}
				items[i].Result = &res
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}
