package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"genaiops/internal/llm"
)

const (
	LabelFallback = "FALLBACK:"
	LabelDegraded = "DEGRADED_SERVICE"

	primaryMaxTokens     = 500
	primaryTemperature   = 0.7
	fallbackMaxTokens    = 300
	fallbackTemperature  = 0.5
	defaultDegradeAnswer = "I'm sorry, but I'm currently experiencing technical difficulties. Please try again later."
)

var degradedAnswers = map[string]string{
	"general":          "I'm sorry, but I'm currently experiencing technical difficulties. Please try again later or contact customer service for immediate assistance.",
	"product_question": "I apologize, but I can't access product information right now. Please refer to our product documentation or contact customer service at 1-800-555-1234.",
	"account_inquiry":  "I'm unable to process account inquiries at the moment. For urgent matters, please call our customer service line at 1-800-555-1234.",
}

type Request struct {
	Prompt  string `json:"prompt" validate:"required"`
	UseCase string `json:"use_case"`
}

type Answer struct {
	ModelUsed string `json:"model_used"`
	Response  string `json:"response"`
}

// Response is the API-Gateway-shaped envelope returned by the routing
// Lambdas. Body is the JSON-encoded Answer.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func envelope(status int, a Answer) Response {
	b, _ := json.Marshal(a)
	return Response{StatusCode: status, Body: string(b)}
}

// ParseRequest accepts either an API Gateway proxy event whose body is a
// JSON string (or object) or the request object itself. A missing
// use_case becomes "general".
func ParseRequest(raw json.RawMessage) (Request, error) {
	var envelope struct {
		Body json.RawMessage `json:"body"`
	}
	payload := raw
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Body) > 0 && string(envelope.Body) != "null" {
		var s string
		if json.Unmarshal(envelope.Body, &s) == nil {
			payload = json.RawMessage(s)
		} else {
			payload = envelope.Body
		}
	}

	var r Request
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &r); err != nil {
			return Request{}, fmt.Errorf("decode routing request: %w", err)
		}
	}
	if strings.TrimSpace(r.UseCase) == "" {
		r.UseCase = DefaultUseCase
	}
	return r, nil
}

// Router answers prompts with the strategy-selected model and degrades
// step by step when models fail.
type Router struct {
	invoker       llm.Invoker
	strategies    *StrategyStore
	fallbackModel string
	validate      *validator.Validate
	logger        *zap.Logger
}

func NewRouter(invoker llm.Invoker, strategies *StrategyStore, fallbackModel string, logger *zap.Logger) *Router {
	if strings.TrimSpace(fallbackModel) == "" {
		fallbackModel = DefaultFallbackModel
	}
	return &Router{
		invoker:       invoker,
		strategies:    strategies,
		fallbackModel: fallbackModel,
		validate:      validator.New(),
		logger:        logger,
	}
}

// NewInvoker stacks the response cache over per-model circuit breakers
// over Bedrock. Cache hits never count against a breaker.
func NewInvoker(cfg aws.Config, c Config, logger *zap.Logger) llm.Invoker {
	var inv llm.Invoker = llm.NewBreaker(llm.NewBedrock(bedrockruntime.NewFromConfig(cfg)), llm.DefaultBreakerConfig(), logger)
	if cache := llm.NewResponseCache(dynamodb.NewFromConfig(cfg), c.CacheTable, c.CacheTTL); cache != nil {
		inv = llm.NewCached(inv, cache)
	}
	return inv
}

func NewStrategyStoreFromConfig(cfg aws.Config, c Config, logger *zap.Logger) *StrategyStore {
	return NewStrategyStore(ssm.NewFromConfig(cfg), c.StrategyParameter, c.StrategyTTL, logger)
}

// NewFromConfig wires a Router against real AWS clients.
func NewFromConfig(cfg aws.Config, c Config, logger *zap.Logger) *Router {
	return NewRouter(NewInvoker(cfg, c, logger), NewStrategyStoreFromConfig(cfg, c, logger), c.FallbackModel, logger)
}

// Primary invokes the selected model. Errors are returned so a state
// machine can catch them and move to the fallback task.
func (r *Router) Primary(ctx context.Context, req Request) (Answer, error) {
	modelID := SelectModel(r.strategies.Load(ctx), req.UseCase)
	comp, err := r.invoker.Invoke(ctx, llm.Request{
		ModelID:     modelID,
		Prompt:      req.Prompt,
		MaxTokens:   primaryMaxTokens,
		Temperature: primaryTemperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("primary model %s: %w", modelID, err)
	}
	return Answer{ModelUsed: modelID, Response: comp.Text}, nil
}

func (r *Router) Fallback(ctx context.Context, req Request) (Answer, error) {
	comp, err := r.invoker.Invoke(ctx, llm.Request{
		ModelID:     r.fallbackModel,
		Prompt:      req.Prompt,
		MaxTokens:   fallbackMaxTokens,
		Temperature: fallbackTemperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("fallback model failed: %w", err)
	}
	return Answer{ModelUsed: LabelFallback + r.fallbackModel, Response: comp.Text}, nil
}

// Degrade never fails.
func Degrade(useCase string) Answer {
	msg, ok := degradedAnswers[useCase]
	if !ok {
		msg = defaultDegradeAnswer
	}
	return Answer{ModelUsed: LabelDegraded, Response: msg}
}

// Route runs primary, fallback and degradation in-process.
func (r *Router) Route(ctx context.Context, req Request) Answer {
	a, err := r.Primary(ctx, req)
	if err == nil {
		return a
	}
	r.logger.Warn("primary model failed", zap.String("use_case", req.UseCase), zap.Error(err))

	a, err = r.Fallback(ctx, req)
	if err == nil {
		return a
	}
	r.logger.Error("fallback model failed", zap.String("use_case", req.UseCase), zap.Error(err))
	return Degrade(req.UseCase)
}

func (r *Router) parse(raw json.RawMessage) (Request, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return req, err
	}
	if err := r.validate.Struct(req); err != nil {
		return req, fmt.Errorf("invalid routing request: %w", err)
	}
	return req, nil
}

// HandleRoute is the single-Lambda entry point.
func (r *Router) HandleRoute(ctx context.Context, raw json.RawMessage) (Response, error) {
	req, err := r.parse(raw)
	if err != nil {
		b, _ := json.Marshal(map[string]string{"error": err.Error()})
		return Response{StatusCode: http.StatusBadRequest, Body: string(b)}, nil
	}
	return envelope(http.StatusOK, r.Route(ctx, req)), nil
}

// HandlePrimary is the first Step Functions task; errors propagate.
func (r *Router) HandlePrimary(ctx context.Context, raw json.RawMessage) (Response, error) {
	req, err := r.parse(raw)
	if err != nil {
		return Response{}, err
	}
	a, err := r.Primary(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return envelope(http.StatusOK, a), nil
}

func (r *Router) HandleFallback(ctx context.Context, raw json.RawMessage) (Response, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return Response{}, err
	}
	a, err := r.Fallback(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return envelope(http.StatusOK, a), nil
}

// HandleDegrade needs no model client.
func HandleDegrade(_ context.Context, raw json.RawMessage) (Response, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		req = Request{UseCase: DefaultUseCase}
	}
	return envelope(http.StatusOK, Degrade(req.UseCase)), nil
}
