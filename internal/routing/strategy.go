// Package routing picks a Bedrock model per request and keeps answering
// when that model fails: primary, then a fallback model, then a canned
// degraded response.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.uber.org/zap"
)

const (
	DefaultPrimaryModel  = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultFallbackModel = "amazon.titan-text-express-v1"
	DefaultUseCase       = "general"
)

type ModelScore struct {
	ModelID         string  `json:"model_id"`
	Latency         float64 `json:"latency"`
	SimilarityScore float64 `json:"similarity_score"`
	LatencyScore    float64 `json:"latency_score"`
	OverallScore    float64 `json:"overall_score"`
}

// Strategy is the model-selection document stored in SSM.
type Strategy struct {
	PrimaryModel   string            `json:"primary_model"`
	FallbackModels []string          `json:"fallback_models,omitempty"`
	UseCaseModels  map[string]string `json:"use_case_models,omitempty"`
	ModelScores    []ModelScore      `json:"model_scores,omitempty"`
}

func DefaultStrategy() Strategy {
	return Strategy{PrimaryModel: DefaultPrimaryModel}
}

// SelectModel returns the use-case override if configured, else the
// primary model.
func SelectModel(s Strategy, useCase string) string {
	if m, ok := s.UseCaseModels[useCase]; ok && m != "" {
		return m
	}
	if s.PrimaryModel == "" {
		return DefaultPrimaryModel
	}
	return s.PrimaryModel
}

type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// StrategyStore reads the strategy parameter and caches it for ttl.
// Read failures keep the last good strategy, or DefaultStrategy if none
// was ever loaded.
type StrategyStore struct {
	ssm    SSMClient
	name   string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu       sync.Mutex
	cached   *Strategy
	loadedAt time.Time
}

func NewStrategyStore(c SSMClient, name string, ttl time.Duration, logger *zap.Logger) *StrategyStore {
	return &StrategyStore{ssm: c, name: strings.TrimSpace(name), ttl: ttl, now: time.Now, logger: logger}
}

func (s *StrategyStore) Load(ctx context.Context) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return *s.cached
	}

	st, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("routing strategy unavailable", zap.String("parameter", s.name), zap.Error(err))
		if s.cached != nil {
			return *s.cached
		}
		return DefaultStrategy()
	}
	s.cached, s.loadedAt = &st, s.now()
	return st
}

func (s *StrategyStore) fetch(ctx context.Context) (Strategy, error) {
	if s.ssm == nil || s.name == "" {
		return Strategy{}, errors.New("no strategy parameter configured")
	}
	out, err := s.ssm.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(s.name)})
	if err != nil {
		return Strategy{}, fmt.Errorf("ssm GetParameter %s: %w", s.name, err)
	}
	if out.Parameter == nil {
		return Strategy{}, fmt.Errorf("ssm parameter %s has no value", s.name)
	}
	var st Strategy
	if err := json.Unmarshal([]byte(aws.ToString(out.Parameter.Value)), &st); err != nil {
		return Strategy{}, fmt.Errorf("decode strategy: %w", err)
	}
	if st.PrimaryModel == "" {
		return Strategy{}, fmt.Errorf("strategy %s has no primary_model", s.name)
	}
	return st, nil
}

// Save overwrites the strategy parameter.
func (s *StrategyStore) Save(ctx context.Context, st Strategy) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode strategy: %w", err)
	}
	_, err = s.ssm.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(s.name),
		Value:       aws.String(string(b)),
		Type:        ssmtypes.ParameterTypeString,
		Overwrite:   aws.Bool(true),
		Description: aws.String("Model selection strategy"),
	})
	if err != nil {
		return fmt.Errorf("ssm PutParameter %s: %w", s.name, err)
	}
	s.mu.Lock()
	s.cached, s.loadedAt = &st, s.now()
	s.mu.Unlock()
	return nil
}
