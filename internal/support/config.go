package support

import (
	"time"

	"genaiops/internal/config"
	"genaiops/internal/db"
	"genaiops/internal/governance"
)

const DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"

type Config struct {
	ConversationTable  string        `env:"CONVERSATION_TABLE" validate:"required"`
	FeedbackTable      string        `env:"FEEDBACK_TABLE"`
	PromptTable        string        `env:"PROMPT_TABLE"`
	PromptBucket       string        `env:"PROMPT_BUCKET" validate:"required_with=PromptTable"`
	ModelID            string        `env:"MODEL_ID" validate:"required"`
	QualityThreshold   float64       `env:"QUALITY_THRESHOLD" validate:"gte=0,lte=100"`
	GuardrailID        string        `env:"GUARDRAIL_ID"`
	GuardrailVersion   string        `env:"GUARDRAIL_VERSION"`
	TopicCheck         bool          `env:"TOPIC_CHECK"`
	EscalationTopicArn string        `env:"ESCALATION_TOPIC_ARN"`
	MetricsNamespace   string        `env:"CLOUDWATCH_NAMESPACE" validate:"required"`
	SessionTTL         time.Duration `env:"SESSION_TTL_HOURS"`
	CacheTable         string        `env:"RESPONSE_CACHE_TABLE"`
	Governance         governance.Config
}

func LoadConfig() (Config, error) {
	gov, err := governance.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	c := Config{
		ConversationTable:  db.ConversationTableName(),
		FeedbackTable:      db.FeedbackTableName(),
		PromptTable:        db.PromptTableName(),
		PromptBucket:       config.String("PROMPT_BUCKET", ""),
		ModelID:            config.String("MODEL_ID", DefaultModel),
		QualityThreshold:   config.Float("QUALITY_THRESHOLD", DefaultQualityThreshold),
		GuardrailID:        config.String("GUARDRAIL_ID", ""),
		GuardrailVersion:   config.String("GUARDRAIL_VERSION", "DRAFT"),
		TopicCheck:         config.Bool("TOPIC_CHECK", false),
		EscalationTopicArn: config.String("ESCALATION_TOPIC_ARN", ""),
		MetricsNamespace:   config.String("CLOUDWATCH_NAMESPACE", "CustomerSupportAI"),
		SessionTTL:         time.Duration(config.Int("SESSION_TTL_HOURS", 24)) * time.Hour,
		CacheTable:         db.ResponseCacheTableName(),
		Governance:         gov,
	}
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
