package ingest

import (
	"genaiops/internal/config"
	"genaiops/internal/db"
	"genaiops/internal/textquality"
)

type Config struct {
	CloudWatchNamespace string  `env:"CLOUDWATCH_NAMESPACE" validate:"required"`
	MetricSource        string  `env:"METRIC_SOURCE" validate:"required"`
	QualityThreshold    float64 `env:"QUALITY_THRESHOLD" validate:"gte=0,lte=1"`
	MinConfidence       float64 `env:"MIN_CONFIDENCE" validate:"gte=0,lte=100"`
	ProcessingTable     string  `env:"PROCESSING_TABLE"`
	DedupeTable         string  `env:"DEDUPE_TABLE"`
	Patterns            textquality.Patterns
}

func LoadConfig() (Config, error) {
	c := Config{
		CloudWatchNamespace: config.String("CLOUDWATCH_NAMESPACE", "CustomerFeedback/TextQuality"),
		MetricSource:        config.String("METRIC_SOURCE", "TextReviews"),
		QualityThreshold:    config.Float("QUALITY_THRESHOLD", 0.7),
		MinConfidence:       config.Float("MIN_CONFIDENCE", 70),
		ProcessingTable:     db.ProcessingTableName(),
		DedupeTable:         db.DedupeTableName(),
		Patterns:            textquality.PatternsFromEnv(),
	}
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
