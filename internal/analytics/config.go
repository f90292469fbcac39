package analytics

import (
	"time"

	"genaiops/internal/config"
	"genaiops/internal/db"
)

type AthenaConfig struct {
	Database  string `env:"ATHENA_DATABASE" validate:"required"`
	Table     string `env:"ATHENA_TABLE" validate:"required"`
	Workgroup string `env:"ATHENA_WORKGROUP"`
	Output    string `env:"ATHENA_OUTPUT" validate:"required,startswith=s3://"`
}

func (c AthenaConfig) options(maxWait, poll time.Duration) QueryOptions {
	return QueryOptions{
		Database:       c.Database,
		Workgroup:      c.Workgroup,
		OutputLocation: c.Output,
		MaxWait:        maxWait,
		PollInterval:   poll,
	}
}

func LoadAthenaConfig() (AthenaConfig, error) {
	c := AthenaConfig{
		Database:  config.String("ATHENA_DATABASE", ""),
		Table:     config.String("ATHENA_TABLE", "quality_scores"),
		Workgroup: config.String("ATHENA_WORKGROUP", "primary"),
		Output:    config.String("ATHENA_OUTPUT", ""),
	}
	if err := config.Validate(c); err != nil {
		return AthenaConfig{}, err
	}
	return c, nil
}

type ETLConfig struct {
	ProcessingTable string  `env:"PROCESSING_TABLE" validate:"required"`
	Bucket          string  `env:"ANALYTICS_BUCKET" validate:"required"`
	Prefix          string  `env:"QUALITY_SCORES_PREFIX" validate:"required"`
	DaysBack        int     `env:"ETL_DAYS_BACK" validate:"min=1,max=90"`
	IncludeToday    bool    `env:"ETL_INCLUDE_TODAY"`
	Threshold       float64 `env:"QUALITY_THRESHOLD" validate:"gte=0,lte=1"`
}

func LoadETLConfig() (ETLConfig, error) {
	c := ETLConfig{
		ProcessingTable: db.ProcessingTableName(),
		Bucket:          config.String("ANALYTICS_BUCKET", ""),
		Prefix:          config.String("QUALITY_SCORES_PREFIX", "quality_scores/"),
		DaysBack:        config.Int("ETL_DAYS_BACK", 1),
		IncludeToday:    config.Bool("ETL_INCLUDE_TODAY", false),
		Threshold:       config.Float("QUALITY_THRESHOLD", 0.7),
	}
	if err := config.Validate(c); err != nil {
		return ETLConfig{}, err
	}
	return c, nil
}

type ReportConfig struct {
	Athena    AthenaConfig
	Bucket    string  `env:"ANALYTICS_BUCKET" validate:"required"`
	Prefix    string  `env:"REPORT_PREFIX" validate:"required"`
	Days      int     `env:"REPORT_DAYS" validate:"min=1,max=90"`
	Threshold float64 `env:"QUALITY_THRESHOLD" validate:"gte=0,lte=1"`
	TopicArn  string  `env:"REPORT_TOPIC_ARN"`
}

func LoadReportConfig() (ReportConfig, error) {
	ac, err := LoadAthenaConfig()
	if err != nil {
		return ReportConfig{}, err
	}
	c := ReportConfig{
		Athena:    ac,
		Bucket:    config.String("ANALYTICS_BUCKET", ""),
		Prefix:    config.String("REPORT_PREFIX", "reports/quality/"),
		Days:      config.Int("REPORT_DAYS", 7),
		Threshold: config.Float("QUALITY_THRESHOLD", 0.7),
		TopicArn:  config.String("REPORT_TOPIC_ARN", ""),
	}
	if err := config.Validate(c); err != nil {
		return ReportConfig{}, err
	}
	return c, nil
}
