package insights

import (
	"genaiops/internal/config"
	"genaiops/internal/db"
	"genaiops/internal/governance"
)

const DefaultModel = "anthropic.claude-3-haiku-20240307-v1:0"

type Config struct {
	Model           string   `env:"INSIGHTS_MODEL" validate:"required"`
	Database        string   `env:"ATHENA_DATABASE" validate:"required"`
	Tables          []string `env:"INSIGHTS_TABLES" validate:"required,min=1"`
	Workgroup       string   `env:"ATHENA_WORKGROUP"`
	Output          string   `env:"ATHENA_OUTPUT" validate:"required,startswith=s3://"`
	DateColumn      string   `env:"INSIGHTS_DATE_COLUMN" validate:"required"`
	MaxDaysLookback int      `env:"INSIGHTS_MAX_DAYS" validate:"min=1,max=366"`
	MaxFixAttempts  int      `env:"INSIGHTS_MAX_FIX_ATTEMPTS" validate:"min=0,max=5"`
	MaxRows         int      `env:"INSIGHTS_MAX_ROWS" validate:"min=1,max=1000"`
	CacheTable      string   `env:"RESPONSE_CACHE_TABLE"`
	Governance      governance.Config
}

func LoadConfig() (Config, error) {
	gov, err := governance.LoadConfig()
	if err != nil {
		return Config{}, err
	}
	c := Config{
		Model:           config.String("INSIGHTS_MODEL", DefaultModel),
		Database:        config.String("ATHENA_DATABASE", ""),
		Tables:          config.List("INSIGHTS_TABLES", []string{"quality_scores"}),
		Workgroup:       config.String("ATHENA_WORKGROUP", "primary"),
		Output:          config.String("ATHENA_OUTPUT", ""),
		DateColumn:      config.String("INSIGHTS_DATE_COLUMN", "dt"),
		MaxDaysLookback: config.Int("INSIGHTS_MAX_DAYS", 90),
		MaxFixAttempts:  config.Int("INSIGHTS_MAX_FIX_ATTEMPTS", 2),
		MaxRows:         config.Int("INSIGHTS_MAX_ROWS", 200),
		CacheTable:      db.ResponseCacheTableName(),
		Governance:      gov,
	}
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
