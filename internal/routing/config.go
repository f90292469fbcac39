package routing

import (
	"time"

	"genaiops/internal/config"
	"genaiops/internal/db"
)

type Config struct {
	StrategyParameter string        `env:"STRATEGY_PARAMETER"`
	StrategyTTL       time.Duration `env:"STRATEGY_TTL_SECONDS"`
	FallbackModel     string        `env:"FALLBACK_MODEL" validate:"required"`
	CacheTable        string        `env:"RESPONSE_CACHE_TABLE"`
	CacheTTL          time.Duration `env:"LLM_CACHE_TTL_SECONDS"`
}

func LoadConfig() (Config, error) {
	c := Config{
		StrategyParameter: config.String("STRATEGY_PARAMETER", "/genaiops/routing/strategy"),
		StrategyTTL:       time.Duration(config.Int("STRATEGY_TTL_SECONDS", 60)) * time.Second,
		FallbackModel:     config.String("FALLBACK_MODEL", DefaultFallbackModel),
		CacheTable:        db.ResponseCacheTableName(),
		CacheTTL:          time.Duration(config.Int("LLM_CACHE_TTL_SECONDS", 600)) * time.Second,
	}
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
