package claims

import (
	"genaiops/internal/config"
)

type Config struct {
	Model            string   `env:"CLAIM_MODEL" validate:"required"`
	ValidationModels []string `env:"VALIDATION_MODELS" validate:"required,min=1"`
	PolicyKey        string   `env:"POLICY_KEY"`
	MetricsNamespace string   `env:"CLOUDWATCH_NAMESPACE" validate:"required"`
}

func LoadConfig() (Config, error) {
	c := Config{
		Model:            config.String("CLAIM_MODEL", DefaultModel),
		PolicyKey:        config.String("POLICY_KEY", DefaultPolicyKey),
		MetricsNamespace: config.String("CLOUDWATCH_NAMESPACE", "ClaimProcessing"),
	}
	c.ValidationModels = config.List("VALIDATION_MODELS", []string{c.Model, DefaultValidationModel})
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}
