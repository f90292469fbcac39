package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Bucket    string  `env:"DATA_BUCKET" validate:"required"`
	Threshold float64 `env:"QUALITY_THRESHOLD" validate:"gte=0,lte=1"`
	Output    string  `env:"ATHENA_OUTPUT" validate:"omitempty,startswith=s3://"`
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_STR", "  hello ")
	t.Setenv("X_INT", "42")
	t.Setenv("X_BAD_INT", "forty")
	t.Setenv("X_FLOAT", "0.75")
	t.Setenv("X_BOOL", "true")
	t.Setenv("X_LIST", "a, b,,c ")

	assert.Equal(t, "hello", String("X_STR", "def"))
	assert.Equal(t, "def", String("X_MISSING", "def"))
	assert.Equal(t, 42, Int("X_INT", 1))
	assert.Equal(t, 1, Int("X_BAD_INT", 1))
	assert.InDelta(t, 0.75, Float("X_FLOAT", 0.1), 1e-9)
	assert.True(t, Bool("X_BOOL", false))
	assert.Equal(t, []string{"a", "b", "c"}, List("X_LIST", nil))
	assert.Equal(t, []string{"z"}, List("X_MISSING", []string{"z"}))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(sampleConfig{Bucket: "b", Threshold: 0.7}))

	err := Validate(sampleConfig{Threshold: 1.5, Output: "http://x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "DATA_BUCKET is required")
	assert.Contains(t, err.Error(), "QUALITY_THRESHOLD must be <= 1")
	assert.Contains(t, err.Error(), "ATHENA_OUTPUT must start with s3://")
}
