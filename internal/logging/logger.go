package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. JSON output in Lambda, console output when
// ENVIRONMENT=dev. LOG_LEVEL picks the level (default info).
func New(service string) *zap.Logger {
	var zc zap.Config
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ENVIRONMENT")), "dev") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(os.Getenv("LOG_LEVEL")))
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		// config above is static; only a broken stdout gets here
		return zap.NewNop()
	}
	if service != "" {
		logger = logger.With(zap.String("service", service))
	}
	if fn := strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")); fn != "" {
		logger = logger.With(zap.String("function", fn))
	}
	return logger
}

func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
