package governance

import (
	"genaiops/internal/config"
	"genaiops/internal/db"
)

// Config drives redaction and the audit trail. Every sink is optional.
type Config struct {
	AuditTable       string `env:"AUDIT_TRAIL_TABLE"`
	AuditBucket      string `env:"AUDIT_LOGS_BUCKET"`
	TopicArn         string `env:"COMPLIANCE_TOPIC_ARN"`
	RedactPII        bool   `env:"REDACT_PII"`
	MetricsNamespace string `env:"GOVERNANCE_NAMESPACE" validate:"required"`
}

func LoadConfig() (Config, error) {
	c := Config{
		AuditTable:       db.AuditTrailTableName(),
		AuditBucket:      config.String("AUDIT_LOGS_BUCKET", ""),
		TopicArn:         config.String("COMPLIANCE_TOPIC_ARN", ""),
		RedactPII:        config.Bool("REDACT_PII", true),
		MetricsNamespace: config.String("GOVERNANCE_NAMESPACE", "GenAI/Governance"),
	}
	if err := config.Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

type ExportConfig struct {
	AuditTable string `env:"AUDIT_TRAIL_TABLE" validate:"required"`
	Bucket     string `env:"AUDIT_LOGS_BUCKET" validate:"required"`
	LakePrefix string `env:"AUDIT_EVENTS_PREFIX" validate:"required"`
	DaysBack   int    `env:"AUDIT_EXPORT_DAYS_BACK" validate:"min=1,max=90"`
}

func LoadExportConfig() (ExportConfig, error) {
	c := ExportConfig{
		AuditTable: db.AuditTrailTableName(),
		Bucket:     config.String("AUDIT_LOGS_BUCKET", ""),
		LakePrefix: config.String("AUDIT_EVENTS_PREFIX", "audit_events/"),
		DaysBack:   config.Int("AUDIT_EXPORT_DAYS_BACK", 1),
	}
	if err := config.Validate(c); err != nil {
		return ExportConfig{}, err
	}
	return c, nil
}
