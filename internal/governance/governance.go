// Package governance redacts PII from user text and keeps the compliance
// audit trail: a DynamoDB row per event, an S3 archive copy and an SNS
// alert for HIGH and CRITICAL events.
package governance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
	"genaiops/internal/db"
	"genaiops/internal/metrics"
	"genaiops/internal/nlp"
	"genaiops/internal/objstore"
)

const (
	SeverityInfo     = "INFO"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"

	EventPIIDetected      = "PII_DETECTED"
	EventGuardrailBlocked = "GUARDRAIL_BLOCKED"
	EventContentBlocked   = "CONTENT_BLOCKED"
	EventResponseBlocked  = "RESPONSE_BLOCKED"
	EventQueryProcessed   = "QUERY_PROCESSED"
)

type Deps struct {
	PII     *nlp.PIIDetector
	Trail   *db.AuditTrail
	Archive *objstore.Store
	Bucket  string
	Alerts  *alerts.Notifier
	Metrics *metrics.Publisher
}

// Service is nil-safe: a nil *Service redacts nothing and records nothing.
type Service struct {
	pii     *nlp.PIIDetector
	trail   *db.AuditTrail
	archive *objstore.Store
	bucket  string
	alerts  *alerts.Notifier
	metrics *metrics.Publisher
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

func New(d Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		pii:     d.PII,
		trail:   d.Trail,
		archive: d.Archive,
		bucket:  strings.TrimSpace(d.Bucket),
		alerts:  d.Alerts,
		metrics: d.Metrics,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func NewFromConfig(awsCfg aws.Config, c Config, logger *zap.Logger) *Service {
	d := Deps{
		Trail:   db.NewAuditTrail(dynamodb.NewFromConfig(awsCfg), c.AuditTable),
		Alerts:  alerts.NewNotifier(sns.NewFromConfig(awsCfg), c.TopicArn),
		Metrics: metrics.NewPublisher(c.MetricsNamespace, cloudwatch.NewFromConfig(awsCfg), logger),
	}
	if c.AuditBucket != "" {
		d.Archive = objstore.New(s3.NewFromConfig(awsCfg))
		d.Bucket = c.AuditBucket
	}
	if c.RedactPII {
		d.PII = nlp.NewPIIDetector(comprehend.NewFromConfig(awsCfg))
	}
	return New(d, logger)
}

type Redaction struct {
	Text        string   `json:"redacted_text"`
	HasPII      bool     `json:"has_pii"`
	PIITypes    []string `json:"pii_types,omitempty"`
	EntityCount int      `json:"entity_count"`
	Error       string   `json:"error,omitempty"`
}

// Redact masks PII in text. Detection failures pass the text through
// unchanged with Error set.
func (s *Service) Redact(ctx context.Context, text, userID string) Redaction {
	if s == nil || s.pii == nil || strings.TrimSpace(text) == "" {
		return Redaction{Text: text}
	}
	ents, err := s.pii.Entities(ctx, text)
	if err != nil {
		s.logger.Warn("pii detection failed", zap.Error(err))
		return Redaction{Text: text, Error: err.Error()}
	}
	if len(ents) == 0 {
		return Redaction{Text: text}
	}

	seen := map[string]bool{}
	var kinds []string
	for _, e := range ents {
		if !seen[e.Type] {
			seen[e.Type] = true
			kinds = append(kinds, e.Type)
		}
	}
	sort.Strings(kinds)

	r := Redaction{Text: nlp.Redact(text, ents), HasPII: true, PIITypes: kinds, EntityCount: len(ents)}
	if _, err := s.Log(ctx, EventPIIDetected, userID, map[string]any{
		"pii_types":    kinds,
		"entity_count": len(ents),
		"text_length":  utf8.RuneCountInString(text),
	}, SeverityHigh); err != nil {
		s.logger.Error("audit pii event failed", zap.Error(err))
	}
	_ = s.metrics.Put(ctx, "PIIDetected", 1, cwtypes.StandardUnitCount, metrics.Dim("PIIType", strings.Join(kinds, ",")))
	return r
}

// Log records one audit event and returns its id. Failures of the
// individual sinks are joined into the returned error.
func (s *Service) Log(ctx context.Context, eventType, userID string, details map[string]any, severity string) (string, error) {
	if s == nil {
		return "", nil
	}
	if severity == "" {
		severity = SeverityInfo
	}
	if userID == "" {
		userID = "anonymous"
	}
	raw := "{}"
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return "", fmt.Errorf("encode audit details: %w", err)
		}
		raw = string(b)
	}

	now := s.now().UTC()
	ev := db.AuditEvent{
		AuditID:      s.newID(),
		Timestamp:    now.Unix(),
		EventType:    eventType,
		UserID:       userID,
		Severity:     severity,
		Details:      raw,
		ISOTimestamp: now.Format(time.RFC3339),
	}
	s.logger.Info("audit event",
		zap.String("audit_id", ev.AuditID),
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.String("severity", severity),
		zap.Any("details", details))

	var errs []error
	if s.trail != nil {
		stored, err := s.trail.Put(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		} else {
			ev = stored
		}
	}
	if s.archive != nil && s.bucket != "" {
		if err := s.archive.PutJSON(ctx, s.bucket, ArchiveKey(now, ev.AuditID), ev); err != nil {
			errs = append(errs, err)
		}
	}
	if severity == SeverityHigh || severity == SeverityCritical {
		if err := s.alert(ctx, eventType, severity, now, details); err != nil {
			errs = append(errs, err)
		}
	}
	return ev.AuditID, errors.Join(errs...)
}

// ArchiveKey is audit-logs/YYYY/MM/DD/<id>.json.
func ArchiveKey(t time.Time, id string) string {
	return fmt.Sprintf("audit-logs/%s/%s.json", t.UTC().Format("2006/01/02"), id)
}

func (s *Service) alert(ctx context.Context, eventType, severity string, at time.Time, details map[string]any) error {
	if !s.alerts.Enabled() {
		return nil
	}
	msg, err := json.MarshalIndent(map[string]any{
		"event_type": eventType,
		"severity":   severity,
		"timestamp":  at.Format(time.RFC3339),
		"details":    details,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode compliance alert: %w", err)
	}
	_, err = s.alerts.Notify(ctx, fmt.Sprintf("[%s] GenAI Governance Alert: %s", severity, eventType), string(msg))
	return err
}

// QueryEvent describes one answered request.
type QueryEvent struct {
	RequestID        string
	UserID           string
	Query            string
	Response         string
	ModelID          string
	HasPII           bool
	GuardrailBlocked bool
	Latency          time.Duration
}

// LogQuery records a QUERY_PROCESSED event. The query itself is stored
// only as a hash. Requests that carried PII or tripped a guardrail are
// HIGH severity.
func (s *Service) LogQuery(ctx context.Context, q QueryEvent) (string, error) {
	sum := sha256.Sum256([]byte(q.Query))
	severity := SeverityInfo
	if q.HasPII || q.GuardrailBlocked {
		severity = SeverityHigh
	}
	return s.Log(ctx, EventQueryProcessed, q.UserID, map[string]any{
		"request_id":        q.RequestID,
		"query_hash":        hex.EncodeToString(sum[:]),
		"query_length":      utf8.RuneCountInString(q.Query),
		"response_length":   utf8.RuneCountInString(q.Response),
		"model_id":          q.ModelID,
		"has_pii":           q.HasPII,
		"guardrail_blocked": q.GuardrailBlocked,
		"latency_ms":        q.Latency.Milliseconds(),
	}, severity)
}
