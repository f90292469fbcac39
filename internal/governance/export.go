package governance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/lake"
	"genaiops/internal/objstore"
)

const dayLayout = "2006-01-02"

// AuditRow matches the audit_events Glue table columns.
type AuditRow struct {
	AuditID   string `parquet:"name=audit_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EventTime int64  `parquet:"name=event_time, type=INT64"`
	EventType string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	UserID    string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Severity  string `parquet:"name=severity, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Details   string `parquet:"name=details, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type HighSeverityEvent struct {
	AuditID   string `json:"audit_id"`
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
	Timestamp string `json:"timestamp"`
	UserID    string `json:"user_id"`
}

// Summary rates are percentages of all events and are absent for an
// empty day.
type Summary struct {
	TotalEvents        int                 `json:"total_events"`
	EventsByType       map[string]int      `json:"events_by_type"`
	EventsBySeverity   map[string]int      `json:"events_by_severity"`
	EventsByUser       map[string]int      `json:"events_by_user"`
	HighSeverityEvents []HighSeverityEvent `json:"high_severity_events"`
	PIIDetections      int                 `json:"pii_detections"`
	GuardrailBlocks    int                 `json:"guardrail_blocks"`
	TotalQueries       int                 `json:"total_queries"`
	PIIDetectionRate   *float64            `json:"pii_detection_rate,omitempty"`
	GuardrailBlockRate *float64            `json:"guardrail_block_rate,omitempty"`
}

func Summarize(evs []db.AuditEvent) Summary {
	s := Summary{
		TotalEvents:        len(evs),
		EventsByType:       map[string]int{},
		EventsBySeverity:   map[string]int{},
		EventsByUser:       map[string]int{},
		HighSeverityEvents: []HighSeverityEvent{},
	}
	for _, ev := range evs {
		typ := ev.EventType
		if typ == "" {
			typ = "unknown"
		}
		sev := ev.Severity
		if sev == "" {
			sev = SeverityInfo
		}
		user := ev.UserID
		if user == "" {
			user = "anonymous"
		}
		s.EventsByType[typ]++
		s.EventsBySeverity[sev]++
		s.EventsByUser[user]++

		if sev == SeverityHigh || sev == SeverityCritical {
			s.HighSeverityEvents = append(s.HighSeverityEvents, HighSeverityEvent{
				AuditID:   ev.AuditID,
				EventType: typ,
				Severity:  sev,
				Timestamp: ev.ISOTimestamp,
				UserID:    user,
			})
		}
		switch typ {
		case EventPIIDetected:
			s.PIIDetections++
		case EventGuardrailBlocked, EventContentBlocked, EventResponseBlocked:
			s.GuardrailBlocks++
		case EventQueryProcessed:
			s.TotalQueries++
		}
	}
	if s.TotalEvents > 0 {
		pii := float64(s.PIIDetections) / float64(s.TotalEvents) * 100
		blocks := float64(s.GuardrailBlocks) / float64(s.TotalEvents) * 100
		s.PIIDetectionRate = &pii
		s.GuardrailBlockRate = &blocks
	}
	return s
}

type Export struct {
	ExportID   string          `json:"export_id"`
	Date       string          `json:"date"`
	ExportedAt string          `json:"exported_at"`
	EventCount int             `json:"event_count"`
	Events     []db.AuditEvent `json:"events"`
	Summary    Summary         `json:"summary"`
}

type ExportResult struct {
	Date       string `json:"date"`
	Events     int    `json:"events"`
	ExportKey  string `json:"export_key"`
	SummaryKey string `json:"summary_key"`
	LakeKey    string `json:"lake_key,omitempty"`
}

type auditScanner interface {
	ScanRange(ctx context.Context, from, to time.Time) ([]db.AuditEvent, error)
}

// Exporter copies each UTC day of the audit trail to S3 as a JSON export,
// a summary and a Parquet partition for Athena.
type Exporter struct {
	trail  auditScanner
	store  *objstore.Store
	s3     lake.PutObjectAPI
	cfg    ExportConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewExporter(awsCfg aws.Config, c ExportConfig, logger *zap.Logger) *Exporter {
	s3c := s3.NewFromConfig(awsCfg)
	return &Exporter{
		trail:  db.NewAuditTrail(dynamodb.NewFromConfig(awsCfg), c.AuditTable),
		store:  objstore.New(s3c),
		s3:     s3c,
		cfg:    c,
		now:    time.Now,
		logger: logger,
	}
}

// ExportKeys returns the JSON export and summary keys for day.
func ExportKeys(day time.Time) (export, summary string) {
	dir := fmt.Sprintf("audit-exports/%s/%s", day.Format("2006/01"), day.Format(dayLayout))
	return dir + "/audit-log.json", dir + "/summary.json"
}

// Handle is triggered by an EventBridge schedule and exports the
// AUDIT_EXPORT_DAYS_BACK complete UTC days before today.
func (e *Exporter) Handle(ctx context.Context, _ events.CloudWatchEvent) ([]ExportResult, error) {
	today := e.now().UTC().Truncate(24 * time.Hour)
	days := e.cfg.DaysBack
	if days <= 0 {
		days = 1
	}
	out := make([]ExportResult, 0, days)
	for i := 1; i <= days; i++ {
		res, err := e.ExportDay(ctx, today.AddDate(0, 0, -i))
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// ExportDay writes the export for the UTC day containing day. Keys are
// stable, so a re-run replaces the previous export.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (ExportResult, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	date := start.Format(dayLayout)

	evs, err := e.trail.ScanRange(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return ExportResult{}, fmt.Errorf("scan audit dt=%s: %w", date, err)
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp < evs[j].Timestamp })
	if evs == nil {
		evs = []db.AuditEvent{}
	}

	exp := Export{
		ExportID:   "audit-export-" + date,
		Date:       date,
		ExportedAt: e.now().UTC().Format(time.RFC3339),
		EventCount: len(evs),
		Events:     evs,
		Summary:    Summarize(evs),
	}
	res := ExportResult{Date: date, Events: len(evs)}
	res.ExportKey, res.SummaryKey = ExportKeys(start)

	if err := e.store.PutJSON(ctx, e.cfg.Bucket, res.ExportKey, exp); err != nil {
		return res, err
	}
	if err := e.store.PutJSON(ctx, e.cfg.Bucket, res.SummaryKey, exp.Summary); err != nil {
		return res, err
	}

	if len(evs) > 0 {
		rows := make([]AuditRow, 0, len(evs))
		for _, ev := range evs {
			rows = append(rows, AuditRow{
				AuditID:   ev.AuditID,
				EventTime: ev.Timestamp,
				EventType: ev.EventType,
				UserID:    ev.UserID,
				Severity:  ev.Severity,
				Details:   ev.Details,
			})
		}
		res.LakeKey = lake.PartitionKey(e.cfg.LakePrefix, date, "audit_events")
		if err := lake.Upload(ctx, e.s3, e.cfg.Bucket, res.LakeKey, rows); err != nil {
			return res, fmt.Errorf("write audit parquet dt=%s: %w", date, err)
		}
	}

	e.logger.Info("audit day exported",
		zap.String("dt", date),
		zap.Int("events", len(evs)),
		zap.String("export_key", res.ExportKey))
	return res, nil
}
