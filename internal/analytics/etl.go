package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/lake"
)

// QualityScoreRow matches the quality_scores Glue table columns.
type QualityScoreRow struct {
	Bucket       string  `parquet:"name=bucket, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FileKey      string  `parquet:"name=file_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source       string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	MetricDate   string  `parquet:"name=metric_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"` // YYYY-MM-DD
	QualityScore float64 `parquet:"name=quality_score, type=DOUBLE"`
	ChecksPassed int32   `parquet:"name=checks_passed, type=INT32"`
	ChecksTotal  int32   `parquet:"name=checks_total, type=INT32"`
	Passed       bool    `parquet:"name=passed, type=BOOLEAN"`
	ValidatedAt  string  `parquet:"name=validated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type recordScanner interface {
	ScanDay(ctx context.Context, kind, day string) ([]db.Record, error)
}

// QualityETL copies a window of validation records from DynamoDB into
// day-partitioned Parquet objects.
type QualityETL struct {
	records recordScanner
	s3      lake.PutObjectAPI
	cfg     ETLConfig
	now     func() time.Time
	logger  *zap.Logger
}

func NewQualityETL(awsCfg aws.Config, c ETLConfig, logger *zap.Logger) *QualityETL {
	return &QualityETL{
		records: db.NewRecords(dynamodb.NewFromConfig(awsCfg), c.ProcessingTable),
		s3:      s3.NewFromConfig(awsCfg),
		cfg:     c,
		now:     time.Now,
		logger:  logger,
	}
}

// Handle is triggered by an EventBridge schedule. It exports the
// ETL_DAYS_BACK complete UTC days before today, plus today when
// ETL_INCLUDE_TODAY is set. Each day owns a single object that is
// replaced on every run. Days without validations are skipped.
func (h *QualityETL) Handle(ctx context.Context, _ events.CloudWatchEvent) (map[string]any, error) {
	// CreatedAt is stored in UTC, so partitions are UTC days too.
	now := h.now().UTC()
	written, rowsTotal := 0, 0
	var keys []string
	var skipped []string

	first := 1
	if h.cfg.IncludeToday {
		first = 0
	}
	for i := first; i <= h.cfg.DaysBack; i++ {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")

		recs, err := h.records.ScanDay(ctx, db.KindValidation, day)
		if err != nil {
			return nil, fmt.Errorf("scan validations dt=%s: %w", day, err)
		}
		if len(recs) == 0 {
			skipped = append(skipped, day)
			continue
		}

		rows := make([]QualityScoreRow, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, h.row(day, r))
		}

		key := lake.PartitionKey(h.cfg.Prefix, day, "quality_scores")
		if err := lake.Upload(ctx, h.s3, h.cfg.Bucket, key, rows); err != nil {
			return nil, fmt.Errorf("write parquet dt=%s: %w", day, err)
		}
		h.logger.Info("quality partition written",
			zap.String("dt", day),
			zap.String("key", key),
			zap.Int("rows", len(rows)))

		written++
		rowsTotal += len(rows)
		keys = append(keys, key)
	}

	return map[string]any{
		"ok":        true,
		"days_back": h.cfg.DaysBack,
		"written":   written,
		"rows":      rowsTotal,
		"keys":      keys,
		"skipped":   skipped,
		"bucket":    h.cfg.Bucket,
		"prefix":    h.cfg.Prefix,
	}, nil
}

func (h *QualityETL) row(day string, r db.Record) QualityScoreRow {
	return QualityScoreRow{
		Bucket:       r.Bucket,
		FileKey:      r.SourceKey,
		Source:       r.Source,
		MetricDate:   day,
		QualityScore: r.QualityScore,
		ChecksPassed: int32(r.ChecksPassed),
		ChecksTotal:  int32(r.ChecksTotal),
		Passed:       r.QualityScore >= h.cfg.Threshold,
		ValidatedAt:  r.CreatedAt,
	}
}
