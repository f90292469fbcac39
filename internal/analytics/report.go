package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
	"genaiops/internal/objstore"
)

type DayQuality struct {
	Date         string  `json:"date"`
	Files        int     `json:"files"`
	AverageScore float64 `json:"average_score"`
	PassRate     float64 `json:"pass_rate"`
}

type QualityMetrics struct {
	Files        int     `json:"files"`
	AverageScore float64 `json:"average_score"`
	PassRate     float64 `json:"pass_rate"`
	DaysWithData int     `json:"days_with_data"`
}

type Trends struct {
	QualityTrend string   `json:"quality_trend"`
	Direction    string   `json:"direction"`
	Insights     []string `json:"insights"`
}

type Recommendation struct {
	Priority       string `json:"priority"`
	Category       string `json:"category"`
	Issue          string `json:"issue"`
	Recommendation string `json:"recommendation"`
}

type Report struct {
	ReportID        string           `json:"report_id"`
	StartDate       string           `json:"start_date"`
	EndDate         string           `json:"end_date"`
	GeneratedAt     string           `json:"generated_at"`
	Threshold       float64          `json:"threshold"`
	Metrics         QualityMetrics   `json:"metrics"`
	Daily           []DayQuality     `json:"daily"`
	Trends          Trends           `json:"trends"`
	Recommendations []Recommendation `json:"recommendations"`
}

type ReportResult struct {
	Ok           bool   `json:"ok"`
	ReportKey    string `json:"report_key"`
	Date         string `json:"date"`
	QualityTrend string `json:"quality_trend"`
	MessageID    string `json:"message_id,omitempty"`
}

// QualityReporter summarizes the last REPORT_DAYS of quality scores,
// stores the report on S3 and mails a digest through SNS.
type QualityReporter struct {
	athena   AthenaClient
	store    *objstore.Store
	notifier *alerts.Notifier
	cfg      ReportConfig
	maxWait  time.Duration
	poll     time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewQualityReporter(awsCfg aws.Config, c ReportConfig, logger *zap.Logger) *QualityReporter {
	return &QualityReporter{
		athena:   athena.NewFromConfig(awsCfg),
		store:    objstore.New(s3.NewFromConfig(awsCfg)),
		notifier: alerts.NewNotifier(sns.NewFromConfig(awsCfg), c.TopicArn),
		cfg:      c,
		maxWait:  60 * time.Second,
		poll:     time.Second,
		now:      time.Now,
		logger:   logger,
	}
}

func dailyQualitySQL(table, startDay string, threshold float64) string {
	return fmt.Sprintf(`SELECT metric_date,
       COUNT(*) AS files,
       AVG(quality_score) AS avg_score,
       SUM(CASE WHEN quality_score >= %g THEN 1 ELSE 0 END) AS passed
FROM %s
WHERE dt >= '%s'
GROUP BY metric_date
ORDER BY metric_date`, threshold, table, startDay)
}

func (h *QualityReporter) Handle(ctx context.Context, _ events.CloudWatchEvent) (ReportResult, error) {
	end := h.now().UTC()
	start := end.AddDate(0, 0, -(h.cfg.Days - 1))
	startDay, endDay := start.Format("2006-01-02"), end.Format("2006-01-02")

	res, err := Query(ctx, h.athena, dailyQualitySQL(h.cfg.Athena.Table, startDay, h.cfg.Threshold),
		h.cfg.Athena.options(h.maxWait, h.poll))
	if err != nil {
		return ReportResult{}, fmt.Errorf("query daily quality: %w", err)
	}

	daily := make([]DayQuality, 0, len(res.Rows))
	for _, row := range res.Rows {
		files := int(Float(row, "files"))
		d := DayQuality{Date: String(row, "metric_date"), Files: files, AverageScore: Float(row, "avg_score")}
		if files > 0 {
			d.PassRate = Float(row, "passed") / float64(files)
		}
		daily = append(daily, d)
	}

	rep := BuildReport(daily, start, end, h.cfg.Days, h.cfg.Threshold)
	rep.GeneratedAt = h.now().UTC().Format(time.RFC3339)

	key := h.cfg.Prefix + endDay + ".json"
	if err := h.store.PutJSON(ctx, h.cfg.Bucket, key, rep); err != nil {
		return ReportResult{}, err
	}
	h.logger.Info("quality report stored",
		zap.String("key", key),
		zap.Int("files", rep.Metrics.Files),
		zap.String("trend", rep.Trends.QualityTrend))

	out := ReportResult{Ok: true, ReportKey: key, Date: endDay, QualityTrend: rep.Trends.QualityTrend}
	if h.notifier.Enabled() {
		id, err := h.notifier.Notify(ctx, "Data Quality Report - "+endDay, Digest(rep, h.cfg.Bucket, key))
		if err != nil {
			// digest is best effort once the report is stored
			h.logger.Warn("report digest not sent", zap.Error(err))
		}
		out.MessageID = id
	}
	return out, nil
}

// BuildReport aggregates daily rows into metrics, trends and
// recommendations.
func BuildReport(daily []DayQuality, start, end time.Time, days int, threshold float64) Report {
	rep := Report{
		ReportID:        "quality-report-" + end.Format("2006-01-02"),
		StartDate:       start.Format("2006-01-02"),
		EndDate:         end.Format("2006-01-02"),
		Threshold:       threshold,
		Daily:           daily,
		Recommendations: []Recommendation{},
	}
	if rep.Daily == nil {
		rep.Daily = []DayQuality{}
	}

	var scoreSum, passed float64
	for _, d := range daily {
		if d.Files == 0 {
			continue
		}
		rep.Metrics.Files += d.Files
		rep.Metrics.DaysWithData++
		scoreSum += d.AverageScore * float64(d.Files)
		passed += d.PassRate * float64(d.Files)
	}
	if rep.Metrics.Files > 0 {
		rep.Metrics.AverageScore = scoreSum / float64(rep.Metrics.Files)
		rep.Metrics.PassRate = passed / float64(rep.Metrics.Files)
	}

	rep.Trends = trends(rep.Metrics, daily)
	rep.Recommendations = recommendations(rep, days)
	return rep
}

func trends(m QualityMetrics, daily []DayQuality) Trends {
	t := Trends{QualityTrend: "no_data", Direction: "stable", Insights: []string{}}

	switch avg := m.AverageScore; {
	case m.Files == 0:
		t.Insights = append(t.Insights, "No validation results in the report window")
	case avg > 0.8:
		t.QualityTrend = "excellent"
		t.Insights = append(t.Insights, "Average text quality is excellent (>0.8)")
	case avg > 0.6:
		t.QualityTrend = "good"
		t.Insights = append(t.Insights, "Average text quality is good (0.6-0.8)")
	default:
		t.QualityTrend = "needs_improvement"
		t.Insights = append(t.Insights, "Average text quality needs improvement (<0.6)")
	}

	var withData []DayQuality
	for _, d := range daily {
		if d.Files > 0 {
			withData = append(withData, d)
		}
	}
	if len(withData) >= 2 {
		delta := withData[len(withData)-1].AverageScore - withData[0].AverageScore
		switch {
		case delta > 0.05:
			t.Direction = "improving"
		case delta < -0.05:
			t.Direction = "declining"
		}
		t.Insights = append(t.Insights, fmt.Sprintf("Average score moved %+.2f from %s to %s",
			delta, withData[0].Date, withData[len(withData)-1].Date))
	}
	return t
}

func recommendations(rep Report, days int) []Recommendation {
	recs := []Recommendation{}
	m := rep.Metrics

	if m.Files == 0 {
		return append(recs, Recommendation{
			Priority:       "high",
			Category:       "coverage",
			Issue:          "No validation results in the report window",
			Recommendation: "Check the raw-data upload trigger and the quality ETL schedule",
		})
	}
	if m.AverageScore < rep.Threshold {
		recs = append(recs, Recommendation{
			Priority:       "high",
			Category:       "quality",
			Issue:          fmt.Sprintf("Low average quality score (%.2f)", m.AverageScore),
			Recommendation: "Review submission guidance for the sources with the lowest scores",
		})
	}
	if m.PassRate < 0.7 {
		recs = append(recs, Recommendation{
			Priority:       "high",
			Category:       "quality",
			Issue:          fmt.Sprintf("Low pass rate (%.1f%%)", m.PassRate*100),
			Recommendation: "Inspect rejected reviews and tune PRODUCT_REGEX and OPINION_REGEX if they are too strict",
		})
	}
	if rep.Trends.Direction == "declining" {
		recs = append(recs, Recommendation{
			Priority:       "medium",
			Category:       "trend",
			Issue:          "Quality is declining over the report window",
			Recommendation: "Compare recent uploads against earlier ones for new sources or formats",
		})
	}
	if missing := days - m.DaysWithData; missing > 0 {
		recs = append(recs, Recommendation{
			Priority:       "medium",
			Category:       "coverage",
			Issue:          fmt.Sprintf("No validations on %d of %d days", missing, days),
			Recommendation: "Check the raw-data upload trigger and the quality ETL schedule",
		})
	}
	return recs
}

// Digest is the plain-text SNS body for a report.
func Digest(rep Report, bucket, key string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data Quality Report - %s to %s\n\n", rep.StartDate, rep.EndDate)
	b.WriteString("QUALITY METRICS:\n")
	fmt.Fprintf(&b, "- Files Validated: %d\n", rep.Metrics.Files)
	fmt.Fprintf(&b, "- Average Score: %.2f\n", rep.Metrics.AverageScore)
	fmt.Fprintf(&b, "- Pass Rate: %.1f%%\n", rep.Metrics.PassRate*100)
	fmt.Fprintf(&b, "- Trend: %s (%s)\n", rep.Trends.QualityTrend, rep.Trends.Direction)

	if len(rep.Recommendations) > 0 {
		b.WriteString("\nRECOMMENDATIONS:\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", strings.ToUpper(r.Priority), r.Issue, r.Recommendation)
		}
	}
	fmt.Fprintf(&b, "\nFull report: s3://%s/%s\n", bucket, key)
	return b.String()
}
