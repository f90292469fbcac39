package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
	"genaiops/internal/db"
	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
)

type fakeAthena struct {
	sql    []string
	states []athenatypes.QueryExecutionState
	reason string
	header []string
	rows   [][]string
	polls  int
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.sql = append(f.sql, aws.ToString(in.QueryString))
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qid-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	st := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		st = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status: &athenatypes.QueryExecutionStatus{State: st, StateChangeReason: aws.String(f.reason)},
		Statistics: &athenatypes.QueryExecutionStatistics{
			DataScannedInBytes: aws.Int64(2048),
		},
	}}, nil
}

func datum(vals ...string) athenatypes.Row {
	r := athenatypes.Row{}
	for _, v := range vals {
		r.Data = append(r.Data, athenatypes.Datum{VarCharValue: aws.String(v)})
	}
	return r
}

func (f *fakeAthena) GetQueryResults(_ context.Context, _ *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	rs := &athenatypes.ResultSet{ResultSetMetadata: &athenatypes.ResultSetMetadata{}}
	for _, h := range f.header {
		rs.ResultSetMetadata.ColumnInfo = append(rs.ResultSetMetadata.ColumnInfo, athenatypes.ColumnInfo{Name: aws.String(h)})
	}
	rs.Rows = append(rs.Rows, datum(f.header...))
	for _, r := range f.rows {
		rs.Rows = append(rs.Rows, datum(r...))
	}
	return &athena.GetQueryResultsOutput{ResultSet: rs}, nil
}

var testOpts = QueryOptions{
	Database:       "feedback",
	OutputLocation: "s3://results/athena/",
	PollInterval:   time.Millisecond,
	MaxWait:        time.Second,
}

func TestQueryPollsAndCoerces(t *testing.T) {
	f := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning, athenatypes.QueryExecutionStateSucceeded},
		header: []string{"metric_date", "files", "avg_score"},
		rows:   [][]string{{"2026-05-09", "4", "0.85"}, {"2026-05-10", "", "0.5"}},
	}
	res, err := Query(context.Background(), f, "SELECT 1", testOpts)
	require.NoError(t, err)

	assert.Equal(t, 2, f.polls)
	assert.Equal(t, []string{"metric_date", "files", "avg_score"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, int64(4), res.Rows[0]["files"])
	assert.Equal(t, 0.85, res.Rows[0]["avg_score"])
	assert.Nil(t, res.Rows[1]["files"])
	assert.Equal(t, int64(2048), res.ScannedBytes)

	assert.Equal(t, 4.0, Float(res.Rows[0], "files"))
	assert.Equal(t, "2026-05-09", String(res.Rows[0], "metric_date"))
	assert.Equal(t, "", String(res.Rows[1], "files"))
}

func TestQueryFailure(t *testing.T) {
	f := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed}, reason: "SYNTAX_ERROR"}
	_, err := Query(context.Background(), f, "SELEC", testOpts)
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "FAILED", qe.State)
	assert.Equal(t, "SYNTAX_ERROR", qe.Reason)
}

func TestQueryTimeout(t *testing.T) {
	f := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning}}
	opts := testOpts
	opts.MaxWait = 5 * time.Millisecond
	_, err := Query(context.Background(), f, "SELECT 1", opts)
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "TIMEOUT", qe.State)
}

func TestQueryOptionValidation(t *testing.T) {
	_, err := Query(context.Background(), &fakeAthena{}, "SELECT 1", QueryOptions{Database: "d", OutputLocation: "bucket/x"})
	assert.Error(t, err)
	_, err = Query(context.Background(), &fakeAthena{}, "SELECT 1", QueryOptions{OutputLocation: "s3://b/"})
	assert.Error(t, err)
}

func TestPartitionRepairer(t *testing.T) {
	f := &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded}}
	h := &PartitionRepairer{
		athena:  f,
		cfg:     AthenaConfig{Database: "feedback", Table: "quality_scores", Workgroup: "primary", Output: "s3://results/"},
		maxWait: time.Second,
		poll:    time.Millisecond,
		logger:  zap.NewNop(),
	}
	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ok)
	assert.Equal(t, "MSCK REPAIR TABLE quality_scores;", f.sql[0])

	f = &fakeAthena{states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateCancelled}}
	h.athena = f
	res, err = h.Handle(context.Background())
	require.Error(t, err)
	assert.False(t, res.Ok)
	assert.Equal(t, "CANCELLED", res.State)
	assert.Equal(t, "qid-1", res.QueryID)
}

type fakeScanner struct {
	byDay map[string][]db.Record
	days  []string
}

func (f *fakeScanner) ScanDay(_ context.Context, kind, day string) ([]db.Record, error) {
	f.days = append(f.days, day)
	if kind != db.KindValidation {
		return nil, errors.New("unexpected kind " + kind)
	}
	return f.byDay[day], nil
}

func TestQualityETL(t *testing.T) {
	scan := &fakeScanner{byDay: map[string][]db.Record{
		"2026-05-09": {
			{Bucket: "feedback-data", SourceKey: "raw-data/a.txt", Source: "TextReviews", QualityScore: 0.8, ChecksPassed: 4, ChecksTotal: 5},
			{Bucket: "feedback-data", SourceKey: "raw-data/b.txt", Source: "TextReviews", QualityScore: 0.4, ChecksPassed: 2, ChecksTotal: 5},
		},
	}}
	mem := objstoretest.NewMemory()
	h := &QualityETL{
		records: scan,
		s3:      mem,
		cfg:     ETLConfig{Bucket: "lake", Prefix: "quality_scores/", DaysBack: 2, Threshold: 0.7},
		now:     func() time.Time { return time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC) },
		logger:  zap.NewNop(),
	}

	out, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-05-09", "2026-05-08"}, scan.days)
	assert.Equal(t, 1, out["written"])
	assert.Equal(t, 2, out["rows"])
	assert.Equal(t, []string{"2026-05-08"}, out["skipped"])
	assert.Equal(t, []string{"lake/quality_scores/dt=2026-05-09/quality_scores.parquet"}, mem.Keys())

	// a second run replaces the partition instead of adding a file
	_, err = h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Len(t, mem.Keys(), 1)

	row := h.row("2026-05-09", scan.byDay["2026-05-09"][1])
	assert.False(t, row.Passed)
	assert.Equal(t, int32(2), row.ChecksPassed)
}

func TestQualityETLUsesUTCDays(t *testing.T) {
	scan := &fakeScanner{}
	// 23:00 in New York is already 2026-10-16 in UTC
	ny := time.FixedZone("EDT", -4*60*60)
	h := &QualityETL{
		records: scan,
		s3:      objstoretest.NewMemory(),
		cfg:     ETLConfig{Bucket: "lake", Prefix: "quality_scores/", DaysBack: 1, IncludeToday: true},
		now:     func() time.Time { return time.Date(2026, 10, 15, 23, 0, 0, 0, ny) },
		logger:  zap.NewNop(),
	}
	_, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-10-16", "2026-10-15"}, scan.days)
}

func TestBuildReport(t *testing.T) {
	end := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	daily := []DayQuality{
		{Date: "2026-05-09", Files: 10, AverageScore: 0.9, PassRate: 0.9},
		{Date: "2026-05-10", Files: 10, AverageScore: 0.5, PassRate: 0.4},
	}
	rep := BuildReport(daily, end.AddDate(0, 0, -2), end, 3, 0.8)

	assert.Equal(t, "quality-report-2026-05-10", rep.ReportID)
	assert.Equal(t, 20, rep.Metrics.Files)
	assert.InDelta(t, 0.7, rep.Metrics.AverageScore, 1e-9)
	assert.InDelta(t, 0.65, rep.Metrics.PassRate, 1e-9)
	assert.Equal(t, "good", rep.Trends.QualityTrend)
	assert.Equal(t, "declining", rep.Trends.Direction)

	var cats []string
	for _, r := range rep.Recommendations {
		cats = append(cats, r.Category)
	}
	assert.Equal(t, []string{"quality", "quality", "trend", "coverage"}, cats)
}

func TestBuildReportNoData(t *testing.T) {
	end := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	rep := BuildReport(nil, end, end, 7, 0.7)
	assert.Equal(t, "no_data", rep.Trends.QualityTrend)
	require.Len(t, rep.Recommendations, 1)
	assert.Equal(t, "high", rep.Recommendations[0].Priority)

	b, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"daily":[]`)
}

type fakeSNS struct{ in *sns.PublishInput }

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestQualityReporter(t *testing.T) {
	f := &fakeAthena{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		header: []string{"metric_date", "files", "avg_score", "passed"},
		rows:   [][]string{{"2026-05-09", "4", "0.9", "4"}, {"2026-05-10", "4", "0.88", "3"}},
	}
	mem := objstoretest.NewMemory()
	pub := &fakeSNS{}
	h := &QualityReporter{
		athena:   f,
		store:    objstore.New(mem),
		notifier: alerts.NewNotifier(pub, "arn:aws:sns:us-east-1:123456789012:quality"),
		cfg: ReportConfig{
			Athena:    AthenaConfig{Database: "feedback", Table: "quality_scores", Output: "s3://results/"},
			Bucket:    "lake",
			Prefix:    "reports/quality/",
			Days:      2,
			Threshold: 0.7,
		},
		maxWait: time.Second,
		poll:    time.Millisecond,
		now:     func() time.Time { return time.Date(2026, 5, 10, 6, 0, 0, 0, time.UTC) },
		logger:  zap.NewNop(),
	}

	out, err := h.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	assert.Equal(t, "reports/quality/2026-05-10.json", out.ReportKey)
	assert.Equal(t, "excellent", out.QualityTrend)
	assert.Equal(t, "m-1", out.MessageID)
	assert.Contains(t, f.sql[0], "WHERE dt >= '2026-05-09'")

	var rep Report
	b, ok := mem.Object("lake", out.ReportKey)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(b, &rep))
	assert.Equal(t, 8, rep.Metrics.Files)
	assert.InDelta(t, 0.875, rep.Metrics.PassRate, 1e-9)
	assert.Empty(t, rep.Recommendations)

	assert.Contains(t, aws.ToString(pub.in.Message), "Full report: s3://lake/reports/quality/2026-05-10.json")
	assert.Equal(t, "Data Quality Report - 2026-05-10", aws.ToString(pub.in.Subject))
}
