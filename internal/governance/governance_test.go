package governance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"genaiops/internal/alerts"
	"genaiops/internal/db"
	"genaiops/internal/metrics"
	"genaiops/internal/nlp"
	"genaiops/internal/nlp/nlptest"
	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
)

type fakeDDB struct {
	puts []*dynamodb.PutItemInput
}

func (f *fakeDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDDB) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeDDB) event(t *testing.T, i int) db.AuditEvent {
	t.Helper()
	var ev db.AuditEvent
	require.NoError(t, attributevalue.UnmarshalMap(f.puts[i].Item, &ev))
	return ev
}

type fakeSNS struct {
	subjects []string
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.subjects = append(f.subjects, aws.ToString(in.Subject))
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

type fakeCW struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCW) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type harness struct {
	svc  *Service
	cmp  *nlptest.Comprehend
	ddb  *fakeDDB
	mem  *objstoretest.Memory
	sns  *fakeSNS
	cw   *fakeCW
	when time.Time
}

const contact = "Call Zoë at 555-0100 or zoe@example.com"

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cmp:  &nlptest.Comprehend{},
		ddb:  &fakeDDB{},
		mem:  objstoretest.NewMemory(),
		sns:  &fakeSNS{},
		cw:   &fakeCW{},
		when: time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC),
	}
	logger := zap.NewNop()
	h.svc = New(Deps{
		PII:     nlp.NewPIIDetector(h.cmp),
		Trail:   db.NewAuditTrail(h.ddb, "audit"),
		Archive: objstore.New(h.mem),
		Bucket:  "audit-logs",
		Alerts:  alerts.NewNotifier(h.sns, "arn:aws:sns:us-east-1:123:compliance"),
		Metrics: metrics.NewPublisher("GenAI/Governance", h.cw, logger),
	}, logger)
	h.svc.now = func() time.Time { return h.when }
	h.svc.newID = func() string { return "a-1" }
	return h
}

func TestRedactMasksAndAudits(t *testing.T) {
	h := newHarness(t)
	h.cmp.PII = []types.PiiEntity{
		{Type: types.PiiEntityTypeEmail, BeginOffset: aws.Int32(24), EndOffset: aws.Int32(39)},
		{Type: types.PiiEntityTypeName, BeginOffset: aws.Int32(5), EndOffset: aws.Int32(8)},
	}

	r := h.svc.Redact(context.Background(), contact, "u-1")
	assert.True(t, r.HasPII)
	assert.Equal(t, "Call [NAME] at 555-0100 or [EMAIL]", r.Text)
	assert.Equal(t, []string{"EMAIL", "NAME"}, r.PIITypes)
	assert.Equal(t, 2, r.EntityCount)

	require.Len(t, h.ddb.puts, 1)
	ev := h.ddb.event(t, 0)
	assert.Equal(t, EventPIIDetected, ev.EventType)
	assert.Equal(t, SeverityHigh, ev.Severity)
	assert.Equal(t, "u-1", ev.UserID)
	assert.JSONEq(t, `{"pii_types":["EMAIL","NAME"],"entity_count":2,"text_length":39}`, ev.Details)
	assert.NotContains(t, ev.Details, "zoe@example.com")

	_, ok := h.mem.Object("audit-logs", "audit-logs/2026/10/15/a-1.json")
	assert.True(t, ok)
	assert.Equal(t, []string{"[HIGH] GenAI Governance Alert: PII_DETECTED"}, h.sns.subjects)

	require.Len(t, h.cw.inputs, 1)
	d := h.cw.inputs[0].MetricData[0]
	assert.Equal(t, "PIIDetected", aws.ToString(d.MetricName))
	assert.Equal(t, "EMAIL,NAME", aws.ToString(d.Dimensions[0].Value))
}

func TestRedactPassesThrough(t *testing.T) {
	h := newHarness(t)
	r := h.svc.Redact(context.Background(), "nothing personal here", "")
	assert.False(t, r.HasPII)
	assert.Equal(t, "nothing personal here", r.Text)
	assert.Empty(t, h.ddb.puts)

	h.cmp.Err = errors.New("throttled")
	r = h.svc.Redact(context.Background(), contact, "")
	assert.Equal(t, contact, r.Text)
	assert.Contains(t, r.Error, "throttled")
	assert.Empty(t, h.ddb.puts)
	assert.Empty(t, h.sns.subjects)
}

func TestNilServiceIsNoop(t *testing.T) {
	var s *Service
	assert.Equal(t, Redaction{Text: contact}, s.Redact(context.Background(), contact, "u"))
	id, err := s.Log(context.Background(), EventQueryProcessed, "", nil, "")
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestLogQuerySeverity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.LogQuery(ctx, QueryEvent{RequestID: "r-1", Query: "what is my bill?", Response: "€12", ModelID: "m", Latency: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, "a-1", id)
	ev := h.ddb.event(t, 0)
	assert.Equal(t, SeverityInfo, ev.Severity)
	assert.Equal(t, "anonymous", ev.UserID)
	assert.NotContains(t, ev.Details, "bill")

	var details map[string]any
	require.NoError(t, json.Unmarshal([]byte(ev.Details), &details))
	assert.Equal(t, float64(16), details["query_length"])
	assert.Equal(t, float64(3), details["response_length"])
	assert.Equal(t, float64(1500), details["latency_ms"])
	assert.Len(t, details["query_hash"], 64)
	assert.Empty(t, h.sns.subjects)

	_, err = h.svc.LogQuery(ctx, QueryEvent{Query: "q", HasPII: true})
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, h.ddb.event(t, 1).Severity)
	assert.Equal(t, []string{"[HIGH] GenAI Governance Alert: QUERY_PROCESSED"}, h.sns.subjects)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]db.AuditEvent{
		{AuditID: "1", EventType: EventPIIDetected, Severity: SeverityHigh, UserID: "u-1", ISOTimestamp: "2026-10-15T01:00:00Z"},
		{AuditID: "2", EventType: EventQueryProcessed, Severity: SeverityInfo, UserID: "u-1"},
		{AuditID: "3", EventType: EventResponseBlocked, Severity: SeverityHigh},
		{AuditID: "4", EventType: EventQueryProcessed},
	})
	assert.Equal(t, 4, s.TotalEvents)
	assert.Equal(t, map[string]int{EventPIIDetected: 1, EventQueryProcessed: 2, EventResponseBlocked: 1}, s.EventsByType)
	assert.Equal(t, map[string]int{SeverityHigh: 2, SeverityInfo: 2}, s.EventsBySeverity)
	assert.Equal(t, map[string]int{"u-1": 2, "anonymous": 2}, s.EventsByUser)
	require.Len(t, s.HighSeverityEvents, 2)
	assert.Equal(t, "2026-10-15T01:00:00Z", s.HighSeverityEvents[0].Timestamp)
	assert.Equal(t, 1, s.PIIDetections)
	assert.Equal(t, 1, s.GuardrailBlocks)
	assert.Equal(t, 2, s.TotalQueries)
	require.NotNil(t, s.PIIDetectionRate)
	assert.InDelta(t, 25.0, *s.PIIDetectionRate, 1e-9)

	empty := Summarize(nil)
	assert.Nil(t, empty.PIIDetectionRate)
	assert.NotNil(t, empty.HighSeverityEvents)
}

type fakeScanner struct {
	evs      []db.AuditEvent
	from, to time.Time
}

func (f *fakeScanner) ScanRange(_ context.Context, from, to time.Time) ([]db.AuditEvent, error) {
	f.from, f.to = from, to
	return f.evs, nil
}

func TestExporterWritesYesterday(t *testing.T) {
	scan := &fakeScanner{evs: []db.AuditEvent{
		{AuditID: "b", Timestamp: 200, EventType: EventQueryProcessed, Severity: SeverityInfo, UserID: "u", Details: "{}"},
		{AuditID: "a", Timestamp: 100, EventType: EventPIIDetected, Severity: SeverityHigh, UserID: "u", Details: "{}"},
	}}
	mem := objstoretest.NewMemory()
	e := &Exporter{
		trail:  scan,
		store:  objstore.New(mem),
		s3:     mem,
		cfg:    ExportConfig{Bucket: "audit-logs", LakePrefix: "audit_events/", DaysBack: 1},
		now:    func() time.Time { return time.Date(2026, 10, 16, 0, 5, 0, 0, time.UTC) },
		logger: zap.NewNop(),
	}

	out, err := e.Handle(context.Background(), events.CloudWatchEvent{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	res := out[0]
	assert.Equal(t, "2026-10-15", res.Date)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), scan.from)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), scan.to)
	assert.Equal(t, "audit-exports/2026/10/2026-10-15/audit-log.json", res.ExportKey)
	assert.Equal(t, "audit-exports/2026/10/2026-10-15/summary.json", res.SummaryKey)
	assert.Equal(t, "audit_events/dt=2026-10-15/audit_events.parquet", res.LakeKey)

	b, ok := mem.Object("audit-logs", res.ExportKey)
	require.True(t, ok)
	var exp Export
	require.NoError(t, json.Unmarshal(b, &exp))
	assert.Equal(t, "audit-export-2026-10-15", exp.ExportID)
	assert.Equal(t, 2, exp.EventCount)
	assert.Equal(t, "a", exp.Events[0].AuditID)
	assert.Equal(t, 1, exp.Summary.PIIDetections)

	_, ok = mem.Object("audit-logs", res.SummaryKey)
	assert.True(t, ok)
	pq, ok := mem.Object("audit-logs", res.LakeKey)
	require.True(t, ok)
	assert.Equal(t, "PAR1", string(pq[:4]))
}

func TestExporterEmptyDaySkipsParquet(t *testing.T) {
	mem := objstoretest.NewMemory()
	e := &Exporter{
		trail:  &fakeScanner{},
		store:  objstore.New(mem),
		s3:     mem,
		cfg:    ExportConfig{Bucket: "audit-logs", LakePrefix: "audit_events/"},
		now:    time.Now,
		logger: zap.NewNop(),
	}
	res, err := e.ExportDay(context.Background(), time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, res.LakeKey)
	assert.Equal(t, []string{
		"audit-logs/audit-exports/2026/10/2026-10-15/audit-log.json",
		"audit-logs/audit-exports/2026/10/2026-10-15/summary.json",
	}, mem.Keys())
}
