package insights

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	comptypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"genaiops/internal/db"
	"genaiops/internal/governance"
	"genaiops/internal/llm"
	"genaiops/internal/nlp"
	"genaiops/internal/nlp/nlptest"
	"genaiops/internal/objstore"
	"genaiops/internal/objstore/objstoretest"
)

var today = time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

func guardOpts() GuardOptions {
	return GuardOptions{Tables: []string{"quality_scores"}, DateColumn: "dt", MaxDaysLookback: 30, Today: today}
}

func TestValidateSQLAccepts(t *testing.T) {
	for _, sql := range []string{
		"SELECT COALESCE(AVG(quality_score), 0) AS avg_score FROM quality_scores WHERE dt >= '2026-05-01'",
		"select * from feedback.quality_scores where dt between date '2026-04-20' and date '2026-05-01'",
		`select * from "feedback"."quality_scores" where dt > date '2026-04-10'`,
		"WITH daily AS (SELECT dt, count(*) AS c FROM quality_scores WHERE dt >= '2026-05-01' GROUP BY dt) SELECT * FROM daily",
		"SELECT extract(year from metric_date) AS y FROM quality_scores WHERE dt >= '2026-05-01'",
		"select created_at, updated_by from quality_scores where dt >= '2026-05-01'",
		"select * from quality_scores where dt >= '2026-05-01' and (source = 'a' or source = 'b')",
		"select * from quality_scores where note = 'from payroll' and dt >= '2026-05-01'",
		"select s.dt from (select dt from quality_scores where dt >= '2026-05-01') s",
		"with a as (select 1 from quality_scores where dt >= '2026-05-01'), b as (select 2 from a) select * from a, b",
	} {
		assert.NoError(t, ValidateSQL(sql, guardOpts()), sql)
	}
}

func TestValidateSQLRejects(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{"", "empty sql"},
		{"select * from quality_scores where dt >= '2026-05-01'; drop table x", "semicolon"},
		{"select * from quality_scores where dt >= '2026-05-01' -- all", "comments"},
		{"show tables", "only SELECT"},
		{"select * from quality_scores where dt >= '2026-05-01' or delete", "disallowed keyword: delete"},
		{"select * from users where dt >= '2026-05-01'", "table not allowed: users"},
		{"select * from quality_scores where dt <= '2026-05-01'", "lower bound"},
		{"select count(*) from quality_scores", "missing required dt filter"},
		{"select * from quality_scores where dt >= '2026-01-01'", "lookback too large"},
		{"select 1", "reads no table"},
		{"select * from quality_scores, secret_db.payroll where dt >= '2026-05-01'", "table not allowed: payroll"},
		{"select * from quality_scores q, payroll p where dt >= '2026-05-01'", "table not allowed: payroll"},
		{"select * from quality_scores q left join hr.payroll p on q.file_id = p.id where dt >= '2026-05-01'", "table not allowed: payroll"},
		{"select * from quality_scores cross join unnest(tags) as t(x) where dt >= '2026-05-01'", "unsupported table reference"},
		{"select * from quality_scores where dt >= '2026-05-01' or dt < '2000-01-01'", "cannot be combined with OR"},
		{"select * from quality_scores where (dt >= '2026-05-01') or passed", "cannot be combined with OR"},
		{"select * from quality_scores where passed = true or dt between '2026-05-01' and '2026-05-09'", "cannot be combined with OR"},
	}
	for _, tc := range cases {
		err := ValidateSQL(tc.sql, guardOpts())
		require.Error(t, err, tc.sql)
		assert.ErrorIs(t, err, ErrRejectedSQL)
		assert.Contains(t, err.Error(), tc.want, tc.sql)
	}
}

type fakeGlue struct {
	calls int
	err   error
}

func (f *fakeGlue) GetTable(_ context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &glue.GetTableOutput{Table: &gluetypes.Table{
		Name: in.Name,
		StorageDescriptor: &gluetypes.StorageDescriptor{
			Location: aws.String("s3://lake/quality_scores/"),
			Columns: []gluetypes.Column{
				{Name: aws.String("quality_score"), Type: aws.String("DOUBLE")},
				{Name: aws.String("file_id"), Type: aws.String("string")},
			},
		},
		PartitionKeys: []gluetypes.Column{{Name: aws.String("dt"), Type: aws.String("string")}},
	}}, nil
}

func TestSchemaText(t *testing.T) {
	schemas, err := LoadSchema(context.Background(), &fakeGlue{}, "feedback", []string{"quality_scores"})
	require.NoError(t, err)
	want := "DATABASE feedback\n" +
		"TABLE quality_scores (\n" +
		"  file_id string,\n" +
		"  quality_score double\n" +
		")\n" +
		"PARTITIONED BY (dt string)\n" +
		"LOCATION s3://lake/quality_scores/\n"
	assert.Equal(t, want, SchemaText(schemas))
}

type scriptedInvoker struct {
	replies []string
	prompts []string
}

func (s *scriptedInvoker) Invoke(_ context.Context, r llm.Request) (llm.Completion, error) {
	s.prompts = append(s.prompts, r.Prompt)
	if len(s.replies) == 0 {
		return llm.Completion{}, errors.New("no reply scripted")
	}
	text := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return llm.Completion{ModelID: r.ModelID, Text: text}, nil
}

// fakeAthena fails any query mentioning bad_col.
type fakeAthena struct {
	sql    []string
	header []string
	rows   [][]string
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.sql = append(f.sql, aws.ToString(in.QueryString))
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("q-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	st := athenatypes.QueryExecutionStateSucceeded
	if strings.Contains(f.sql[len(f.sql)-1], "bad_col") {
		st = athenatypes.QueryExecutionStateFailed
	}
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status:     &athenatypes.QueryExecutionStatus{State: st, StateChangeReason: aws.String("COLUMN_NOT_FOUND: bad_col")},
		Statistics: &athenatypes.QueryExecutionStatistics{DataScannedInBytes: aws.Int64(512)},
	}}, nil
}

func row(vals ...string) athenatypes.Row {
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
	rs.Rows = append(rs.Rows, row(f.header...))
	for _, r := range f.rows {
		rs.Rows = append(rs.Rows, row(r...))
	}
	return &athena.GetQueryResultsOutput{ResultSet: rs}, nil
}

const (
	goodPlan = `{"sql":"SELECT COALESCE(COUNT(*), 0) AS files FROM quality_scores WHERE dt >= '2026-05-01'","confidence":0.9,"assumptions":["files means validated files"]}`
	badPlan  = `{"sql":"SELECT bad_col FROM quality_scores WHERE dt >= '2026-05-01'","confidence":0.4}`
)

func newAsker(inv llm.Invoker, ath *fakeAthena, gc *fakeGlue, maxFix int) *Asker {
	a := NewAsker(inv, ath, gc, Config{
		Model:           DefaultModel,
		Database:        "feedback",
		Tables:          []string{"quality_scores"},
		Output:          "s3://results/athena/",
		DateColumn:      "dt",
		MaxDaysLookback: 30,
		MaxFixAttempts:  maxFix,
		MaxRows:         100,
	}, zap.NewNop())
	a.now = func() time.Time { return today }
	return a
}

func TestAskScalar(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{"Here you go:\n" + goodPlan}}
	ath := &fakeAthena{header: []string{"files"}, rows: [][]string{{"12"}}}
	a := newAsker(inv, ath, &fakeGlue{}, 2)

	ans, err := a.Ask(context.Background(), "  how many files were validated this month? ")
	require.NoError(t, err)
	assert.Equal(t, "how many files were validated this month?", ans.Question)
	assert.Equal(t, KindScalar, ans.Kind)
	assert.Equal(t, int64(12), ans.Value)
	assert.Equal(t, 1, ans.Attempts)
	assert.Equal(t, "q-1", ans.QueryID)
	assert.Equal(t, int64(512), ans.ScannedBytes)
	assert.Equal(t, []string{"files means validated files"}, ans.Assumptions)

	require.Len(t, inv.prompts, 1)
	assert.Contains(t, inv.prompts[0], "TABLE quality_scores (")
	assert.Contains(t, inv.prompts[0], "dt >= '2026-04-10'")
	assert.Contains(t, inv.prompts[0], "TODAY: 2026-05-10")
}

func TestAskTable(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{goodPlan}}
	ath := &fakeAthena{header: []string{"dt", "files"}, rows: [][]string{{"2026-05-01", "3"}, {"2026-05-02", "4"}}}
	ans, err := newAsker(inv, ath, &fakeGlue{}, 0).Ask(context.Background(), "files per day")
	require.NoError(t, err)
	assert.Equal(t, KindTable, ans.Kind)
	assert.Nil(t, ans.Value)
	assert.Len(t, ans.Rows, 2)
}

func TestAskRepairsFailedQuery(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{badPlan, goodPlan}}
	ath := &fakeAthena{header: []string{"files"}, rows: [][]string{{"7"}}}
	ans, err := newAsker(inv, ath, &fakeGlue{}, 2).Ask(context.Background(), "how many files?")
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Attempts)
	assert.Equal(t, int64(7), ans.Value)
	require.Len(t, inv.prompts, 2)
	assert.Contains(t, inv.prompts[1], "PREVIOUS SQL:\nSELECT bad_col")
	assert.Contains(t, inv.prompts[1], "COLUMN_NOT_FOUND")
	assert.Len(t, ath.sql, 2)
}

func TestAskRepairsRejectedQuery(t *testing.T) {
	rejected := `{"sql":"SELECT * FROM users WHERE dt >= '2026-05-01'"}`
	inv := &scriptedInvoker{replies: []string{rejected, goodPlan}}
	ath := &fakeAthena{header: []string{"files"}, rows: [][]string{{"1"}}}
	ans, err := newAsker(inv, ath, &fakeGlue{}, 1).Ask(context.Background(), "how many users?")
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Attempts)
	assert.Contains(t, inv.prompts[1], "table not allowed: users")
	assert.Len(t, ath.sql, 1)
}

func TestAskGivesUp(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{badPlan}}
	ath := &fakeAthena{}
	ans, err := newAsker(inv, ath, &fakeGlue{}, 1).Ask(context.Background(), "how many files?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.Equal(t, 2, ans.Attempts)
	assert.Len(t, inv.prompts, 2)
	assert.Len(t, ath.sql, 2)
}

func TestAskClarification(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{`{"needs_clarification":true,"clarifying_question":"Which product line?","sql":""}`}}
	ath := &fakeAthena{}
	ans, err := newAsker(inv, ath, &fakeGlue{}, 2).Ask(context.Background(), "how is it going?")
	require.NoError(t, err)
	assert.True(t, ans.NeedsClarification)
	assert.Equal(t, "Which product line?", ans.ClarifyingQuestion)
	assert.Empty(t, ath.sql)
}

func TestAskEmptyQuestion(t *testing.T) {
	_, err := newAsker(&scriptedInvoker{}, &fakeAthena{}, &fakeGlue{}, 0).Ask(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func auditedAsker(inv llm.Invoker, ath *fakeAthena, maxFix int, pii ...comptypes.PiiEntity) (*Asker, *objstoretest.Memory) {
	mem := objstoretest.NewMemory()
	gov := governance.New(governance.Deps{
		PII:     nlp.NewPIIDetector(&nlptest.Comprehend{PII: pii}),
		Archive: objstore.New(mem),
		Bucket:  "audit",
	}, zap.NewNop())
	return newAsker(inv, ath, &fakeGlue{}, maxFix).WithGovernance(gov), mem
}

func archived(t *testing.T, mem *objstoretest.Memory) map[string]db.AuditEvent {
	t.Helper()
	out := map[string]db.AuditEvent{}
	for _, k := range mem.Keys() {
		body, ok := mem.Object("audit", strings.TrimPrefix(k, "audit/"))
		require.True(t, ok, k)
		var ev db.AuditEvent
		require.NoError(t, json.Unmarshal(body, &ev))
		out[ev.EventType] = ev
	}
	return out
}

func TestAskRedactsQuestion(t *testing.T) {
	inv := &scriptedInvoker{replies: []string{goodPlan}}
	ath := &fakeAthena{header: []string{"files"}, rows: [][]string{{"4"}}}
	a, mem := auditedAsker(inv, ath, 0, comptypes.PiiEntity{
		Type: comptypes.PiiEntityTypeEmail, Score: aws.Float32(0.99),
		BeginOffset: aws.Int32(19), EndOffset: aws.Int32(35),
	})

	ans, err := a.Ask(context.Background(), "how many files did jane@example.com validate?")
	require.NoError(t, err)
	assert.Equal(t, "how many files did [EMAIL] validate?", ans.Question)
	require.Len(t, inv.prompts, 1)
	assert.NotContains(t, inv.prompts[0], "jane@example.com")

	evs := archived(t, mem)
	require.Len(t, evs, 2)
	assert.Contains(t, evs, governance.EventPIIDetected)
	q := evs[governance.EventQueryProcessed]
	assert.Equal(t, governance.SeverityHigh, q.Severity)
	assert.Contains(t, q.Details, `"request_id":"q-1"`)
	assert.NotContains(t, q.Details, "jane")
}

func TestAskAuditsRejectedSQL(t *testing.T) {
	rejected := `{"sql":"SELECT * FROM users WHERE dt >= '2026-05-01'"}`
	inv := &scriptedInvoker{replies: []string{rejected}}
	ath := &fakeAthena{}
	a, mem := auditedAsker(inv, ath, 0)

	_, err := a.Ask(context.Background(), "how many users?")
	require.ErrorIs(t, err, ErrQueryFailed)
	assert.ErrorIs(t, err, ErrRejectedSQL)
	assert.Empty(t, ath.sql)

	evs := archived(t, mem)
	require.Len(t, evs, 1)
	q := evs[governance.EventQueryProcessed]
	assert.Equal(t, governance.SeverityHigh, q.Severity)
	assert.Contains(t, q.Details, `"guardrail_blocked":true`)
}

func TestSchemaLoadedOnceAndRetriedOnFailure(t *testing.T) {
	gc := &fakeGlue{err: errors.New("access denied")}
	inv := &scriptedInvoker{replies: []string{goodPlan}}
	ath := &fakeAthena{header: []string{"files"}, rows: [][]string{{"1"}}}
	a := newAsker(inv, ath, gc, 0)

	_, err := a.Ask(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	gc.err = nil
	for i := 0; i < 2; i++ {
		_, err = a.Ask(context.Background(), "q")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, gc.calls)
}
