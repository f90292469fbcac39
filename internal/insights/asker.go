package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"go.uber.org/zap"

	"genaiops/internal/analytics"
	"genaiops/internal/governance"
	"genaiops/internal/llm"
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrQueryFailed   = errors.New("query failed after retries")
)

const (
	planMaxTokens = 700
	KindScalar    = "scalar"
	KindTable     = "table"
)

// Plan is the model's compiled query.
type Plan struct {
	SQL                string   `json:"sql"`
	Confidence         float64  `json:"confidence"`
	Assumptions        []string `json:"assumptions"`
	NeedsClarification bool     `json:"needs_clarification"`
	ClarifyingQuestion string   `json:"clarifying_question"`
}

type Answer struct {
	Question           string           `json:"question"`
	SQL                string           `json:"sql,omitempty"`
	Confidence         float64          `json:"confidence"`
	Assumptions        []string         `json:"assumptions,omitempty"`
	NeedsClarification bool             `json:"needs_clarification"`
	ClarifyingQuestion string           `json:"clarifying_question,omitempty"`
	Kind               string           `json:"kind,omitempty"`
	Value              any              `json:"value,omitempty"`
	Columns            []string         `json:"columns,omitempty"`
	Rows               []map[string]any `json:"rows,omitempty"`
	QueryID            string           `json:"query_id,omitempty"`
	ScannedBytes       int64            `json:"scanned_bytes"`
	ExecutionMs        int64            `json:"execution_ms"`
	Attempts           int              `json:"attempts"`
}

type Asker struct {
	inv    llm.Invoker
	athena analytics.AthenaClient
	glue   GlueClient
	cfg    Config
	opts   analytics.QueryOptions
	gov    *governance.Service
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	schema string
}

func NewAsker(inv llm.Invoker, ath analytics.AthenaClient, gc GlueClient, cfg Config, logger *zap.Logger) *Asker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Asker{
		inv:    inv,
		athena: ath,
		glue:   gc,
		cfg:    cfg,
		opts: analytics.QueryOptions{
			Database:       cfg.Database,
			Workgroup:      cfg.Workgroup,
			OutputLocation: cfg.Output,
			MaxResultRows:  cfg.MaxRows,
		},
		logger: logger,
		now:    time.Now,
	}
}

func NewFromConfig(awsCfg aws.Config, c Config, logger *zap.Logger) *Asker {
	var inv llm.Invoker = llm.NewBreaker(llm.NewBedrock(bedrockruntime.NewFromConfig(awsCfg)), llm.DefaultBreakerConfig(), logger)
	if cache := llm.NewResponseCache(dynamodb.NewFromConfig(awsCfg), c.CacheTable, 0); cache != nil {
		inv = llm.NewCached(inv, cache)
	}
	a := NewAsker(inv, athena.NewFromConfig(awsCfg), glue.NewFromConfig(awsCfg), c, logger)
	return a.WithGovernance(governance.NewFromConfig(awsCfg, c.Governance, logger))
}

// WithGovernance masks PII in questions and audits every answer.
func (a *Asker) WithGovernance(g *governance.Service) *Asker {
	a.gov = g
	return a
}

// schemaText loads the catalog once; a failed load is retried on the next
// question.
func (a *Asker) schemaText(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.schema != "" {
		return a.schema, nil
	}
	schemas, err := LoadSchema(ctx, a.glue, a.cfg.Database, a.cfg.Tables)
	if err != nil {
		return "", err
	}
	a.schema = SchemaText(schemas)
	return a.schema, nil
}

func (a *Asker) plan(ctx context.Context, prompt string) (Plan, error) {
	comp, err := a.inv.Invoke(ctx, llm.Request{ModelID: a.cfg.Model, Prompt: prompt, MaxTokens: planMaxTokens})
	if err != nil {
		return Plan{}, err
	}
	var p Plan
	if err := llm.DecodeJSON(comp.Text, &p); err != nil {
		return Plan{}, err
	}
	p.SQL = strings.TrimSpace(p.SQL)
	return p, nil
}

// Ask compiles the question, validates the SQL and runs it. Rejected or
// failed queries are sent back to the model with the error up to
// MaxFixAttempts times. Detected PII is masked before prompting.
func (a *Asker) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	r := a.gov.Redact(ctx, question, "")
	start := a.now()
	ans, err := a.ask(ctx, r.Text)
	if _, aerr := a.gov.LogQuery(ctx, governance.QueryEvent{
		RequestID:        ans.QueryID,
		Query:            r.Text,
		Response:         ans.SQL,
		ModelID:          a.cfg.Model,
		HasPII:           r.HasPII,
		GuardrailBlocked: errors.Is(err, ErrRejectedSQL),
		Latency:          a.now().Sub(start),
	}); aerr != nil {
		a.logger.Error("audit insight query failed", zap.Error(aerr))
	}
	return ans, err
}

func (a *Asker) ask(ctx context.Context, question string) (Answer, error) {
	schema, err := a.schemaText(ctx)
	if err != nil {
		return Answer{}, err
	}

	today := a.now().UTC()
	in := PromptInput{
		Question:   question,
		SchemaText: schema,
		Tables:     a.cfg.Tables,
		DateColumn: a.cfg.DateColumn,
		Today:      today.Format(dateLayout),
		DateMin:    today.AddDate(0, 0, -a.cfg.MaxDaysLookback).Format(dateLayout),
	}
	guard := GuardOptions{Tables: a.cfg.Tables, DateColumn: a.cfg.DateColumn, MaxDaysLookback: a.cfg.MaxDaysLookback, Today: today}

	p, err := a.plan(ctx, BuildPrompt(in))
	if err != nil {
		return Answer{}, fmt.Errorf("compile question: %w", err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		ans := Answer{
			Question:           question,
			SQL:                p.SQL,
			Confidence:         p.Confidence,
			Assumptions:        p.Assumptions,
			NeedsClarification: p.NeedsClarification,
			ClarifyingQuestion: p.ClarifyingQuestion,
			Attempts:           attempt,
		}
		if p.NeedsClarification {
			return ans, nil
		}

		if lastErr = ValidateSQL(p.SQL, guard); lastErr == nil {
			res, qerr := analytics.Query(ctx, a.athena, p.SQL, a.opts)
			if qerr == nil {
				shape(&ans, res)
				a.logger.Info("question answered",
					zap.String("query_id", res.QueryExecutionID),
					zap.Int("rows", len(res.Rows)),
					zap.Int("attempts", attempt),
					zap.Int64("scanned_bytes", res.ScannedBytes),
				)
				return ans, nil
			}
			lastErr = qerr
		}
		a.logger.Warn("insight query attempt failed", zap.Int("attempt", attempt), zap.String("sql", llm.Truncate(p.SQL, 400)), zap.Error(lastErr))

		if attempt > a.cfg.MaxFixAttempts {
			return ans, fmt.Errorf("%w: %w", ErrQueryFailed, lastErr)
		}
		if p, err = a.plan(ctx, BuildFixPrompt(in, p.SQL, lastErr.Error())); err != nil {
			return ans, fmt.Errorf("fix attempt %d: %w", attempt, err)
		}
	}
}

// shape marks single-cell results as scalars.
func shape(ans *Answer, res *analytics.QueryResult) {
	ans.Columns = res.Columns
	ans.Rows = res.Rows
	ans.QueryID = res.QueryExecutionID
	ans.ScannedBytes = res.ScannedBytes
	ans.ExecutionMs = res.ExecutionMs
	ans.Kind = KindTable
	if len(res.Rows) == 1 && len(res.Columns) == 1 {
		ans.Kind = KindScalar
		ans.Value = res.Rows[0][res.Columns[0]]
	}
}
