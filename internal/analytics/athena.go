// Package analytics builds the quality-score lake on S3 and queries it
// with Athena.
package analytics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

type QueryOptions struct {
	Database       string
	Workgroup      string
	OutputLocation string // s3://.../athena-results/
	MaxWait        time.Duration
	PollInterval   time.Duration
	MaxResultRows  int
}

func (o *QueryOptions) defaults() error {
	if strings.TrimSpace(o.Database) == "" {
		return fmt.Errorf("missing athena database")
	}
	if strings.TrimSpace(o.OutputLocation) == "" {
		return fmt.Errorf("missing athena output location")
	}
	if !strings.HasPrefix(o.OutputLocation, "s3://") {
		return fmt.Errorf("athena output location must start with s3://")
	}
	if strings.TrimSpace(o.Workgroup) == "" {
		o.Workgroup = "primary"
	}
	if o.MaxWait == 0 {
		o.MaxWait = 25 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 700 * time.Millisecond
	}
	if o.MaxResultRows == 0 {
		o.MaxResultRows = 500
	}
	return nil
}

type QueryResult struct {
	QueryExecutionID string
	Columns          []string
	Rows             []map[string]any
	ScannedBytes     int64
	ExecutionMs      int64
}

type QueryError struct {
	State            string
	Reason           string
	QueryExecutionID string
}

func (e *QueryError) Error() string {
	if e.QueryExecutionID != "" {
		return fmt.Sprintf("athena %s: %s (qid=%s)", e.State, e.Reason, e.QueryExecutionID)
	}
	return fmt.Sprintf("athena %s: %s", e.State, e.Reason)
}

// Exec runs a statement and waits for it to finish without reading
// results. Used for DDL such as MSCK REPAIR TABLE.
func Exec(ctx context.Context, c AthenaClient, sql string, opt QueryOptions) (string, *athenatypes.QueryExecution, error) {
	if err := opt.defaults(); err != nil {
		return "", nil, err
	}
	qid, err := start(ctx, c, sql, opt)
	if err != nil {
		return "", nil, err
	}
	exec, err := wait(ctx, c, qid, opt)
	return qid, exec, err
}

// Query runs sql and returns up to MaxResultRows rows keyed by column.
func Query(ctx context.Context, c AthenaClient, sql string, opt QueryOptions) (*QueryResult, error) {
	if err := opt.defaults(); err != nil {
		return nil, err
	}
	qid, exec, err := Exec(ctx, c, sql, opt)
	if err != nil {
		return nil, err
	}

	var (
		nextToken *string
		allRows   []athenatypes.Row
		colInfo   []athenatypes.ColumnInfo
	)
	for {
		resOut, err := c.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(qid),
			NextToken:        nextToken,
			MaxResults:       aws.Int32(1000),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryResults: %w", err)
		}
		if resOut.ResultSet == nil {
			break
		}
		if colInfo == nil && resOut.ResultSet.ResultSetMetadata != nil {
			colInfo = resOut.ResultSet.ResultSetMetadata.ColumnInfo
		}
		allRows = append(allRows, resOut.ResultSet.Rows...)
		if aws.ToString(resOut.NextToken) == "" || len(allRows) > opt.MaxResultRows {
			break
		}
		nextToken = resOut.NextToken
	}

	cols := make([]string, 0, len(colInfo))
	for _, ci := range colInfo {
		cols = append(cols, aws.ToString(ci.Name))
	}

	// the first row repeats the column names
	rows := make([]map[string]any, 0, len(allRows))
	for i, r := range allRows {
		if i == 0 {
			continue
		}
		if len(rows) >= opt.MaxResultRows {
			break
		}
		m := make(map[string]any, len(cols))
		for ci, d := range r.Data {
			if ci >= len(cols) {
				continue
			}
			m[cols[ci]] = coerceScalar(aws.ToString(d.VarCharValue))
		}
		rows = append(rows, m)
	}

	res := &QueryResult{QueryExecutionID: qid, Columns: cols, Rows: rows}
	if exec != nil && exec.Statistics != nil {
		res.ScannedBytes = aws.ToInt64(exec.Statistics.DataScannedInBytes)
		res.ExecutionMs = aws.ToInt64(exec.Statistics.EngineExecutionTimeInMillis)
	}
	return res, nil
}

func start(ctx context.Context, c AthenaClient, sql string, opt QueryOptions) (string, error) {
	out, err := c.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opt.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opt.OutputLocation),
		},
		WorkGroup: aws.String(opt.Workgroup),
	})
	if err != nil {
		return "", fmt.Errorf("athena StartQueryExecution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func wait(ctx context.Context, c AthenaClient, qid string, opt QueryOptions) (*athenatypes.QueryExecution, error) {
	deadline := time.Now().Add(opt.MaxWait)
	for {
		out, err := c.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return nil, fmt.Errorf("athena GetQueryExecution: %w", err)
		}
		exec := out.QueryExecution
		if exec == nil || exec.Status == nil {
			return nil, &QueryError{State: "UNKNOWN", Reason: "missing query status", QueryExecutionID: qid}
		}

		switch exec.Status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			return exec, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return nil, &QueryError{State: string(exec.Status.State), Reason: aws.ToString(exec.Status.StateChangeReason), QueryExecutionID: qid}
		}

		if time.Now().After(deadline) {
			return nil, &QueryError{State: "TIMEOUT", Reason: "query timed out", QueryExecutionID: qid}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opt.PollInterval):
		}
	}
}

func coerceScalar(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// Float reads a numeric column from a coerced row.
func Float(row map[string]any, col string) float64 {
	switch v := row[col].(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func String(row map[string]any, col string) string {
	switch v := row[col].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
