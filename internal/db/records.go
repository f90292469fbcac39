package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	KindValidation = "validation"
	KindEnrichment = "enrichment"
	KindImage      = "image"
	KindAudio      = "audio"
	KindClaim      = "claim"
)

type RecordsAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Record is one processed object in the processing table.
// PK = FILE#<bucket>/<key>, SK = KIND#<kind>.
type Record struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	Kind         string  `dynamodbav:"Kind"`
	Bucket       string  `dynamodbav:"Bucket"`
	SourceKey    string  `dynamodbav:"SourceKey"`
	ResultKey    string  `dynamodbav:"ResultKey,omitempty"`
	Source       string  `dynamodbav:"Source,omitempty"`
	QualityScore float64 `dynamodbav:"QualityScore"`
	ChecksPassed int     `dynamodbav:"ChecksPassed"`
	ChecksTotal  int     `dynamodbav:"ChecksTotal"`
	Status       string  `dynamodbav:"Status"`
	CreatedAt    string  `dynamodbav:"CreatedAt"` // RFC3339, so begins_with("YYYY-MM-DD") works
	ExpiresAt    int64   `dynamodbav:"ExpiresAt,omitempty"`
}

func RecordPK(bucket, key string) string {
	return fmt.Sprintf("FILE#%s/%s", bucket, key)
}

func RecordSK(kind string) string {
	return "KIND#" + kind
}

type Records struct {
	ddb   RecordsAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewRecords returns nil when table is empty; a nil *Records ignores writes
// and returns no rows.
func NewRecords(ddb RecordsAPI, table string) *Records {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil
	}
	return &Records{ddb: ddb, table: table, ttl: 90 * 24 * time.Hour, now: time.Now}
}

func (r *Records) Put(ctx context.Context, rec Record) error {
	if r == nil {
		return nil
	}
	now := r.now().UTC()
	rec.PK = RecordPK(rec.Bucket, rec.SourceKey)
	rec.SK = RecordSK(rec.Kind)
	if rec.CreatedAt == "" {
		rec.CreatedAt = now.Format(time.RFC3339)
	}
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = now.Add(r.ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("ddb put record %s: %w", rec.PK, err)
	}
	return nil
}

// ScanDay returns every record of kind created on day (YYYY-MM-DD).
func (r *Records) ScanDay(ctx context.Context, kind, day string) ([]Record, error) {
	if r == nil {
		return nil, nil
	}
	filt := expression.Name("Kind").Equal(expression.Value(kind)).
		And(expression.Name("CreatedAt").BeginsWith(day))
	expr, err := expression.NewBuilder().WithFilter(filt).Build()
	if err != nil {
		return nil, fmt.Errorf("build scan expression: %w", err)
	}

	var (
		out      []Record
		startKey map[string]ddbtypes.AttributeValue
	)
	for {
		page, err := r.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.table),
			ExclusiveStartKey:         startKey,
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", r.table, err)
		}

		var recs []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &recs); err != nil {
			return nil, fmt.Errorf("unmarshal records: %w", err)
		}
		out = append(out, recs...)

		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}
