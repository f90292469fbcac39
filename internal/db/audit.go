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

// Audit records are kept for seven years.
const auditRetention = 7 * 365 * 24 * time.Hour

// AuditEvent is one row of the audit trail table, keyed by audit_id.
// Details holds the event payload as a JSON document.
type AuditEvent struct {
	AuditID      string `dynamodbav:"audit_id" json:"audit_id"`
	Timestamp    int64  `dynamodbav:"timestamp" json:"timestamp"`
	EventType    string `dynamodbav:"event_type" json:"event_type"`
	UserID       string `dynamodbav:"user_id" json:"user_id"`
	Severity     string `dynamodbav:"severity" json:"severity"`
	Details      string `dynamodbav:"details" json:"details"`
	ISOTimestamp string `dynamodbav:"iso_timestamp" json:"iso_timestamp"`
	TTL          int64  `dynamodbav:"ttl,omitempty" json:"ttl,omitempty"`
}

type AuditTrail struct {
	ddb   RecordsAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewAuditTrail returns nil when table is empty.
func NewAuditTrail(ddb RecordsAPI, table string) *AuditTrail {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil
	}
	return &AuditTrail{ddb: ddb, table: table, ttl: auditRetention, now: time.Now}
}

// Put stores ev, filling the timestamps, user and expiry when unset.
func (a *AuditTrail) Put(ctx context.Context, ev AuditEvent) (AuditEvent, error) {
	if ev.Timestamp == 0 {
		ev.Timestamp = a.now().Unix()
	}
	if ev.ISOTimestamp == "" {
		ev.ISOTimestamp = time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	if ev.UserID == "" {
		ev.UserID = "anonymous"
	}
	if ev.Details == "" {
		ev.Details = "{}"
	}
	if ev.TTL == 0 {
		ev.TTL = ev.Timestamp + int64(a.ttl/time.Second)
	}

	item, err := attributevalue.MarshalMap(ev)
	if err != nil {
		return ev, fmt.Errorf("marshal audit event: %w", err)
	}
	if _, err := a.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      item,
	}); err != nil {
		return ev, fmt.Errorf("ddb put audit %s: %w", ev.AuditID, err)
	}
	return ev, nil
}

// ScanRange returns events with from <= timestamp < to.
func (a *AuditTrail) ScanRange(ctx context.Context, from, to time.Time) ([]AuditEvent, error) {
	filt := expression.Name("timestamp").Between(expression.Value(from.Unix()), expression.Value(to.Unix()-1))
	expr, err := expression.NewBuilder().WithFilter(filt).Build()
	if err != nil {
		return nil, fmt.Errorf("build scan expression: %w", err)
	}

	var (
		out      []AuditEvent
		startKey map[string]ddbtypes.AttributeValue
	)
	for {
		page, err := a.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(a.table),
			ExclusiveStartKey:         startKey,
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", a.table, err)
		}

		var evs []AuditEvent
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &evs); err != nil {
			return nil, fmt.Errorf("unmarshal audit events: %w", err)
		}
		out = append(out, evs...)

		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	return out, nil
}
