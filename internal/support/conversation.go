// Package support implements the customer support assistant: sessions,
// guardrails, intent routing, prompt templates, response quality checks
// and feedback, composed into Step Functions tasks over a shared Turn.
package support

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StatusActive = "active"
	StatusEnded  = "ended"
)

var ErrSessionNotFound = errors.New("session not found")

type ConversationAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type Message struct {
	Role      string         `dynamodbav:"role" json:"role"`
	Content   string         `dynamodbav:"content" json:"content"`
	Timestamp string         `dynamodbav:"timestamp" json:"timestamp"`
	Metadata  map[string]any `dynamodbav:"metadata" json:"metadata"`
}

// Session is one item in the conversation table, keyed by session_id.
type Session struct {
	SessionID string         `dynamodbav:"session_id" json:"session_id"`
	CreatedAt string         `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt string         `dynamodbav:"updated_at" json:"updated_at"`
	EndedAt   string         `dynamodbav:"ended_at,omitempty" json:"ended_at,omitempty"`
	TTL       int64          `dynamodbav:"ttl" json:"ttl"`
	TurnCount int            `dynamodbav:"turn_count" json:"turn_count"`
	Messages  []Message      `dynamodbav:"messages" json:"messages"`
	Metadata  map[string]any `dynamodbav:"metadata" json:"metadata"`
	Status    string         `dynamodbav:"status" json:"status"`
}

type Conversations struct {
	ddb   ConversationAPI
	table string
	ttl   time.Duration
	now   func() time.Time
}

func NewConversations(ddb ConversationAPI, table string, ttl time.Duration) *Conversations {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Conversations{ddb: ddb, table: table, ttl: ttl, now: time.Now}
}

func (c *Conversations) key(id string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{"session_id": &ddbtypes.AttributeValueMemberS{Value: id}}
}

func (c *Conversations) Create(ctx context.Context, id string, metadata map[string]any) (*Session, error) {
	now := c.now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	s := &Session{
		SessionID: id,
		CreatedAt: now.Format(timeLayout),
		UpdatedAt: now.Format(timeLayout),
		TTL:       now.Add(c.ttl).Unix(),
		Messages:  []Message{},
		Metadata:  metadata,
		Status:    StatusActive,
	}
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	if _, err := c.ddb.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(c.table), Item: item}); err != nil {
		return nil, fmt.Errorf("ddb put session %s: %w", id, err)
	}
	return s, nil
}

// Get returns ErrSessionNotFound for unknown ids.
func (c *Conversations) Get(ctx context.Context, id string) (*Session, error) {
	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            c.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ddb get session %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &s, nil
}

// AddMessage appends to the message list and bumps turn_count.
func (c *Conversations) AddMessage(ctx context.Context, id, role, content string, metadata map[string]any) error {
	now := c.now().UTC().Format(timeLayout)
	if metadata == nil {
		metadata = map[string]any{}
	}
	msg := Message{Role: role, Content: content, Timestamp: now, Metadata: metadata}

	upd := expression.Set(
		expression.Name("messages"),
		expression.ListAppend(
			expression.IfNotExists(expression.Name("messages"), expression.Value([]Message{})),
			expression.Value([]Message{msg}),
		),
	).
		Set(expression.Name("updated_at"), expression.Value(now)).
		Set(expression.Name("turn_count"), expression.Name("turn_count").Plus(expression.Value(1)))
	return c.update(ctx, id, upd)
}

// UpdateMetadata merges keys into the session metadata map.
func (c *Conversations) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	upd := expression.Set(expression.Name("updated_at"), expression.Value(c.now().UTC().Format(timeLayout)))
	for _, k := range keys {
		upd = upd.Set(expression.Name("metadata."+k), expression.Value(metadata[k]))
	}
	return c.update(ctx, id, upd)
}

func (c *Conversations) End(ctx context.Context, id string) error {
	upd := expression.Set(expression.Name("status"), expression.Value(StatusEnded)).
		Set(expression.Name("ended_at"), expression.Value(c.now().UTC().Format(timeLayout)))
	return c.update(ctx, id, upd)
}

func (c *Conversations) update(ctx context.Context, id string, upd expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().
		WithUpdate(upd).
		WithCondition(expression.AttributeExists(expression.Name("session_id"))).
		Build()
	if err != nil {
		return fmt.Errorf("build update expression: %w", err)
	}
	_, err = c.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       c.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var ccf *ddbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("ddb update session %s: %w", id, err)
	}
	return nil
}

// History returns the last maxTurns user/assistant pairs.
func (c *Conversations) History(ctx context.Context, id string, maxTurns int) ([]Message, error) {
	s, err := c.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lastMessages(s.Messages, maxTurns), nil
}

func lastMessages(msgs []Message, maxTurns int) []Message {
	n := maxTurns * 2
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// FormatHistory renders "ROLE: content" lines for a prompt.
func FormatHistory(msgs []Message) string {
	if len(msgs) == 0 {
		return "No previous conversation."
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, strings.ToUpper(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

var knownServices = []string{
	"ec2", "s3", "lambda", "rds", "dynamodb", "cloudformation",
	"cloudwatch", "iam", "vpc", "elb", "route53", "cloudfront",
}

type ContextSummary struct {
	SessionID        string   `json:"session_id"`
	TurnCount        int      `json:"turn_count"`
	DurationMinutes  float64  `json:"duration_minutes"`
	DetectedServices []string `json:"detected_services"`
	UserQueriesCount int      `json:"user_queries_count"`
	Status           string   `json:"status"`
}

func (c *Conversations) Summary(ctx context.Context, id string) (ContextSummary, error) {
	s, err := c.Get(ctx, id)
	if err != nil {
		return ContextSummary{}, err
	}
	return Summarize(s), nil
}

// Summarize lists the AWS services mentioned in user messages, in
// knownServices order.
func Summarize(s *Session) ContextSummary {
	seen := map[string]bool{}
	queries := 0
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		queries++
		q := strings.ToLower(m.Content)
		for _, svc := range knownServices {
			if strings.Contains(q, svc) {
				seen[svc] = true
			}
		}
	}
	services := []string{}
	for _, svc := range knownServices {
		if seen[svc] {
			services = append(services, strings.ToUpper(svc))
		}
	}

	status := s.Status
	if status == "" {
		status = "unknown"
	}
	return ContextSummary{
		SessionID:        s.SessionID,
		TurnCount:        s.TurnCount,
		DurationMinutes:  sessionMinutes(s),
		DetectedServices: services,
		UserQueriesCount: queries,
		Status:           status,
	}
}

func sessionMinutes(s *Session) float64 {
	created, err1 := time.Parse(timeLayout, s.CreatedAt)
	updated, err2 := time.Parse(timeLayout, s.UpdatedAt)
	if err1 != nil || err2 != nil {
		return 0
	}
	return math.Round(updated.Sub(created).Minutes()*100) / 100
}
