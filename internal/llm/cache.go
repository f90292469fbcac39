package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type CacheClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ResponseCache stores completions keyed by model and normalized prompt.
// PK = MODEL#<id>, SK = PROMPT#<sha256>.
type ResponseCache struct {
	ddb   CacheClient
	table string
	ttl   time.Duration
	now   func() time.Time
}

// NewResponseCache returns nil when table is empty; a nil cache always
// misses.
func NewResponseCache(ddb CacheClient, table string, ttl time.Duration) *ResponseCache {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ResponseCache{ddb: ddb, table: table, ttl: ttl, now: time.Now}
}

func NormalizePrompt(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), " ")
}

func CachePK(modelID string) string { return "MODEL#" + modelID }

func CacheSK(prompt string) string {
	sum := sha256.Sum256([]byte(NormalizePrompt(prompt)))
	return "PROMPT#" + hex.EncodeToString(sum[:])
}

func (c *ResponseCache) Get(ctx context.Context, modelID, prompt string) (*Completion, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: CachePK(modelID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: CacheSK(prompt)},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	// DynamoDB TTL deletes lazily, so expired rows can still be read.
	if exp, ok := out.Item["ExpiresAt"].(*ddbtypes.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(exp.Value, 10, 64); err == nil && n <= c.now().Unix() {
			return nil, false, nil
		}
	}

	payload, ok := out.Item["Payload"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil, false, nil
	}
	var comp Completion
	if err := json.Unmarshal([]byte(payload.Value), &comp); err != nil {
		return nil, false, nil
	}
	return &comp, true, nil
}

func (c *ResponseCache) Put(ctx context.Context, modelID, prompt string, comp Completion) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(comp)
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	now := c.now().UTC()
	_, err = c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]ddbtypes.AttributeValue{
			"PK":        &ddbtypes.AttributeValueMemberS{Value: CachePK(modelID)},
			"SK":        &ddbtypes.AttributeValueMemberS{Value: CacheSK(prompt)},
			"Payload":   &ddbtypes.AttributeValueMemberS{Value: string(b)},
			"CreatedAt": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			"ExpiresAt": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(c.ttl).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("cache PutItem: %w", err)
	}
	return nil
}

// Cached wraps an Invoker with the response cache. Only deterministic
// requests (temperature 0) are cached.
type Cached struct {
	next  Invoker
	cache *ResponseCache
}

func NewCached(next Invoker, cache *ResponseCache) *Cached {
	return &Cached{next: next, cache: cache}
}

func (c *Cached) Invoke(ctx context.Context, r Request) (Completion, error) {
	cacheable := r.Temperature == 0 && c.cache != nil
	key := r.System + "\n" + r.Prompt
	if cacheable {
		if hit, ok, err := c.cache.Get(ctx, r.ModelID, key); err == nil && ok {
			return *hit, nil
		}
	}
	comp, err := c.next.Invoke(ctx, r)
	if err != nil {
		return comp, err
	}
	if cacheable {
		_ = c.cache.Put(ctx, r.ModelID, key, comp)
	}
	return comp, nil
}
