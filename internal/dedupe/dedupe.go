package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Records are kept for 7 days.
const ttl = 7 * 24 * time.Hour

// EventID builds the claim id for one S3 object version.
func EventID(bucket, key, etagOrSequencer string) string {
	return fmt.Sprintf("S3#%s/%s#%s", bucket, key, etagOrSequencer)
}

// Claim returns (isDuplicate, error). If duplicate, the caller should exit
// early. An empty table or id never blocks processing.
func Claim(ctx context.Context, ddb PutItemAPI, table, id, source string) (bool, error) {
	table = strings.TrimSpace(table)
	id = strings.TrimSpace(id)
	if table == "" || id == "" {
		return false, nil
	}

	now := time.Now().UTC()
	_, err := ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: id},
			"Source":    &types.AttributeValueMemberS{Value: source},
			"CreatedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			"ExpiresAt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttl).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, fmt.Errorf("dedupe claim %s: %w", id, err)
	}
	return false, nil
}
