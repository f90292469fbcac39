package db

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordsDDB struct {
	puts  []map[string]ddbtypes.AttributeValue
	pages []*dynamodb.ScanOutput
	scans []*dynamodb.ScanInput
}

func (f *fakeRecordsDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeRecordsDDB) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scans = append(f.scans, in)
	p := f.pages[0]
	f.pages = f.pages[1:]
	return p, nil
}

func TestRecordsPutFillsKeys(t *testing.T) {
	f := &fakeRecordsDDB{}
	r := NewRecords(f, "processing")
	r.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, r.Put(context.Background(), Record{
		Kind:         KindValidation,
		Bucket:       "data",
		SourceKey:    "raw-data/r1.txt",
		QualityScore: 0.8,
	}))
	require.Len(t, f.puts, 1)

	var got Record
	require.NoError(t, attributevalue.UnmarshalMap(f.puts[0], &got))
	assert.Equal(t, "FILE#data/raw-data/r1.txt", got.PK)
	assert.Equal(t, "KIND#validation", got.SK)
	assert.Equal(t, "2026-03-01T10:00:00Z", got.CreatedAt)
	assert.Equal(t, time.Date(2026, 5, 30, 10, 0, 0, 0, time.UTC).Unix(), got.ExpiresAt)
}

func TestRecordsScanDayPaginates(t *testing.T) {
	item := func(key string, score float64) map[string]ddbtypes.AttributeValue {
		m, err := attributevalue.MarshalMap(Record{Kind: KindValidation, SourceKey: key, QualityScore: score})
		require.NoError(t, err)
		return m
	}
	f := &fakeRecordsDDB{pages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]ddbtypes.AttributeValue{item("a", 0.2)},
			LastEvaluatedKey: map[string]ddbtypes.AttributeValue{"PK": &ddbtypes.AttributeValueMemberS{Value: "a"}},
		},
		{Items: []map[string]ddbtypes.AttributeValue{item("b", 1)}},
	}}
	r := NewRecords(f, "processing")

	recs, err := r.ScanDay(context.Background(), KindValidation, "2026-03-01")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].SourceKey)

	require.Len(t, f.scans, 2)
	assert.Nil(t, f.scans[0].ExclusiveStartKey)
	assert.NotNil(t, f.scans[1].ExclusiveStartKey)
	assert.Contains(t, aws.ToString(f.scans[0].FilterExpression), "begins_with")
}

func TestNilRecords(t *testing.T) {
	r := NewRecords(&fakeRecordsDDB{}, " ")
	assert.Nil(t, r)
	assert.NoError(t, r.Put(context.Background(), Record{}))
	recs, err := r.ScanDay(context.Background(), KindValidation, "2026-03-01")
	assert.NoError(t, err)
	assert.Empty(t, recs)
}
