package nlp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genaiops/internal/nlp"
	"genaiops/internal/nlp/nlptest"
)

const contact = "Call Zoë at 555-0100 or zoe@example.com"

func TestRedactReplacesSpansByCharacter(t *testing.T) {
	ents := []nlp.PIIEntity{
		{Type: "NAME", BeginOffset: 5, EndOffset: 8},
		{Type: "EMAIL", BeginOffset: 24, EndOffset: 39},
		{Type: "PHONE", BeginOffset: 12, EndOffset: 20},
	}
	assert.Equal(t, "Call [NAME] at [PHONE] or [EMAIL]", nlp.Redact(contact, ents))
	assert.Equal(t, contact, nlp.Redact(contact, nil))
}

func TestRedactSkipsOverlappingAndOutOfRange(t *testing.T) {
	ents := []nlp.PIIEntity{
		{Type: "PHONE", BeginOffset: 12, EndOffset: 20},
		{Type: "ADDRESS", BeginOffset: 10, EndOffset: 14},
		{Type: "URL", BeginOffset: 30, EndOffset: 99},
		{Type: "BAD", BeginOffset: 7, EndOffset: 7},
	}
	assert.Equal(t, "Call Zoë at [PHONE] or zoe@example.com", nlp.Redact(contact, ents))
}

func TestPIIDetectorMapsEntities(t *testing.T) {
	fake := &nlptest.Comprehend{PII: []types.PiiEntity{
		{Type: types.PiiEntityTypeEmail, Score: aws.Float32(0.99), BeginOffset: aws.Int32(24), EndOffset: aws.Int32(39)},
	}}
	ents, err := nlp.NewPIIDetector(fake).Entities(context.Background(), strings.Repeat("é", 3000))
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "EMAIL", ents[0].Type)
	assert.Equal(t, int32(39), ents[0].EndOffset)
	assert.LessOrEqual(t, len(fake.Texts[0]), nlp.MaxTextBytes)
}
