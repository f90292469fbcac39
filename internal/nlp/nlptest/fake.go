// Package nlptest provides a canned Comprehend client for tests.
package nlptest

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

type Comprehend struct {
	Entities   []types.Entity
	Sentiment  types.SentimentType
	Scores     types.SentimentScore
	KeyPhrases []types.KeyPhrase
	PII        []types.PiiEntity
	Err        error

	Texts []string
}

func NewPositive() *Comprehend {
	return &Comprehend{
		Entities: []types.Entity{
			{Text: aws.String("Acme Blender"), Type: types.EntityTypeCommercialItem, Score: aws.Float32(0.97)},
		},
		Sentiment: types.SentimentTypePositive,
		Scores: types.SentimentScore{
			Positive: aws.Float32(0.95), Negative: aws.Float32(0.01),
			Neutral: aws.Float32(0.03), Mixed: aws.Float32(0.01),
		},
		KeyPhrases: []types.KeyPhrase{
			{Text: aws.String("this product"), Score: aws.Float32(0.99)},
		},
	}
}

func (c *Comprehend) DetectEntities(_ context.Context, in *comprehend.DetectEntitiesInput, _ ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error) {
	c.Texts = append(c.Texts, aws.ToString(in.Text))
	if c.Err != nil {
		return nil, c.Err
	}
	return &comprehend.DetectEntitiesOutput{Entities: c.Entities}, nil
}

func (c *Comprehend) DetectSentiment(_ context.Context, in *comprehend.DetectSentimentInput, _ ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error) {
	c.Texts = append(c.Texts, aws.ToString(in.Text))
	if c.Err != nil {
		return nil, c.Err
	}
	sc := c.Scores
	return &comprehend.DetectSentimentOutput{Sentiment: c.Sentiment, SentimentScore: &sc}, nil
}

func (c *Comprehend) DetectKeyPhrases(_ context.Context, in *comprehend.DetectKeyPhrasesInput, _ ...func(*comprehend.Options)) (*comprehend.DetectKeyPhrasesOutput, error) {
	c.Texts = append(c.Texts, aws.ToString(in.Text))
	if c.Err != nil {
		return nil, c.Err
	}
	return &comprehend.DetectKeyPhrasesOutput{KeyPhrases: c.KeyPhrases}, nil
}

func (c *Comprehend) DetectPiiEntities(_ context.Context, in *comprehend.DetectPiiEntitiesInput, _ ...func(*comprehend.Options)) (*comprehend.DetectPiiEntitiesOutput, error) {
	c.Texts = append(c.Texts, aws.ToString(in.Text))
	if c.Err != nil {
		return nil, c.Err
	}
	return &comprehend.DetectPiiEntitiesOutput{Entities: c.PII}, nil
}
