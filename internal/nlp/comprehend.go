package nlp

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// Comprehend rejects synchronous requests over 5000 bytes of UTF-8.
const MaxTextBytes = 5000

type ComprehendClient interface {
	DetectEntities(ctx context.Context, params *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
	DetectSentiment(ctx context.Context, params *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
	DetectKeyPhrases(ctx context.Context, params *comprehend.DetectKeyPhrasesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectKeyPhrasesOutput, error)
}

type Entity struct {
	Text        string  `json:"Text"`
	Type        string  `json:"Type"`
	Score       float32 `json:"Score"`
	BeginOffset int32   `json:"BeginOffset"`
	EndOffset   int32   `json:"EndOffset"`
}

type KeyPhrase struct {
	Text        string  `json:"Text"`
	Score       float32 `json:"Score"`
	BeginOffset int32   `json:"BeginOffset"`
	EndOffset   int32   `json:"EndOffset"`
}

type SentimentScores struct {
	Positive float32 `json:"Positive"`
	Negative float32 `json:"Negative"`
	Neutral  float32 `json:"Neutral"`
	Mixed    float32 `json:"Mixed"`
}

type Sentiment struct {
	Label  string          `json:"Sentiment"`
	Scores SentimentScores `json:"SentimentScore"`
}

// Score returns the confidence for the winning label.
func (s Sentiment) Score() float32 {
	switch s.Label {
	case "POSITIVE":
		return s.Scores.Positive
	case "NEGATIVE":
		return s.Scores.Negative
	case "MIXED":
		return s.Scores.Mixed
	default:
		return s.Scores.Neutral
	}
}

type Analyzer struct {
	c    ComprehendClient
	lang types.LanguageCode
}

func NewAnalyzer(c ComprehendClient) *Analyzer {
	return &Analyzer{c: c, lang: types.LanguageCodeEn}
}

func (a *Analyzer) Entities(ctx context.Context, text string) ([]Entity, error) {
	out, err := a.c.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(Truncate(text, MaxTextBytes)),
		LanguageCode: a.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectEntities: %w", err)
	}
	ents := make([]Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		ents = append(ents, Entity{
			Text:        aws.ToString(e.Text),
			Type:        string(e.Type),
			Score:       aws.ToFloat32(e.Score),
			BeginOffset: aws.ToInt32(e.BeginOffset),
			EndOffset:   aws.ToInt32(e.EndOffset),
		})
	}
	return ents, nil
}

func (a *Analyzer) Sentiment(ctx context.Context, text string) (Sentiment, error) {
	out, err := a.c.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(Truncate(text, MaxTextBytes)),
		LanguageCode: a.lang,
	})
	if err != nil {
		return Sentiment{}, fmt.Errorf("comprehend DetectSentiment: %w", err)
	}
	s := Sentiment{Label: string(out.Sentiment)}
	if sc := out.SentimentScore; sc != nil {
		s.Scores = SentimentScores{
			Positive: aws.ToFloat32(sc.Positive),
			Negative: aws.ToFloat32(sc.Negative),
			Neutral:  aws.ToFloat32(sc.Neutral),
			Mixed:    aws.ToFloat32(sc.Mixed),
		}
	}
	return s, nil
}

func (a *Analyzer) KeyPhrases(ctx context.Context, text string) ([]KeyPhrase, error) {
	out, err := a.c.DetectKeyPhrases(ctx, &comprehend.DetectKeyPhrasesInput{
		Text:         aws.String(Truncate(text, MaxTextBytes)),
		LanguageCode: a.lang,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectKeyPhrases: %w", err)
	}
	kps := make([]KeyPhrase, 0, len(out.KeyPhrases))
	for _, k := range out.KeyPhrases {
		kps = append(kps, KeyPhrase{
			Text:        aws.ToString(k.Text),
			Score:       aws.ToFloat32(k.Score),
			BeginOffset: aws.ToInt32(k.BeginOffset),
			EndOffset:   aws.ToInt32(k.EndOffset),
		})
	}
	return kps, nil
}

func PhraseTexts(kps []KeyPhrase) []string {
	out := make([]string, 0, len(kps))
	for _, k := range kps {
		out = append(out, k.Text)
	}
	return out
}

func EntityTexts(ents []Entity) []string {
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Text)
	}
	return out
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
