package nlp_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genaiops/internal/nlp"
	"genaiops/internal/nlp/nlptest"
)

func TestAnalyzerMapsResponses(t *testing.T) {
	fake := nlptest.NewPositive()
	a := nlp.NewAnalyzer(fake)
	ctx := context.Background()

	ents, err := a.Entities(ctx, "I love the Acme Blender.")
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "Acme Blender", ents[0].Text)
	assert.Equal(t, "COMMERCIAL_ITEM", ents[0].Type)

	s, err := a.Sentiment(ctx, "I love it")
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", s.Label)
	assert.InDelta(t, 0.95, s.Score(), 1e-6)

	kps, err := a.KeyPhrases(ctx, "this product")
	require.NoError(t, err)
	assert.Equal(t, []string{"this product"}, nlp.PhraseTexts(kps))
	assert.Equal(t, []string{"Acme Blender"}, nlp.EntityTexts(ents))
}

func TestAnalyzerTruncatesLongText(t *testing.T) {
	fake := nlptest.NewPositive()
	a := nlp.NewAnalyzer(fake)

	_, err := a.Sentiment(context.Background(), strings.Repeat("a", 6000))
	require.NoError(t, err)
	assert.Len(t, fake.Texts[0], nlp.MaxTextBytes)
}

func TestAnalyzerWrapsErrors(t *testing.T) {
	fake := nlptest.NewPositive()
	fake.Err = errors.New("throttled")
	_, err := nlp.NewAnalyzer(fake).KeyPhrases(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DetectKeyPhrases")
}

func TestTruncateKeepsRunes(t *testing.T) {
	s := strings.Repeat("é", 3) // 6 bytes
	assert.Equal(t, "éé", nlp.Truncate(s, 5))
	assert.Equal(t, s, nlp.Truncate(s, 6))
	assert.Equal(t, "", nlp.Truncate(s, 1))
}

func TestSentimentScoreByLabel(t *testing.T) {
	s := nlp.Sentiment{Label: "NEGATIVE", Scores: nlp.SentimentScores{Negative: 0.9, Neutral: 0.1}}
	assert.InDelta(t, 0.9, s.Score(), 1e-6)
	s.Label = "NEUTRAL"
	assert.InDelta(t, 0.1, s.Score(), 1e-6)
}
