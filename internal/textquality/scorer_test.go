package textquality

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(Patterns{})
	require.NoError(t, err)
	return s
}

func TestScoreAllChecksPass(t *testing.T) {
	s := defaultScorer(t)
	c := s.Check("I love this product. It works great.")
	assert.Equal(t, Checks{true, true, true, true, true}, c)
	assert.Equal(t, 5, c.Passed())
	assert.Equal(t, 1.0, c.Score())
}

func TestScoreEachCheck(t *testing.T) {
	s := defaultScorer(t)

	cases := []struct {
		name  string
		text  string
		want  Checks
		score float64
	}{
		{"empty", "", Checks{NoProfanity: true}, 0.2},
		{"short", "Good item.", Checks{MinLength: true, HasProductReference: true, HasOpinion: true, NoProfanity: true, HasStructure: true}, 1.0},
		{"nine chars", "good item", Checks{HasProductReference: true, HasOpinion: true, NoProfanity: true}, 0.6},
		{"case insensitive", "THE PURCHASE WAS TERRIBLE", Checks{MinLength: true, HasProductReference: true, HasOpinion: true, NoProfanity: true}, 0.8},
		{"profanity", "badword1 product, I like it.", Checks{MinLength: true, HasProductReference: true, HasOpinion: true, HasStructure: true}, 0.8},
		{"no opinion", "The item arrived on Tuesday.", Checks{MinLength: true, HasProductReference: true, NoProfanity: true, HasStructure: true}, 0.8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := s.Check(tc.text)
			assert.Equal(t, tc.want, c)
			assert.InDelta(t, tc.score, c.Score(), 1e-9)
		})
	}
}

func TestMinLengthCountsRunes(t *testing.T) {
	s := defaultScorer(t)
	// 9 runes, 18 bytes
	assert.False(t, s.Check("ééééééééé").MinLength)
	assert.True(t, s.Check("éééééééééé").MinLength)
}

func TestCustomPatterns(t *testing.T) {
	s, err := NewScorer(Patterns{Product: "widget", Opinion: "meh", Profanity: "darn"})
	require.NoError(t, err)
	c := s.Check("This widget is meh. Darn.")
	assert.True(t, c.HasProductReference)
	assert.True(t, c.HasOpinion)
	assert.False(t, c.NoProfanity)
}

func TestInvalidPattern(t *testing.T) {
	_, err := NewScorer(Patterns{Product: "("})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product")
}

func TestPatternsFromEnv(t *testing.T) {
	t.Setenv("OPINION_REGEX", "superb")
	p := PatternsFromEnv()
	assert.Equal(t, DefaultProductPattern, p.Product)
	assert.Equal(t, "superb", p.Opinion)
}

func TestResultJSONShape(t *testing.T) {
	s := defaultScorer(t)
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	b, err := json.Marshal(s.Score("raw-data/r1.txt", "Great product."))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "raw-data/r1.txt", got["file_name"])
	assert.Equal(t, "2026-01-01T00:00:00Z", got["timestamp"])
	assert.Equal(t, 1.0, got["quality_score"])
	checks := got["checks"].(map[string]any)
	assert.Len(t, checks, 5)
	for _, k := range []string{"min_length", "has_product_reference", "has_opinion", "no_profanity", "has_structure"} {
		assert.Contains(t, checks, k)
	}
}
