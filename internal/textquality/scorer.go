// Package textquality scores customer review text with five cheap
// heuristics before any paid NLP runs on it.
package textquality

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"genaiops/internal/config"
)

const (
	DefaultProductPattern   = "product|item|purchase"
	DefaultOpinionPattern   = "like|love|hate|good|bad|great|terrible|excellent|poor|recommend"
	DefaultProfanityPattern = "badword1|badword2"

	MinLength = 10
)

type Checks struct {
	MinLength           bool `json:"min_length"`
	HasProductReference bool `json:"has_product_reference"`
	HasOpinion          bool `json:"has_opinion"`
	NoProfanity         bool `json:"no_profanity"`
	HasStructure        bool `json:"has_structure"`
}

func (c Checks) Passed() int {
	n := 0
	for _, ok := range []bool{c.MinLength, c.HasProductReference, c.HasOpinion, c.NoProfanity, c.HasStructure} {
		if ok {
			n++
		}
	}
	return n
}

func (Checks) Total() int { return 5 }

// Score is the pass ratio in [0, 1].
func (c Checks) Score() float64 {
	return float64(c.Passed()) / float64(c.Total())
}

// Result is the document written next to the raw review.
type Result struct {
	FileName     string  `json:"file_name"`
	Timestamp    string  `json:"timestamp"`
	Checks       Checks  `json:"checks"`
	QualityScore float64 `json:"quality_score"`
}

type Patterns struct {
	Product   string
	Opinion   string
	Profanity string
}

func PatternsFromEnv() Patterns {
	return Patterns{
		Product:   config.String("PRODUCT_REGEX", DefaultProductPattern),
		Opinion:   config.String("OPINION_REGEX", DefaultOpinionPattern),
		Profanity: config.String("PROFANITY_REGEX", DefaultProfanityPattern),
	}
}

type Scorer struct {
	product   *regexp.Regexp
	opinion   *regexp.Regexp
	profanity *regexp.Regexp
	now       func() time.Time
}

// NewScorer compiles the patterns case-insensitively. Empty patterns fall
// back to the defaults.
func NewScorer(p Patterns) (*Scorer, error) {
	if p.Product == "" {
		p.Product = DefaultProductPattern
	}
	if p.Opinion == "" {
		p.Opinion = DefaultOpinionPattern
	}
	if p.Profanity == "" {
		p.Profanity = DefaultProfanityPattern
	}

	s := &Scorer{now: time.Now}
	var err error
	if s.product, err = compile("product", p.Product); err != nil {
		return nil, err
	}
	if s.opinion, err = compile("opinion", p.Opinion); err != nil {
		return nil, err
	}
	if s.profanity, err = compile("profanity", p.Profanity); err != nil {
		return nil, err
	}
	return s, nil
}

func compile(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %s pattern %q: %w", name, pattern, err)
	}
	return re, nil
}

func (s *Scorer) Check(text string) Checks {
	return Checks{
		MinLength:           utf8.RuneCountInString(text) >= MinLength,
		HasProductReference: s.product.MatchString(text),
		HasOpinion:          s.opinion.MatchString(text),
		NoProfanity:         !s.profanity.MatchString(text),
		HasStructure:        strings.Count(text, ".") >= 1,
	}
}

func (s *Scorer) Score(fileName, text string) Result {
	c := s.Check(text)
	return Result{
		FileName:     fileName,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		Checks:       c,
		QualityScore: c.Score(),
	}
}
