package routing

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"genaiops/internal/llm"
)

var DefaultEvalModels = []string{DefaultPrimaryModel, DefaultFallbackModel}

type TestCase struct {
	Question    string `yaml:"question" json:"question"`
	Context     string `yaml:"context" json:"context"`
	GroundTruth string `yaml:"ground_truth" json:"ground_truth"`
}

func DefaultTestCases() []TestCase {
	return []TestCase{{
		Question:    "What is a 401(k)?",
		Context:     "Financial services",
		GroundTruth: "A 401(k) is a tax-advantaged retirement savings plan offered by employers.",
	}}
}

// LoadTestCases reads a YAML list of test cases.
func LoadTestCases(r io.Reader) ([]TestCase, error) {
	var cases []TestCase
	if err := yaml.NewDecoder(r).Decode(&cases); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode test cases: %w", err)
	}
	return cases, nil
}

type EvalResult struct {
	ModelID         string        `json:"model_id"`
	Question        string        `json:"question"`
	Output          string        `json:"output,omitempty"`
	Latency         time.Duration `json:"latency"`
	TokenCount      int           `json:"token_count"`
	SimilarityScore float64       `json:"similarity_score"`
	Error           string        `json:"error,omitempty"`
}

func (r EvalResult) Failed() bool { return r.Error != "" }

func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// Similarity is the share of ground-truth words present in output.
func Similarity(output, truth string) float64 {
	want := wordSet(truth)
	if len(want) == 0 {
		return 0
	}
	got := wordSet(output)
	hit := 0
	for w := range want {
		if _, ok := got[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

func EvalPrompt(tc TestCase) string {
	return fmt.Sprintf("Question: %s\nContext: %s", tc.Question, tc.Context)
}

// Evaluate runs every case against every model with at most concurrency
// calls in flight. Model failures are recorded, not returned.
func Evaluate(ctx context.Context, inv llm.Invoker, models []string, cases []TestCase, concurrency int) ([]EvalResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]EvalResult, len(models)*len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for mi, model := range models {
		for ci, tc := range cases {
			i, model, tc := mi*len(cases)+ci, model, tc
			g.Go(func() error {
				start := time.Now()
				comp, err := inv.Invoke(gctx, llm.Request{ModelID: model, Prompt: EvalPrompt(tc), MaxTokens: primaryMaxTokens})
				res := EvalResult{ModelID: model, Question: tc.Question}
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					res.Latency = time.Since(start)
					res.Error = err.Error()
				} else {
					res.Latency = comp.Latency
					if res.Latency == 0 {
						res.Latency = time.Since(start)
					}
					res.Output = comp.Text
					res.TokenCount = len(strings.Fields(comp.Text))
					res.SimilarityScore = Similarity(comp.Text, tc.GroundTruth)
				}
				results[i] = res
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BuildStrategy ranks models by 0.7 similarity + 0.3 latency score.
// Latency is averaged over all attempts, similarity over successes only.
// Models without a single success score 0 and rank after every model
// that answered at least once.
func BuildStrategy(results []EvalResult) Strategy {
	type agg struct {
		latency, sim  float64
		n, successful int
	}
	var order []string
	by := map[string]*agg{}
	for _, r := range results {
		a, ok := by[r.ModelID]
		if !ok {
			a = &agg{}
			by[r.ModelID] = a
			order = append(order, r.ModelID)
		}
		a.latency += r.Latency.Seconds()
		a.n++
		if !r.Failed() {
			a.sim += r.SimilarityScore
			a.successful++
		}
	}
	if len(order) == 0 {
		return DefaultStrategy()
	}

	scores := make([]ModelScore, 0, len(order))
	maxLatency := 0.0
	for _, id := range order {
		a := by[id]
		s := ModelScore{ModelID: id, Latency: a.latency / float64(a.n)}
		if a.successful > 0 {
			s.SimilarityScore = a.sim / float64(a.successful)
		}
		if s.Latency > maxLatency {
			maxLatency = s.Latency
		}
		scores = append(scores, s)
	}
	for i := range scores {
		if maxLatency > 0 {
			scores[i].LatencyScore = 1 - scores[i].Latency/maxLatency
		}
		// no successes: overall stays 0
		if by[scores[i].ModelID].successful == 0 {
			continue
		}
		scores[i].OverallScore = 0.7*scores[i].SimilarityScore + 0.3*scores[i].LatencyScore
	}
	answered := func(s ModelScore) bool { return by[s.ModelID].successful > 0 }
	sort.SliceStable(scores, func(i, j int) bool {
		if ai, aj := answered(scores[i]), answered(scores[j]); ai != aj {
			return ai
		}
		return scores[i].OverallScore > scores[j].OverallScore
	})

	st := Strategy{PrimaryModel: scores[0].ModelID, ModelScores: scores}
	for _, s := range scores[1:] {
		st.FallbackModels = append(st.FallbackModels, s.ModelID)
	}
	return st
}

// Evaluator ties evaluation to the strategy parameter.
type Evaluator struct {
	inv         llm.Invoker
	store       *StrategyStore
	concurrency int
}

func NewEvaluator(inv llm.Invoker, store *StrategyStore, concurrency int) *Evaluator {
	return &Evaluator{inv: inv, store: store, concurrency: concurrency}
}

// Run evaluates and builds a strategy; it is saved when write is true.
func (e *Evaluator) Run(ctx context.Context, models []string, cases []TestCase, write bool) (Strategy, []EvalResult, error) {
	if len(models) == 0 {
		models = DefaultEvalModels
	}
	if len(cases) == 0 {
		cases = DefaultTestCases()
	}
	results, err := Evaluate(ctx, e.inv, models, cases, e.concurrency)
	if err != nil {
		return Strategy{}, nil, err
	}
	st := BuildStrategy(results)
	if write {
		if e.store == nil {
			return st, results, fmt.Errorf("no strategy parameter configured")
		}
		if err := e.store.Save(ctx, st); err != nil {
			return st, results, err
		}
	}
	return st, results, nil
}
