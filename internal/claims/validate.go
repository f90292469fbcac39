package claims

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"genaiops/internal/llm"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	ConsensusNone    = "No successful model runs."
	ConsensusWarning = "Warning: Models produced significantly different output lengths."
	ConsensusOK      = "Consensus: Models produced similar output lengths."
)

type ModelRun struct {
	Status       string  `json:"status"`
	TimeSeconds  float64 `json:"time_seconds"`
	OutputLength int     `json:"output_length"`
	Output       string  `json:"output,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ValidateWithModels runs the same goal against every model in parallel.
// Failures are recorded per model.
func ValidateWithModels(ctx context.Context, inv llm.Invoker, document, goal string, models []string) map[string]ModelRun {
	runs := make([]ModelRun, len(models))
	var g errgroup.Group
	for i, model := range models {
		i, model := i, model
		g.Go(func() error {
			start := time.Now()
			comp, err := inv.Invoke(ctx, llm.Request{
				ModelID:     model,
				Prompt:      validationPrompt(goal, document),
				MaxTokens:   extractMaxTokens,
				Temperature: extractTemperature,
			})
			if err != nil {
				runs[i] = ModelRun{Status: StatusError, Error: err.Error()}
				return nil
			}
			runs[i] = ModelRun{
				Status:       StatusSuccess,
				TimeSeconds:  math.Round(time.Since(start).Seconds()*1000) / 1000,
				OutputLength: utf8.RuneCountInString(comp.Text),
				Output:       comp.Text,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]ModelRun, len(models))
	for i, m := range models {
		out[m] = runs[i]
	}
	return out
}

// Consensus compares output lengths: any successful output more than 20%
// away from the mean length is flagged.
func Consensus(runs map[string]ModelRun) string {
	var lengths []float64
	for _, r := range runs {
		if r.Status == StatusSuccess {
			lengths = append(lengths, float64(r.OutputLength))
		}
	}
	if len(lengths) == 0 {
		return ConsensusNone
	}
	avg := 0.0
	for _, l := range lengths {
		avg += l
	}
	avg /= float64(len(lengths))

	maxDev := 0.0
	for _, l := range lengths {
		maxDev = math.Max(maxDev, math.Abs(l-avg))
	}
	if maxDev > avg*0.2 {
		return ConsensusWarning
	}
	return ConsensusOK
}
