package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// ErrCircuitOpen is returned without calling the model while its breaker
// is open or half-open and saturated.
var ErrCircuitOpen = errors.New("model circuit open")

// Breaker keeps one circuit breaker per model id. Breakers live as long as
// the Lambda container.
type Breaker struct {
	next   Invoker
	cfg    BreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreaker(next Invoker, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	return &Breaker{next: next, cfg: cfg, logger: logger, breakers: map[string]*gobreaker.CircuitBreaker{}}
}

func (b *Breaker) breaker(modelID string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[modelID]; ok {
		return cb
	}
	cfg := b.cfg
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        modelID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("model circuit state changed",
				zap.String("model", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	b.breakers[modelID] = cb
	return cb
}

// State reports the breaker state for a model ("closed" if never used).
func (b *Breaker) State(modelID string) string {
	return b.breaker(modelID).State().String()
}

func (b *Breaker) Invoke(ctx context.Context, r Request) (Completion, error) {
	out, err := b.breaker(r.ModelID).Execute(func() (any, error) {
		return b.next.Invoke(ctx, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Completion{}, errors.Join(ErrCircuitOpen, err)
	}
	if err != nil {
		return Completion{}, err
	}
	return out.(Completion), nil
}
