package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around a provider
type BreakerConfig struct {
	MaxFailures uint32        // consecutive failures that open the circuit
	OpenTimeout time.Duration // how long the circuit stays open
}

// Breaker stops calling a provider that keeps failing
type Breaker struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreaker wraps provider in a circuit breaker
func NewBreaker(provider Provider, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("fallback circuit state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Breaker{provider: provider, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Translate calls the provider unless the circuit is open. A partial result
// counts as a success for the breaker; its error is still returned.
func (b *Breaker) Translate(ctx context.Context, text, sourceLang string) (map[string]string, error) {
	var partialErr error
	res, err := b.cb.Execute(func() (interface{}, error) {
		got, err := b.provider.Translate(ctx, text, sourceLang)
		if err != nil && len(got) == 0 {
			return nil, err
		}
		partialErr = err
		return got, nil
	})
	if err != nil {
		return map[string]string{}, fmt.Errorf("%s: %w", b.provider.Name(), err)
	}
	return res.(map[string]string), partialErr
}

// Name returns the wrapped provider name
func (b *Breaker) Name() string {
	return b.provider.Name()
}

// State returns the current circuit state
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
