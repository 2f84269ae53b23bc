package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hrygo/covercast/plugin/ai/timeout"
)

// ErrCircuitOpen is returned while a provider's breaker rejects calls.
var ErrCircuitOpen = errors.New("provider circuit open")

// BreakerConfig configures a provider circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns the breaker settings used for a named provider.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          timeout.BreakerOpenTimeout,
		FailureThreshold: 5,
	}
}

// NewCircuitBreaker creates a circuit breaker with the given configuration.
// Caller cancellation does not count against the provider.
func NewCircuitBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provider circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// NewLimiter returns the shared outbound limiter, or nil when unlimited.
func NewLimiter(cfg *Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrCircuitOpen, err)
	}
	return err
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

type guardedEmbeddingService struct {
	inner   EmbeddingService
	breaker *gobreaker.CircuitBreaker[[][]float32]
	limiter *rate.Limiter
}

// NewGuardedEmbeddingService wraps inner with rate limiting and a circuit breaker.
func NewGuardedEmbeddingService(inner EmbeddingService, cfg BreakerConfig, limiter *rate.Limiter) EmbeddingService {
	return &guardedEmbeddingService{
		inner:   inner,
		breaker: NewCircuitBreaker[[][]float32](cfg),
		limiter: limiter,
	}
}

func (s *guardedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

func (s *guardedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return nil, err
	}
	vectors, err := s.breaker.Execute(func() ([][]float32, error) {
		return s.inner.EmbedBatch(ctx, texts)
	})
	return vectors, breakerError(err)
}

func (s *guardedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

func (s *guardedEmbeddingService) Model() string {
	return s.inner.Model()
}

type guardedLLMService struct {
	inner   LLMService
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
}

// NewGuardedLLMService wraps inner with rate limiting and a circuit breaker.
func NewGuardedLLMService(inner LLMService, cfg BreakerConfig, limiter *rate.Limiter) LLMService {
	return &guardedLLMService{
		inner:   inner,
		breaker: NewCircuitBreaker[string](cfg),
		limiter: limiter,
	}
}

func (s *guardedLLMService) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := wait(ctx, s.limiter); err != nil {
		return "", err
	}
	content, err := s.breaker.Execute(func() (string, error) {
		return s.inner.Chat(ctx, messages)
	})
	return content, breakerError(err)
}
