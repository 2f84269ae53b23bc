package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/internal/profile"
	"github.com/hrygo/covercast/plugin/ai"
	"github.com/hrygo/covercast/plugin/ai/cache"
	"github.com/hrygo/covercast/plugin/ai/forecast"
	"github.com/hrygo/covercast/store"
	"github.com/hrygo/covercast/store/db"
)

// app holds the wired collaborators of one process.
type app struct {
	profile  *profile.Profile
	store    *store.Store
	embedder ai.EmbeddingService
	forecast *forecast.Service
	batch    *forecast.BatchOrchestrator
	metrics  *observability.Metrics
	cache    interface {
		cache.CacheService
		io.Closer
	}
}

// newApp opens the store and builds the prediction pipeline. Missing AI credentials
// leave the embedder and LLM unset; predictions then take the fallback branch.
func newApp(ctx context.Context, p *profile.Profile) (*app, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	st := store.New(driver, p)
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}

	a := &app{profile: p, store: st, metrics: observability.NewMetrics()}

	var llm ai.LLMService
	aiConfig := ai.NewConfigFromProfile(p)
	if err := aiConfig.Validate(); err != nil {
		slog.Warn("AI configuration invalid, forecasts will use the fallback", slog.String("error", err.Error()))
	} else if aiConfig.Enabled {
		limiter := ai.NewLimiter(aiConfig)
		embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("embedding service unavailable", slog.String("error", err.Error()))
		} else {
			a.embedder = ai.NewGuardedEmbeddingService(embedder, ai.DefaultBreakerConfig(forecast.CollaboratorEmbedding), limiter)
		}
		chat, err := ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			slog.Warn("LLM service unavailable", slog.String("error", err.Error()))
		} else {
			llm = ai.NewGuardedLLMService(chat, ai.DefaultBreakerConfig(forecast.CollaboratorGeneration), limiter)
		}
	} else {
		slog.Info("AI disabled, forecasts will use the fallback")
	}

	if p.RedisAddr != "" {
		redisConfig := cache.DefaultRedisConfig()
		redisConfig.Addr = p.RedisAddr
		redisConfig.Password = p.RedisPassword
		redisConfig.DefaultTTL = p.CacheTTL
		redisCache, err := cache.NewRedisCache(ctx, redisConfig)
		if err != nil {
			_ = st.Close()
			return nil, errors.Wrap(err, "failed to connect to redis")
		}
		a.cache = redisCache
	} else {
		cacheConfig := cache.DefaultServiceConfig()
		cacheConfig.DefaultTTL = p.CacheTTL
		a.cache = cache.NewService(cacheConfig)
	}

	logger := slog.Default()
	a.forecast = forecast.NewService(forecast.ConfigFromProfile(p), forecast.Dependencies{
		Profiles:    st,
		Recorder:    st,
		Encoder:     forecast.NewContextEncoder(a.embedder, p.EmbeddingTimeout),
		Retriever:   forecast.NewRetriever(st, p.SearchTimeout),
		Synthesizer: forecast.NewSynthesizer(llm, p.GenerationTimeout, logger),
		Cache:       forecast.NewPredictionCache(a.cache, p.CacheTTL, logger),
		Observer:    a.metrics,
		Logger:      logger,
	})
	a.batch = forecast.NewBatchOrchestrator(a.forecast, p.BatchConcurrency, p.BatchMaxDays, a.metrics)
	return a, nil
}

func (a *app) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("failed to close cache", slog.String("error", err.Error()))
		}
	}
	return a.store.Close()
}
