package forecast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/covercast/plugin/ai/cache"
	"github.com/hrygo/covercast/store"
)

type serviceFixture struct {
	encoder  *fakeEncoder
	searcher *fakeSearcher
	profiles *fakeProfiles
	recorder *fakeRecorder
	observer *fakeObserver
	llm      *fakeLLM
	backend  *cache.MockCacheService
	service  *Service
}

type fixtureOption func(*serviceFixture, *Dependencies)

func withCache() fixtureOption {
	return func(f *serviceFixture, deps *Dependencies) {
		f.backend = cache.NewMockCacheService()
		deps.Cache = NewPredictionCache(f.backend, time.Minute, nil)
	}
}

func withLLM(llm *fakeLLM) fixtureOption {
	return func(f *serviceFixture, deps *Dependencies) {
		f.llm = llm
		deps.Synthesizer = NewSynthesizer(llm, time.Second, nil)
	}
}

func newServiceFixture(t *testing.T, opts ...fixtureOption) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		encoder:  &fakeEncoder{},
		searcher: &fakeSearcher{},
		profiles: &fakeProfiles{profile: testProfile()},
		recorder: &fakeRecorder{},
		observer: newFakeObserver(),
	}
	deps := Dependencies{
		Profiles:  f.profiles,
		Recorder:  f.recorder,
		Encoder:   f.encoder,
		Retriever: NewRetriever(f.searcher, time.Second),
		Observer:  f.observer,
	}
	for _, opt := range opts {
		opt(f, &deps)
	}

	f.service = NewService(DefaultConfig(), deps)
	var seq atomic.Int32
	f.service.newID = func() string { return fmt.Sprintf("pred_%03d", seq.Add(1)) }
	f.service.now = func() time.Time { return time.Date(2024, 10, 20, 9, 30, 0, 0, time.UTC) }
	return f
}

func dinnerQuery(date string) *Query {
	return &Query{RestaurantID: "demo_bistro", ServiceDate: date, ServiceType: store.ServiceTypeDinner}
}

func threeScored() []*store.PatternWithScore {
	return []*store.PatternWithScore{
		scored(testPattern("p1", "2024-10-19", 140), 0.95),
		scored(testPattern("p2", "2024-10-12", 150), 0.90),
		scored(testPattern("p3", "2024-10-05", 130), 0.85),
	}
}

func TestPredictNoSimilarHistory(t *testing.T) {
	f := newServiceFixture(t)
	f.searcher.results = []*store.PatternWithScore{
		scored(testPattern("p1", "2024-10-19", 140), 0.42),
		scored(testPattern("p2", "2024-10-12", 150), 0.31),
	}

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, p.Method)
	assert.Equal(t, 0.5, p.Confidence)
	assert.Equal(t, 120.0, p.PredictedCovers)
	assert.Equal(t, ReasonNoSimilarHistory, p.FallbackReason)
	assert.Empty(t, p.Degraded)
	assert.Empty(t, p.Patterns)
	assert.NotEmpty(t, p.Reasoning.Summary)
	require.NotNil(t, p.Staffing)
	assert.Equal(t, 8, p.Staffing.Servers)
}

func TestPredictWeightedAverage(t *testing.T) {
	f := newServiceFixture(t)
	f.searcher.results = threeScored()

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodWeightedAverage, p.Method)
	assert.InDelta(t, 140.3, p.PredictedCovers, 0.15)
	assert.Equal(t, 0.68, p.Confidence)
	assert.Equal(t, "pred_001", p.PredictionID)
	assert.Equal(t, "demo_bistro", p.RestaurantID)
	assert.Equal(t, "2024-10-25", p.ServiceDate)
	assert.Len(t, p.Patterns, 3)
	assert.Equal(t, SourceTemplate, p.Reasoning.Source)
	assert.Contains(t, p.Reasoning.Summary, "3 similar historical dinner services")
	assert.Equal(t, 9, p.Staffing.Servers)
	assert.Equal(t, 1, f.observer.predictions[string(MethodWeightedAverage)])

	records := f.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "pred_001", records[0].ID)
	assert.Equal(t, string(MethodWeightedAverage), records[0].Method)
	assert.Len(t, records[0].Patterns, 3)
	assert.Equal(t, PatternRef("p1"), records[0].Patterns[0].Ref)
}

func TestPredictEncodingUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.searcher.results = threeScored()
	f.encoder.failDates = map[string]bool{"2024-10-25": true}

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, p.Method)
	assert.Equal(t, ReasonEncodingUnavailable, p.FallbackReason)
	assert.Equal(t, []string{CollaboratorEmbedding}, p.Degraded)
	assert.Zero(t, f.searcher.calls.Load())
	assert.Equal(t, 1, f.observer.degraded[CollaboratorEmbedding])
	assert.Contains(t, p.Reasoning.Summary, "Historical matching was unavailable")
}

func TestPredictStoreUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.searcher.err = errCollaboratorDown

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodFallback, p.Method)
	assert.Equal(t, ReasonStoreUnavailable, p.FallbackReason)
	assert.Equal(t, []string{CollaboratorStore}, p.Degraded)
	assert.Equal(t, 1, f.observer.degraded[CollaboratorStore])
}

func TestPredictSearchTimeoutIsUnavailable(t *testing.T) {
	f := newServiceFixture(t)
	f.service.retriever = NewRetriever(searcherFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 20*time.Millisecond)

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, ReasonStoreUnavailable, p.FallbackReason)
}

type searcherFunc func(ctx context.Context) error

func (fn searcherFunc) SearchPatterns(ctx context.Context, _ *store.SearchPatternsOptions) ([]*store.PatternWithScore, error) {
	return nil, fn(ctx)
}

func TestPredictInvalidQuery(t *testing.T) {
	f := newServiceFixture(t)

	tests := []struct {
		name  string
		query *Query
	}{
		{"nil", nil},
		{"missing restaurant", &Query{ServiceDate: "2024-10-25", ServiceType: store.ServiceTypeDinner}},
		{"bad date", &Query{RestaurantID: "r", ServiceDate: "2024-02-30", ServiceType: store.ServiceTypeDinner}},
		{"bad date format", &Query{RestaurantID: "r", ServiceDate: "25/10/2024", ServiceType: store.ServiceTypeDinner}},
		{"bad service type", &Query{RestaurantID: "r", ServiceDate: "2024-10-25", ServiceType: "brunch"}},
		{"occupancy out of range", &Query{RestaurantID: "r", ServiceDate: "2024-10-25", ServiceType: store.ServiceTypeDinner, OccupancyHint: floatPtr(1.5)}},
		{"negative event distance", &Query{RestaurantID: "r", ServiceDate: "2024-10-25", ServiceType: store.ServiceTypeDinner, NearbyEvents: []Event{{Name: "x", DistanceKM: -1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Predict(context.Background(), tt.query)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
	assert.Zero(t, f.encoder.Calls())
}

func TestPredictNormalizesServiceType(t *testing.T) {
	f := newServiceFixture(t)
	q := dinnerQuery("2024-10-25")
	q.ServiceType = " Dinner "

	p, err := f.service.Predict(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, store.ServiceTypeDinner, p.ServiceType)
}

func TestPredictProfileResolution(t *testing.T) {
	t.Run("invalid stored profile", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile.CoversPerRunner = 0
		_, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		assert.ErrorIs(t, err, ErrInvalidProfile)
		assert.Zero(t, f.encoder.Calls())
	})

	t.Run("profile failing tag validation", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile.TopK = ptr(50)
		_, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("zero top-k override is rejected", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile.TopK = ptr(0)
		_, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("zero similarity floor override", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile.SimilarityFloor = ptr(0.0)
		_, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		require.NotNil(t, f.searcher.last)
		assert.Equal(t, 0.0, f.searcher.last.MinScore)
		assert.Equal(t, DefaultConfig().TopK, f.searcher.last.Limit)
	})

	t.Run("unset overrides use service config", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		require.NotNil(t, f.searcher.last)
		assert.Equal(t, DefaultConfig().SimilarityFloor, f.searcher.last.MinScore)
	})

	t.Run("missing profile uses defaults", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile = nil
		p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		assert.Equal(t, 8, p.Staffing.Servers)
		assert.Equal(t, IntensityBusy, p.Staffing.Intensity)
	})

	t.Run("lookup failure uses defaults", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.err = errCollaboratorDown
		p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		assert.NotNil(t, p.Staffing)
	})

	t.Run("overrides", func(t *testing.T) {
		f := newServiceFixture(t)
		f.profiles.profile.TopK = ptr(2)
		f.profiles.profile.SimilarityFloor = ptr(0.9)
		f.profiles.profile.BaselineCovers = map[store.ServiceType]float64{store.ServiceTypeDinner: 80}

		p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		require.NotNil(t, f.searcher.last)
		assert.Equal(t, 2, f.searcher.last.Limit)
		assert.Equal(t, 0.9, f.searcher.last.MinScore)
		assert.Equal(t, 80.0, p.PredictedCovers)
	})
}

func TestPredictRecorderFailureIsIgnored(t *testing.T) {
	f := newServiceFixture(t)
	f.recorder.err = errCollaboratorDown
	f.searcher.results = threeScored()

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodWeightedAverage, p.Method)
}

func TestPredictWithModelReasoning(t *testing.T) {
	f := newServiceFixture(t, withLLM(&fakeLLM{reply: `{"summary": "Three Saturdays agree on about 140 covers.", "confidence_factors": ["Saturday"]}`}))
	f.searcher.results = threeScored()

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, p.Reasoning.Source)
	assert.Equal(t, []string{"Saturday"}, p.Reasoning.ConfidenceFactors)
	assert.Empty(t, p.Degraded)
}

func TestPredictGenerationUnavailable(t *testing.T) {
	f := newServiceFixture(t, withLLM(&fakeLLM{err: errCollaboratorDown}), withCache())
	f.searcher.results = threeScored()

	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodWeightedAverage, p.Method)
	assert.Equal(t, SourceTemplate, p.Reasoning.Source)
	assert.Equal(t, []string{CollaboratorGeneration}, p.Degraded)
	assert.Empty(t, f.backend.Keys())
}

func TestPredictCacheRoundTrip(t *testing.T) {
	f := newServiceFixture(t, withCache())
	f.searcher.results = threeScored()
	ctx := context.Background()

	first, err := f.service.Predict(ctx, dinnerQuery("2024-10-25"))
	require.NoError(t, err)

	// Enrichment is not part of the key.
	enriched := dinnerQuery("2024-10-25")
	enriched.Weather = &WeatherForecast{Condition: "storm"}
	second, err := f.service.Predict(ctx, enriched)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))

	assert.Equal(t, 1, f.encoder.Calls())
	assert.Equal(t, int32(1), f.searcher.calls.Load())
	assert.Equal(t, 1, f.observer.cached)
	assert.Len(t, f.recorder.Records(), 1)

	// A different key component is a miss.
	_, err = f.service.Predict(ctx, dinnerQuery("2024-10-26"))
	require.NoError(t, err)
	lunch := dinnerQuery("2024-10-25")
	lunch.ServiceType = store.ServiceTypeLunch
	_, err = f.service.Predict(ctx, lunch)
	require.NoError(t, err)
	assert.Equal(t, 3, f.encoder.Calls())

	require.NoError(t, f.service.Cache().InvalidateRestaurant(ctx, "demo_bistro"))
	assert.Empty(t, f.backend.Keys())
	_, err = f.service.Predict(ctx, dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, 4, f.encoder.Calls())
}

func TestPredictCacheHitKeepsRequestedRestaurantID(t *testing.T) {
	f := newServiceFixture(t, withCache())
	f.searcher.results = threeScored()
	ctx := context.Background()

	first, err := f.service.Predict(ctx, dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, "demo_bistro", first.RestaurantID)

	byUUID := dinnerQuery("2024-10-25")
	byUUID.RestaurantID = store.NormalizeRestaurantID("demo_bistro")
	second, err := f.service.Predict(ctx, byUUID)
	require.NoError(t, err)
	assert.Equal(t, byUUID.RestaurantID, second.RestaurantID)
	assert.Equal(t, first.PredictionID, second.PredictionID)
	assert.Equal(t, 1, f.encoder.Calls())

	third, err := f.service.Predict(ctx, dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, "demo_bistro", third.RestaurantID)
}

func TestPredictDegradedIsNotCached(t *testing.T) {
	f := newServiceFixture(t, withCache())
	f.encoder.failDates = map[string]bool{"2024-10-25": true}

	for range 2 {
		p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		require.NoError(t, err)
		assert.Equal(t, MethodFallback, p.Method)
	}
	assert.Equal(t, 2, f.encoder.Calls())
	assert.Empty(t, f.backend.Keys())
}

func TestPredictSingleFlight(t *testing.T) {
	f := newServiceFixture(t, withCache())
	f.searcher.results = threeScored()
	f.encoder.delay = 100 * time.Millisecond

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*Prediction, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].PredictionID, results[i].PredictionID)
	}
	assert.Equal(t, 1, f.encoder.Calls())
	assert.Len(t, f.recorder.Records(), 1)
}

func TestPredictCallerCancellationDoesNotAbortFlight(t *testing.T) {
	f := newServiceFixture(t, withCache())
	f.searcher.results = threeScored()
	f.encoder.delay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.service.Predict(ctx, dinnerQuery("2024-10-25"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached flight still completes and fills the cache.
	assert.Eventually(t, func() bool { return len(f.backend.Keys()) == 1 }, time.Second, 10*time.Millisecond)
	p, err := f.service.Predict(context.Background(), dinnerQuery("2024-10-25"))
	require.NoError(t, err)
	assert.Equal(t, MethodWeightedAverage, p.Method)
	assert.Equal(t, 1, f.encoder.Calls())
}

func TestFallbackPrediction(t *testing.T) {
	f := newServiceFixture(t)
	p := f.service.Fallback(context.Background(), dinnerQuery("2024-10-25"), errCollaboratorDown)
	assert.Equal(t, MethodFallback, p.Method)
	assert.Equal(t, ReasonPredictionFailed, p.FallbackReason)
	assert.Equal(t, 0.5, p.Confidence)
	assert.NotEmpty(t, p.Reasoning.Summary)
	assert.NotNil(t, p.Staffing)
	assert.Zero(t, f.encoder.Calls())

	f.profiles.profile.CoversPerServer = 0
	p = f.service.Fallback(context.Background(), dinnerQuery("2024-10-25"), ErrInvalidProfile)
	require.NotNil(t, p.Staffing)
	assert.Equal(t, 8, p.Staffing.Servers)
}
