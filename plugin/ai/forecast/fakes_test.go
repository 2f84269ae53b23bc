package forecast

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hrygo/covercast/plugin/ai"
	"github.com/hrygo/covercast/store"
)

var errCollaboratorDown = errors.New("collaborator down")

// hashEmbedder maps text to a deterministic vector.
type hashEmbedder struct {
	calls atomic.Int32
	err   error
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashVector(text)
	}
	return vectors, nil
}

func (e *hashEmbedder) Dimensions() int { return 8 }
func (e *hashEmbedder) Model() string   { return "hash" }

func hashVector(text string) []float32 {
	v := make([]float32, 8)
	for i := range v {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		v[i] = float32(h.Sum32()%1000) / 1000
	}
	return v
}

var _ ai.EmbeddingService = (*hashEmbedder)(nil)

// fakeEncoder returns a fixed vector and fails for the dates in failDates.
type fakeEncoder struct {
	mu        sync.Mutex
	calls     int
	failDates map[string]bool
	delay     time.Duration
	vector    []float32
}

func (e *fakeEncoder) Encode(ctx context.Context, q *Query) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.failDates[q.ServiceDate]
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errCollaboratorDown
	}
	if e.vector != nil {
		return e.vector, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *fakeEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// fakeSearcher returns fixed results.
type fakeSearcher struct {
	calls   atomic.Int32
	results []*store.PatternWithScore
	err     error
	last    *store.SearchPatternsOptions
	mu      sync.Mutex
}

func (s *fakeSearcher) SearchPatterns(_ context.Context, opts *store.SearchPatternsOptions) ([]*store.PatternWithScore, error) {
	s.calls.Add(1)
	s.mu.Lock()
	cp := *opts
	s.last = &cp
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// fakeLLM replies with reply or fails with err.
type fakeLLM struct {
	calls    atomic.Int32
	reply    string
	err      error
	messages []ai.Message
	mu       sync.Mutex
}

func (l *fakeLLM) Chat(_ context.Context, messages []ai.Message) (string, error) {
	l.calls.Add(1)
	l.mu.Lock()
	l.messages = messages
	l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	return l.reply, nil
}

type fakeProfiles struct {
	profile *store.RestaurantProfile
	err     error
	calls   atomic.Int32
}

func (p *fakeProfiles) GetRestaurantProfile(_ context.Context, _ string) (*store.RestaurantProfile, error) {
	p.calls.Add(1)
	return p.profile, p.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []*store.PredictionRecord
	err     error
}

func (r *fakeRecorder) CreatePredictionRecord(_ context.Context, create *store.PredictionRecord) (*store.PredictionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.records = append(r.records, create)
	return create, nil
}

func (r *fakeRecorder) Records() []*store.PredictionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*store.PredictionRecord(nil), r.records...)
}

type fakeObserver struct {
	mu          sync.Mutex
	predictions map[string]int
	cached      int
	degraded    map[string]int
	batches     []int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{predictions: map[string]int{}, degraded: map[string]int{}}
}

func (o *fakeObserver) ObservePrediction(method string, cached bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predictions[method]++
	if cached {
		o.cached++
	}
}

func (o *fakeObserver) ObserveDegradation(collaborator string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.degraded[collaborator]++
}

func (o *fakeObserver) ObserveBatch(days int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, days)
}

func testPattern(id string, date string, covers int) *store.Pattern {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		panic(err)
	}
	return &store.Pattern{
		ID:              id,
		RestaurantID:    "demo_bistro",
		ServiceDate:     d,
		ServiceType:     store.ServiceTypeDinner,
		DayType:         DayType(d),
		Season:          Season(d),
		WeatherCategory: WeatherClear,
		ObservedCovers:  covers,
	}
}

func scored(p *store.Pattern, score float64) *store.PatternWithScore {
	return &store.PatternWithScore{Pattern: p, Score: score}
}

func testProfile() *store.RestaurantProfile {
	p := DefaultProfile("demo_bistro", DefaultOutletType)
	p.BreakevenCovers = 25
	p.TargetCovers = 45
	return p
}

func ptr[T any](v T) *T { return &v }
