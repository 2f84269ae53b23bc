package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/covercast/store"
)

// PatternSearcher is the similarity search side of the pattern store.
type PatternSearcher interface {
	SearchPatterns(ctx context.Context, opts *store.SearchPatternsOptions) ([]*store.PatternWithScore, error)
}

// Retriever finds the historical patterns most similar to a query vector.
type Retriever struct {
	searcher PatternSearcher
	timeout  time.Duration
}

// NewRetriever creates a Retriever. A zero timeout leaves the caller's deadline in charge.
func NewRetriever(searcher PatternSearcher, timeout time.Duration) *Retriever {
	return &Retriever{searcher: searcher, timeout: timeout}
}

// RetrieveOptions scopes one retrieval.
type RetrieveOptions struct {
	RestaurantID string
	ServiceType  store.ServiceType
	Vector       []float32
	K            int
	Floor        float64
}

// Retrieve returns at most K matches with similarity at or above the floor,
// most similar first. Fewer than K matches, or none, is a valid result.
// Search failures, deadline included, are reported as ErrStoreUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, opts RetrieveOptions) ([]MatchedPattern, error) {
	if opts.K <= 0 {
		return nil, nil
	}
	if r.searcher == nil {
		return nil, fmt.Errorf("%w: no pattern store configured", ErrStoreUnavailable)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	serviceType := opts.ServiceType
	results, err := r.searcher.SearchPatterns(ctx, &store.SearchPatternsOptions{
		RestaurantID: opts.RestaurantID,
		ServiceType:  &serviceType,
		Vector:       opts.Vector,
		Limit:        opts.K,
		MinScore:     opts.Floor,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	matches := make([]MatchedPattern, 0, len(results))
	for _, res := range results {
		if res == nil || res.Pattern == nil {
			continue
		}
		matches = append(matches, MatchedPattern{Pattern: res.Pattern, Similarity: res.Score})
	}
	return Rank(matches, opts.K, opts.Floor), nil
}

// Rank clamps similarities to [0, 1], drops matches below floor, orders by
// similarity desc then most recent service date then lowest id, and keeps the first k.
// The input slice is not modified.
func Rank(matches []MatchedPattern, k int, floor float64) []MatchedPattern {
	if k <= 0 {
		return nil
	}
	ranked := make([]MatchedPattern, 0, len(matches))
	for _, m := range matches {
		m.Similarity = clamp01(m.Similarity)
		if m.Similarity < floor {
			continue
		}
		ranked = append(ranked, m)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return matchLess(ranked[i], ranked[j])
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func matchLess(a, b MatchedPattern) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if !a.Pattern.ServiceDate.Equal(b.Pattern.ServiceDate) {
		return a.Pattern.ServiceDate.After(b.Pattern.ServiceDate)
	}
	return a.Pattern.ID < b.Pattern.ID
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// MemorySearcher is an in-process PatternSearcher over a fixed set of patterns.
// It backs the demo mode and tests.
type MemorySearcher struct {
	mu       sync.RWMutex
	patterns []*store.Pattern
}

// NewMemorySearcher creates a MemorySearcher holding patterns.
func NewMemorySearcher(patterns ...*store.Pattern) *MemorySearcher {
	s := &MemorySearcher{}
	s.Add(patterns...)
	return s
}

// Add appends patterns. Restaurant ids are normalized the way the store does.
func (s *MemorySearcher) Add(patterns ...*store.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		cp := *p
		cp.RestaurantID = store.NormalizeRestaurantID(p.RestaurantID)
		s.patterns = append(s.patterns, &cp)
	}
}

// SearchPatterns scores every pattern of the restaurant by cosine similarity.
func (s *MemorySearcher) SearchPatterns(ctx context.Context, opts *store.SearchPatternsOptions) ([]*store.PatternWithScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	restaurantID := store.NormalizeRestaurantID(opts.RestaurantID)

	s.mu.RLock()
	matches := make([]MatchedPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		if p.RestaurantID != restaurantID {
			continue
		}
		if opts.ServiceType != nil && p.ServiceType != *opts.ServiceType {
			continue
		}
		matches = append(matches, MatchedPattern{Pattern: p, Similarity: store.CosineSimilarity(opts.Vector, p.Embedding)})
	}
	s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = len(matches)
	}
	ranked := Rank(matches, limit, opts.MinScore)
	results := make([]*store.PatternWithScore, 0, len(ranked))
	for _, m := range ranked {
		results = append(results, &store.PatternWithScore{Pattern: m.Pattern, Score: m.Similarity})
	}
	return results, nil
}
