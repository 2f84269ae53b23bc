package store

import (
	"context"
	"math"
	"strings"
	"time"
)

// ServiceType is the meal service a pattern or prediction refers to.
type ServiceType string

const (
	ServiceTypeBreakfast ServiceType = "breakfast"
	ServiceTypeLunch     ServiceType = "lunch"
	ServiceTypeDinner    ServiceType = "dinner"
	ServiceTypeOther     ServiceType = "other"
)

// ServiceTypes lists every supported service type.
var ServiceTypes = []ServiceType{
	ServiceTypeBreakfast,
	ServiceTypeLunch,
	ServiceTypeDinner,
	ServiceTypeOther,
}

// IsValid reports whether t is one of the supported service types.
func (t ServiceType) IsValid() bool {
	switch t {
	case ServiceTypeBreakfast, ServiceTypeLunch, ServiceTypeDinner, ServiceTypeOther:
		return true
	}
	return false
}

// ParseServiceType normalizes s and returns the matching service type.
func ParseServiceType(s string) (ServiceType, bool) {
	t := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.IsValid()
}

// Pattern is a historical operating scenario with its embedding and observed outcome.
// Patterns are written once by ingestion tooling and read-only afterwards.
type Pattern struct {
	ID           string
	RestaurantID string
	ServiceDate  time.Time
	ServiceType  ServiceType

	DayType         string // weekday, weekend
	Season          string // winter, spring, summer, autumn
	HasNearbyEvent  bool
	EventType       string
	WeatherCategory string

	ObservedCovers int

	Embedding []float32
	Model     string
	CreatedTs int64
}

// FindPattern is the find condition for patterns.
type FindPattern struct {
	ID           *string
	RestaurantID *string
	ServiceType  *ServiceType
	Limit        int
}

// PatternWithScore is a vector search result with cosine similarity.
type PatternWithScore struct {
	Pattern *Pattern
	Score   float64
}

// SearchPatternsOptions represents the options for pattern similarity search.
type SearchPatternsOptions struct {
	RestaurantID string       // Required
	ServiceType  *ServiceType // Optional filter
	Vector       []float32
	Limit        int     // default 5
	MinScore     float64 // similarity floor, results below are dropped
}

// CreatePattern stores a new pattern. Only ingestion tooling calls this.
func (s *Store) CreatePattern(ctx context.Context, create *Pattern) (*Pattern, error) {
	create.RestaurantID = NormalizeRestaurantID(create.RestaurantID)
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreatePattern(ctx, create)
}

// ListPatterns lists patterns.
func (s *Store) ListPatterns(ctx context.Context, find *FindPattern) ([]*Pattern, error) {
	if find.RestaurantID != nil {
		id := NormalizeRestaurantID(*find.RestaurantID)
		find.RestaurantID = &id
	}
	return s.driver.ListPatterns(ctx, find)
}

// SearchPatterns performs cosine similarity search over a restaurant's patterns.
func (s *Store) SearchPatterns(ctx context.Context, opts *SearchPatternsOptions) ([]*PatternWithScore, error) {
	normalized := *opts
	normalized.RestaurantID = NormalizeRestaurantID(opts.RestaurantID)
	if normalized.Limit <= 0 {
		normalized.Limit = 5
	}
	return s.driver.SearchPatterns(ctx, &normalized)
}

// CosineSimilarity returns the cosine similarity of a and b.
// Vectors of different length or with zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
