// Package forecast predicts restaurant covers for a service from similar historical services.
//
// A prediction flows through five stages:
//
//	Encode    -> the service context becomes an embedding vector
//	Retrieve  -> the K most similar historical patterns above the floor
//	Aggregate -> similarity-weighted covers and a confidence score
//	Staff     -> headcount per role from the restaurant profile
//	Synthesize-> a short explanation, generated or templated
//
// Encoding and retrieval failures never fail a prediction: they become the
// fallback branch of the aggregator and the response says so in Method.
package forecast

import (
	"time"

	"github.com/hrygo/covercast/store"
)

// Method names how a forecast was produced.
type Method string

const (
	// MethodWeightedAverage is a forecast built from similar historical patterns.
	MethodWeightedAverage Method = "weighted_average"
	// MethodFallback is the degraded forecast used when no pattern could contribute.
	MethodFallback Method = "fallback_mock"
)

// Fallback reasons reported with MethodFallback.
const (
	ReasonNoSimilarHistory    = "no_similar_history"
	ReasonEncodingUnavailable = "encoding_unavailable"
	ReasonStoreUnavailable    = "store_unavailable"
	ReasonPredictionFailed    = "prediction_failed"
)

// Collaborator names used in logs, metrics and Prediction.Degraded.
const (
	CollaboratorEmbedding  = "embedding"
	CollaboratorStore      = "pattern_store"
	CollaboratorGeneration = "generation"
)

// DateLayout is the wire format of service dates.
const DateLayout = "2006-01-02"

// Event is a nearby event known for the service date.
type Event struct {
	Name               string  `json:"name" validate:"required,max=200"`
	Type               string  `json:"type,omitempty" validate:"max=64"`
	DistanceKM         float64 `json:"distance_km" validate:"gte=0"`
	ExpectedAttendance int     `json:"expected_attendance,omitempty" validate:"gte=0"`
}

// WeatherForecast is the forecast weather for the service date.
type WeatherForecast struct {
	Condition    string   `json:"condition" validate:"max=64"`
	TemperatureC *float64 `json:"temperature_c,omitempty" validate:"omitempty,gte=-60,lte=60"`
}

// Query is one forecast request.
type Query struct {
	RestaurantID  string            `json:"restaurant_id" validate:"required,max=128"`
	ServiceDate   string            `json:"service_date" validate:"required,datetime=2006-01-02"`
	ServiceType   store.ServiceType `json:"service_type" validate:"required,service_type"`
	NearbyEvents  []Event           `json:"nearby_events,omitempty" validate:"omitempty,max=50,dive"`
	Weather       *WeatherForecast  `json:"weather_forecast,omitempty"`
	OccupancyHint *float64          `json:"occupancy_hint,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Date parses ServiceDate.
func (q *Query) Date() (time.Time, error) {
	return time.Parse(DateLayout, q.ServiceDate)
}

// MatchedPattern is a pattern annotated with its similarity to one query.
type MatchedPattern struct {
	Pattern    *store.Pattern
	Similarity float64
}

// RetrievalStatus is the typed result of encoding plus retrieval.
type RetrievalStatus string

const (
	StatusOK                  RetrievalStatus = "ok"
	StatusNoMatches           RetrievalStatus = "no_matches"
	StatusEncodingUnavailable RetrievalStatus = "encoding_unavailable"
	StatusStoreUnavailable    RetrievalStatus = "store_unavailable"
)

// RetrievalOutcome is what the aggregator consumes. Err is set for the unavailable statuses.
type RetrievalOutcome struct {
	Status  RetrievalStatus
	Matches []MatchedPattern
	Err     error
}

// Forecast is the aggregator's result.
type Forecast struct {
	PredictedCovers float64
	RangeLow        int
	RangeHigh       int
	Confidence      float64
	Method          Method
	FallbackReason  string
	// Matches are the contributing patterns, most similar first.
	Matches []MatchedPattern
}

// PatternSummary describes one contributing pattern without exposing its stored id.
type PatternSummary struct {
	Ref             string  `json:"ref"`
	Date            string  `json:"date"`
	DayType         string  `json:"day_type"`
	Season          string  `json:"season"`
	HasNearbyEvent  bool    `json:"has_nearby_event"`
	WeatherCategory string  `json:"weather_category"`
	Covers          int     `json:"covers"`
	Similarity      float64 `json:"similarity"`
}

// Prediction is the full response for one query. Cached values are shared; treat as read-only.
type Prediction struct {
	PredictionID    string            `json:"prediction_id"`
	RestaurantID    string            `json:"restaurant_id"`
	ServiceDate     string            `json:"service_date"`
	ServiceType     store.ServiceType `json:"service_type"`
	PredictedCovers float64           `json:"predicted_covers"`
	RangeLow        int               `json:"range_low"`
	RangeHigh       int               `json:"range_high"`
	Confidence      float64           `json:"confidence"`
	Method          Method            `json:"method"`
	FallbackReason  string            `json:"fallback_reason,omitempty"`
	Degraded        []string          `json:"degraded,omitempty"`
	Staffing        *StaffingPlan     `json:"staffing"`
	Reasoning       Reasoning         `json:"reasoning"`
	Patterns        []PatternSummary  `json:"patterns"`
	CreatedAt       time.Time         `json:"created_at"`
}

// IsDegraded reports whether any collaborator failed while building p.
func (p *Prediction) IsDegraded() bool {
	return len(p.Degraded) > 0
}
