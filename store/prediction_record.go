package store

import (
	"context"
	"time"
)

// MaxRecordedPatterns caps how many contributing patterns are kept per prediction record.
const MaxRecordedPatterns = 5

// PredictionRecord is a stored prediction kept for later comparison with actual covers.
type PredictionRecord struct {
	ID              string              `json:"id"`
	RestaurantID    string              `json:"restaurant_id"`
	ServiceDate     time.Time           `json:"service_date"`
	ServiceType     ServiceType         `json:"service_type"`
	PredictedCovers float64             `json:"predicted_covers"`
	RangeLow        int                 `json:"range_low"`
	RangeHigh       int                 `json:"range_high"`
	Confidence      float64             `json:"confidence"`
	Method          string              `json:"method"`
	Factors         []string            `json:"factors,omitempty"`
	Patterns        []PredictionPattern `json:"similar_patterns,omitempty"`
	CreatedTs       int64               `json:"created_ts"`
}

// PredictionPattern is the stored summary of one contributing pattern.
type PredictionPattern struct {
	Ref        string  `json:"ref"`
	Date       string  `json:"date"`
	Covers     int     `json:"covers"`
	Similarity float64 `json:"similarity"`
	DayType    string  `json:"day_type,omitempty"`
}

// FindPredictionRecord is the find condition for prediction records.
type FindPredictionRecord struct {
	ID           *string
	RestaurantID *string
	ServiceDate  *time.Time
	Limit        int
}

// CreatePredictionRecord stores a prediction record.
func (s *Store) CreatePredictionRecord(ctx context.Context, create *PredictionRecord) (*PredictionRecord, error) {
	create.RestaurantID = NormalizeRestaurantID(create.RestaurantID)
	if len(create.Patterns) > MaxRecordedPatterns {
		create.Patterns = create.Patterns[:MaxRecordedPatterns]
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreatePredictionRecord(ctx, create)
}

// ListPredictionRecords lists prediction records, newest first.
func (s *Store) ListPredictionRecords(ctx context.Context, find *FindPredictionRecord) ([]*PredictionRecord, error) {
	if find.RestaurantID != nil {
		id := NormalizeRestaurantID(*find.RestaurantID)
		find.RestaurantID = &id
	}
	return s.driver.ListPredictionRecords(ctx, find)
}
