package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/covercast/internal/validation"
	"github.com/hrygo/covercast/store"
)

// Enrichment is the optional per-date context of a batch query.
type Enrichment struct {
	NearbyEvents  []Event          `json:"nearby_events,omitempty" validate:"omitempty,max=50,dive"`
	Weather       *WeatherForecast `json:"weather_forecast,omitempty"`
	OccupancyHint *float64         `json:"occupancy_hint,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// BatchQuery forecasts one service type over an inclusive date range.
type BatchQuery struct {
	RestaurantID string            `json:"restaurant_id" validate:"required,max=128"`
	ServiceType  store.ServiceType `json:"service_type" validate:"required,service_type"`
	From         string            `json:"from" validate:"required,datetime=2006-01-02"`
	To           string            `json:"to" validate:"required,datetime=2006-01-02"`
	// Enrichment is keyed by service date (YYYY-MM-DD).
	Enrichment map[string]Enrichment `json:"enrichment,omitempty" validate:"omitempty,dive"`
}

// BatchEntry is the prediction of one date.
type BatchEntry struct {
	Date       string      `json:"date"`
	Prediction *Prediction `json:"prediction"`
}

// BatchSummary aggregates a batch.
type BatchSummary struct {
	Days           int     `json:"days"`
	TotalCovers    float64 `json:"total_covers"`
	PeakDate       string  `json:"peak_date"`
	PeakCovers     float64 `json:"peak_covers"`
	MeanConfidence float64 `json:"mean_confidence"`
	FallbackCount  int     `json:"fallback_count"`
}

// BatchResult holds one entry per date in date order.
type BatchResult struct {
	RestaurantID string            `json:"restaurant_id"`
	ServiceType  store.ServiceType `json:"service_type"`
	From         string            `json:"from"`
	To           string            `json:"to"`
	Entries      []BatchEntry      `json:"entries"`
	Summary      BatchSummary      `json:"summary"`
}

// Predictor is the single-date pipeline a batch fans out to.
type Predictor interface {
	ResolveProfile(ctx context.Context, restaurantID string) (*store.RestaurantProfile, error)
	Predict(ctx context.Context, q *Query) (*Prediction, error)
	Fallback(ctx context.Context, q *Query, cause error) *Prediction
}

// BatchObserver receives batch metrics.
type BatchObserver interface {
	ObserveBatch(days int)
}

// BatchOrchestrator runs one prediction per date with bounded parallelism.
// A failing date gets a fallback entry and never affects the other dates.
// An invalid restaurant profile fails the whole batch with ErrInvalidProfile.
type BatchOrchestrator struct {
	predictor   Predictor
	concurrency int
	maxDays     int
	observer    BatchObserver
}

// NewBatchOrchestrator creates a BatchOrchestrator. observer may be nil.
func NewBatchOrchestrator(predictor Predictor, concurrency, maxDays int, observer BatchObserver) *BatchOrchestrator {
	if concurrency <= 0 {
		concurrency = 1
	}
	if maxDays <= 0 {
		maxDays = DefaultConfig().BatchMaxDays
	}
	return &BatchOrchestrator{
		predictor:   predictor,
		concurrency: concurrency,
		maxDays:     maxDays,
		observer:    observer,
	}
}

// Dates expands the inclusive range of q. It fails with ErrInvalidQuery when the
// range is malformed, reversed or longer than maxDays.
func (q *BatchQuery) Dates(maxDays int) ([]time.Time, error) {
	from, err := time.Parse(DateLayout, q.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidQuery, q.From)
	}
	to, err := time.Parse(DateLayout, q.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidQuery, q.To)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to %s is before from %s", ErrInvalidQuery, q.To, q.From)
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if maxDays > 0 && days > maxDays {
		return nil, fmt.Errorf("%w: range of %d days exceeds %d", ErrInvalidQuery, days, maxDays)
	}
	dates := make([]time.Time, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates, nil
}

// Run predicts every date of q. Entries keep date order regardless of completion order.
func (b *BatchOrchestrator) Run(ctx context.Context, q *BatchQuery) (*BatchResult, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: empty batch query", ErrInvalidQuery)
	}
	if st, ok := store.ParseServiceType(string(q.ServiceType)); ok {
		q.ServiceType = st
	}
	if err := validateBatchQuery(q); err != nil {
		return nil, err
	}
	dates, err := q.Dates(b.maxDays)
	if err != nil {
		return nil, err
	}
	if _, err := b.predictor.ResolveProfile(ctx, q.RestaurantID); err != nil {
		return nil, err
	}

	entries := make([]BatchEntry, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, date := range dates {
		query := q.queryFor(date)
		g.Go(func() error {
			p, err := b.predictor.Predict(gctx, query)
			if isCallerError(err) {
				return err
			}
			if err != nil || p == nil {
				p = b.predictor.Fallback(gctx, query, err)
			}
			entries[i] = BatchEntry{Date: query.ServiceDate, Prediction: p}
			return nil
		})
	}
	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}

	if b.observer != nil {
		b.observer.ObserveBatch(len(entries))
	}
	return &BatchResult{
		RestaurantID: q.RestaurantID,
		ServiceType:  q.ServiceType,
		From:         q.From,
		To:           q.To,
		Entries:      entries,
		Summary:      summarizeBatch(entries),
	}, nil
}

// isCallerError reports errors the caller must fix; they are never replaced by a fallback.
func isCallerError(err error) bool {
	return errors.Is(err, ErrInvalidProfile) || errors.Is(err, ErrInvalidQuery)
}

func (q *BatchQuery) queryFor(date time.Time) *Query {
	serviceDate := date.Format(DateLayout)
	query := &Query{
		RestaurantID: q.RestaurantID,
		ServiceDate:  serviceDate,
		ServiceType:  q.ServiceType,
	}
	if e, ok := q.Enrichment[serviceDate]; ok {
		query.NearbyEvents = e.NearbyEvents
		query.Weather = e.Weather
		query.OccupancyHint = e.OccupancyHint
	}
	return query
}

func summarizeBatch(entries []BatchEntry) BatchSummary {
	summary := BatchSummary{Days: len(entries)}
	var confidence float64
	for _, e := range entries {
		p := e.Prediction
		summary.TotalCovers += p.PredictedCovers
		confidence += p.Confidence
		if p.Method == MethodFallback {
			summary.FallbackCount++
		}
		if summary.PeakDate == "" || p.PredictedCovers > summary.PeakCovers {
			summary.PeakDate = e.Date
			summary.PeakCovers = p.PredictedCovers
		}
	}
	summary.TotalCovers = roundTo(summary.TotalCovers, 1)
	if len(entries) > 0 {
		summary.MeanConfidence = roundTo(confidence/float64(len(entries)), 3)
	}
	return summary
}

func validateBatchQuery(q *BatchQuery) error {
	if err := validation.ValidateStruct(q); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}
