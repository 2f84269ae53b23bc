package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/internal/profile"
	"github.com/hrygo/covercast/internal/validation"
	"github.com/hrygo/covercast/plugin/ai/timeout"
	"github.com/hrygo/covercast/store"
)

// ProfileProvider reads restaurant profiles. A missing profile is (nil, nil).
type ProfileProvider interface {
	GetRestaurantProfile(ctx context.Context, restaurantID string) (*store.RestaurantProfile, error)
}

// PredictionRecorder keeps served predictions for later comparison with actual covers.
type PredictionRecorder interface {
	CreatePredictionRecord(ctx context.Context, create *store.PredictionRecord) (*store.PredictionRecord, error)
}

// Observer receives prediction metrics.
type Observer interface {
	ObservePrediction(method string, cached bool, duration time.Duration)
	ObserveDegradation(collaborator string)
}

// Config holds the forecast knobs. Profile overrides for K, floor and baseline win when set.
type Config struct {
	TopK               int
	SimilarityFloor    float64
	FallbackCovers     float64
	FallbackConfidence float64
	RequestTimeout     time.Duration
	BatchConcurrency   int
	BatchMaxDays       int
}

// DefaultConfig returns the default forecast configuration.
func DefaultConfig() Config {
	return Config{
		TopK:               5,
		SimilarityFloor:    0.5,
		FallbackCovers:     120,
		FallbackConfidence: 0.5,
		RequestTimeout:     timeout.RequestTimeout,
		BatchConcurrency:   4,
		BatchMaxDays:       62,
	}
}

// ConfigFromProfile reads the forecast knobs from the process profile.
func ConfigFromProfile(p *profile.Profile) Config {
	return Config{
		TopK:               p.TopK,
		SimilarityFloor:    p.SimilarityFloor,
		FallbackCovers:     p.FallbackCovers,
		FallbackConfidence: p.FallbackConfidence,
		RequestTimeout:     p.RequestTimeout,
		BatchConcurrency:   p.BatchConcurrency,
		BatchMaxDays:       p.BatchMaxDays,
	}
}

// Dependencies are the collaborators of a Service. Only Encoder and Retriever are required;
// the rest degrade to defaults when nil.
type Dependencies struct {
	Profiles    ProfileProvider
	Recorder    PredictionRecorder
	Encoder     Encoder
	Retriever   *Retriever
	Synthesizer *Synthesizer
	Cache       *PredictionCache
	Observer    Observer
	Logger      *slog.Logger
}

// Service runs the prediction pipeline.
type Service struct {
	cfg         Config
	profiles    ProfileProvider
	recorder    PredictionRecorder
	encoder     Encoder
	retriever   *Retriever
	aggregator  *Aggregator
	synthesizer *Synthesizer
	cache       *PredictionCache
	observer    Observer
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a Service.
func NewService(cfg Config, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	synthesizer := deps.Synthesizer
	if synthesizer == nil {
		synthesizer = NewSynthesizer(nil, 0, logger)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeout.RequestTimeout
	}
	return &Service{
		cfg:         cfg,
		profiles:    deps.Profiles,
		recorder:    deps.Recorder,
		encoder:     deps.Encoder,
		retriever:   deps.Retriever,
		aggregator:  NewAggregator(cfg.FallbackConfidence),
		synthesizer: synthesizer,
		cache:       deps.Cache,
		observer:    deps.Observer,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return "pred_" + shortuuid.New() },
	}
}

// Cache returns the prediction cache, nil when caching is off.
func (s *Service) Cache() *PredictionCache {
	return s.cache
}

// Predict forecasts covers for one service. Collaborator outages never fail it;
// only ErrInvalidQuery and ErrInvalidProfile are returned.
func (s *Service) Predict(ctx context.Context, q *Query) (*Prediction, error) {
	start := s.now()
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	date, _ := q.Date()

	rp, err := s.ResolveProfile(ctx, q.RestaurantID)
	if err != nil {
		return nil, err
	}

	compute := func(ctx context.Context) (*Prediction, error) {
		return s.compute(ctx, q, rp)
	}

	var (
		p   *Prediction
		hit bool
	)
	if s.cache != nil {
		p, hit, err = s.cache.GetOrCompute(ctx, CacheKey(q.RestaurantID, date, q.ServiceType), compute)
		if err == nil {
			// Callers share the cached prediction; each gets the id it asked with.
			shared := *p
			shared.RestaurantID = q.RestaurantID
			p = &shared
		}
	} else {
		p, err = compute(ctx)
	}
	if err != nil {
		return nil, err
	}

	duration := s.now().Sub(start)
	if s.observer != nil {
		s.observer.ObservePrediction(string(p.Method), hit, duration)
	}
	logger := observability.Logger(ctx, s.logger)
	if hit {
		logger.Debug("prediction served from cache",
			slog.String(observability.LogFieldServiceDate, q.ServiceDate),
			slog.String(observability.LogFieldServiceType, string(q.ServiceType)),
		)
	} else {
		logger.Info("prediction served",
			slog.String(observability.LogFieldServiceDate, q.ServiceDate),
			slog.String(observability.LogFieldServiceType, string(q.ServiceType)),
			slog.String(observability.LogFieldMethod, string(p.Method)),
			slog.Int64(observability.LogFieldDuration, duration.Milliseconds()),
		)
	}
	return p, nil
}

// ValidateQuery checks q and reports failures as ErrInvalidQuery.
func ValidateQuery(q *Query) error {
	if q == nil {
		return fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if st, ok := store.ParseServiceType(string(q.ServiceType)); ok {
		q.ServiceType = st
	}
	if err := validation.ValidateStruct(q); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}

// ResolveProfile returns the restaurant's profile. A missing profile, or one the store
// cannot read, is replaced by the DefaultOutletType preset. A stored profile that fails
// validation is ErrInvalidProfile.
func (s *Service) ResolveProfile(ctx context.Context, restaurantID string) (*store.RestaurantProfile, error) {
	logger := observability.Logger(ctx, s.logger)
	if s.profiles == nil {
		return DefaultProfile(restaurantID, DefaultOutletType), nil
	}

	rp, err := s.profiles.GetRestaurantProfile(ctx, restaurantID)
	if err != nil {
		logger.Warn("failed to load restaurant profile, using defaults",
			slog.String(observability.LogFieldRestaurantID, restaurantID),
			slog.String("error", err.Error()),
		)
		return DefaultProfile(restaurantID, DefaultOutletType), nil
	}
	if rp == nil {
		logger.Warn("no restaurant profile, using defaults",
			slog.String(observability.LogFieldRestaurantID, restaurantID),
			slog.String("outlet_type", DefaultOutletType),
		)
		return DefaultProfile(restaurantID, DefaultOutletType), nil
	}

	if err := ValidateProfile(rp); err != nil {
		return nil, err
	}
	return rp, nil
}

// ValidateProfile checks staffing ratios, minimums and forecast overrides of rp,
// reporting failures as ErrInvalidProfile.
func ValidateProfile(rp *store.RestaurantProfile) error {
	if err := checkStaffingProfile(rp); err != nil {
		return err
	}
	if err := validation.ValidateStruct(rp); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	return nil
}

func (s *Service) compute(ctx context.Context, q *Query, rp *store.RestaurantProfile) (*Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	desc, err := Describe(q)
	if err != nil {
		return nil, err
	}

	outcome := s.retrieve(ctx, q, rp)
	f := s.aggregator.Aggregate(outcome, s.baseline(rp, q.ServiceType), s.topK(rp))

	staffing, err := RecommendStaff(f.PredictedCovers, q.ServiceType, rp)
	if err != nil {
		return nil, err
	}

	var degraded []string
	switch outcome.Status {
	case StatusEncodingUnavailable:
		degraded = append(degraded, CollaboratorEmbedding)
	case StatusStoreUnavailable:
		degraded = append(degraded, CollaboratorStore)
	}

	reasoning, err := s.synthesizer.Synthesize(ctx, desc, f)
	if err != nil {
		degraded = append(degraded, CollaboratorGeneration)
		s.observeDegradation(CollaboratorGeneration)
	}

	p := &Prediction{
		PredictionID:    s.newID(),
		RestaurantID:    q.RestaurantID,
		ServiceDate:     q.ServiceDate,
		ServiceType:     q.ServiceType,
		PredictedCovers: roundTo(f.PredictedCovers, 1),
		RangeLow:        f.RangeLow,
		RangeHigh:       f.RangeHigh,
		Confidence:      roundTo(f.Confidence, 3),
		Method:          f.Method,
		FallbackReason:  f.FallbackReason,
		Degraded:        degraded,
		Staffing:        staffing,
		Reasoning:       reasoning,
		Patterns:        Summarize(f.Matches),
		CreatedAt:       s.now().UTC().Truncate(time.Second),
	}
	s.record(ctx, p)
	return p, nil
}

// retrieve runs encoding and retrieval and turns their failures into a typed outcome.
func (s *Service) retrieve(ctx context.Context, q *Query, rp *store.RestaurantProfile) RetrievalOutcome {
	logger := observability.Logger(ctx, s.logger)

	if s.encoder == nil {
		return RetrievalOutcome{Status: StatusEncodingUnavailable, Err: fmt.Errorf("%w: no encoder", ErrEncodingUnavailable)}
	}
	vector, err := s.encoder.Encode(ctx, q)
	if err != nil {
		logger.Warn("context encoding unavailable, using fallback forecast",
			slog.String(observability.LogFieldCollaborator, CollaboratorEmbedding),
			slog.String("error", err.Error()),
		)
		s.observeDegradation(CollaboratorEmbedding)
		return RetrievalOutcome{Status: StatusEncodingUnavailable, Err: err}
	}

	if s.retriever == nil {
		return RetrievalOutcome{Status: StatusStoreUnavailable, Err: fmt.Errorf("%w: no retriever", ErrStoreUnavailable)}
	}
	matches, err := s.retriever.Retrieve(ctx, RetrieveOptions{
		RestaurantID: q.RestaurantID,
		ServiceType:  q.ServiceType,
		Vector:       vector,
		K:            s.topK(rp),
		Floor:        s.floor(rp),
	})
	if err != nil {
		logger.Warn("pattern store unavailable, using fallback forecast",
			slog.String(observability.LogFieldCollaborator, CollaboratorStore),
			slog.String("error", err.Error()),
		)
		s.observeDegradation(CollaboratorStore)
		return RetrievalOutcome{Status: StatusStoreUnavailable, Err: err}
	}
	if len(matches) == 0 {
		return RetrievalOutcome{Status: StatusNoMatches}
	}
	return RetrievalOutcome{Status: StatusOK, Matches: matches}
}

// Fallback builds a fallback prediction without calling any collaborator.
// The batch orchestrator uses it for dates whose prediction failed.
func (s *Service) Fallback(ctx context.Context, q *Query, cause error) *Prediction {
	rp, err := s.ResolveProfile(ctx, q.RestaurantID)
	if err != nil {
		rp = DefaultProfile(q.RestaurantID, DefaultOutletType)
	}
	f := s.aggregator.fallback(StatusNoMatches, s.baseline(rp, q.ServiceType))
	f.FallbackReason = ReasonPredictionFailed

	staffing, err := RecommendStaff(f.PredictedCovers, q.ServiceType, rp)
	if err != nil {
		staffing, _ = RecommendStaff(f.PredictedCovers, q.ServiceType, DefaultProfile(q.RestaurantID, DefaultOutletType))
	}

	desc, err := Describe(q)
	if err != nil {
		desc = ContextDescriptor{ServiceType: q.ServiceType, WeatherCategory: WeatherUnknown}
	}
	summary := TemplateSummary(desc, f)
	observability.Logger(ctx, s.logger).Warn("prediction failed, using fallback forecast",
		slog.String(observability.LogFieldServiceDate, q.ServiceDate),
		slog.String("error", errString(cause)),
	)
	return &Prediction{
		PredictionID:    s.newID(),
		RestaurantID:    q.RestaurantID,
		ServiceDate:     q.ServiceDate,
		ServiceType:     q.ServiceType,
		PredictedCovers: roundTo(f.PredictedCovers, 1),
		RangeLow:        f.RangeLow,
		RangeHigh:       f.RangeHigh,
		Confidence:      roundTo(f.Confidence, 3),
		Method:          f.Method,
		FallbackReason:  f.FallbackReason,
		Staffing:        staffing,
		Reasoning: Reasoning{
			Summary:           summary,
			SummaryHTML:       s.synthesizer.render(summary),
			ConfidenceFactors: ConfidenceFactors(desc, f),
			Source:            SourceTemplate,
		},
		Patterns:  []PatternSummary{},
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
}

func (s *Service) record(ctx context.Context, p *Prediction) {
	if s.recorder == nil {
		return
	}
	date, err := time.Parse(DateLayout, p.ServiceDate)
	if err != nil {
		return
	}
	patterns := make([]store.PredictionPattern, 0, len(p.Patterns))
	for _, ps := range p.Patterns {
		patterns = append(patterns, store.PredictionPattern{
			Ref:        ps.Ref,
			Date:       ps.Date,
			Covers:     ps.Covers,
			Similarity: ps.Similarity,
			DayType:    ps.DayType,
		})
	}
	_, err = s.recorder.CreatePredictionRecord(ctx, &store.PredictionRecord{
		ID:              p.PredictionID,
		RestaurantID:    p.RestaurantID,
		ServiceDate:     date,
		ServiceType:     p.ServiceType,
		PredictedCovers: p.PredictedCovers,
		RangeLow:        p.RangeLow,
		RangeHigh:       p.RangeHigh,
		Confidence:      p.Confidence,
		Method:          string(p.Method),
		Factors:         p.Reasoning.ConfidenceFactors,
		Patterns:        patterns,
		CreatedTs:       p.CreatedAt.Unix(),
	})
	if err != nil {
		observability.Logger(ctx, s.logger).Warn("failed to record prediction",
			slog.String("prediction_id", p.PredictionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) baseline(rp *store.RestaurantProfile, serviceType store.ServiceType) float64 {
	if b, ok := rp.BaselineCovers[serviceType]; ok && b > 0 {
		return b
	}
	return s.cfg.FallbackCovers
}

func (s *Service) topK(rp *store.RestaurantProfile) int {
	if rp.TopK != nil {
		return *rp.TopK
	}
	return s.cfg.TopK
}

func (s *Service) floor(rp *store.RestaurantProfile) float64 {
	if rp.SimilarityFloor != nil {
		return *rp.SimilarityFloor
	}
	return s.cfg.SimilarityFloor
}

func (s *Service) observeDegradation(collaborator string) {
	if s.observer != nil {
		s.observer.ObserveDegradation(collaborator)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
