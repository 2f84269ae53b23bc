package forecast

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lithammer/shortuuid/v4"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/plugin/ai"
)

// Reasoning sources.
const (
	SourceLLM      = "llm"
	SourceTemplate = "template"
)

// Reasoning explains a forecast. Summary is never empty.
type Reasoning struct {
	Summary           string   `json:"summary"`
	SummaryHTML       string   `json:"summary_html,omitempty"`
	ConfidenceFactors []string `json:"confidence_factors"`
	Source            string   `json:"source"`
}

const reasoningSystemPrompt = `You explain restaurant demand forecasts to a restaurant manager.
You receive a JSON document with the service being forecast, the forecast and the similar historical services it was built from.
Write two or three plain sentences that:
- name how many similar historical services were used,
- point out what they share (day type, nearby events, weather),
- state the confidence as high, moderate or low.
Use only the numbers in the document. Markdown bold is allowed.
Reply with a JSON object only: {"summary": "...", "confidence_factors": ["...", "..."]}`

// Synthesizer writes the explanation of a forecast, through the language model when
// one is configured and from a template otherwise.
type Synthesizer struct {
	llm     ai.LLMService
	timeout time.Duration
	md      goldmark.Markdown
	logger  *slog.Logger
}

// NewSynthesizer creates a Synthesizer. llm may be nil.
func NewSynthesizer(llm ai.LLMService, timeout time.Duration, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		llm:     llm,
		timeout: timeout,
		md:      goldmark.New(goldmark.WithExtensions(extension.Strikethrough)),
		logger:  logger,
	}
}

// Synthesize always returns a usable Reasoning. The error is ErrGenerationUnavailable
// when the language model failed and the template was used instead.
func (s *Synthesizer) Synthesize(ctx context.Context, desc ContextDescriptor, f Forecast) (Reasoning, error) {
	factors := ConfidenceFactors(desc, f)

	var genErr error
	if s.llm != nil {
		r, err := s.generate(ctx, desc, f)
		if err == nil {
			if len(r.ConfidenceFactors) == 0 {
				r.ConfidenceFactors = factors
			}
			r.SummaryHTML = s.render(r.Summary)
			return r, nil
		}
		genErr = fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
		observability.Logger(ctx, s.logger).Warn("reasoning generation failed, using template",
			slog.String(observability.LogFieldCollaborator, CollaboratorGeneration),
			slog.String("error", err.Error()),
		)
	}

	r := Reasoning{
		Summary:           TemplateSummary(desc, f),
		ConfidenceFactors: factors,
		Source:            SourceTemplate,
	}
	r.SummaryHTML = s.render(r.Summary)
	return r, genErr
}

func (s *Synthesizer) generate(ctx context.Context, desc ContextDescriptor, f Forecast) (Reasoning, error) {
	payload, err := json.Marshal(buildPromptPayload(desc, f))
	if err != nil {
		return Reasoning{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	response, err := s.llm.Chat(ctx, []ai.Message{
		ai.SystemPrompt(reasoningSystemPrompt),
		ai.UserMessage(string(payload)),
	})
	if err != nil {
		return Reasoning{}, err
	}
	return parseReasoning(response)
}

func (s *Synthesizer) render(summary string) string {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(summary), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

// parseReasoning reads the model reply. Code fences and text around the object are tolerated.
func parseReasoning(response string) (Reasoning, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Reasoning{}, fmt.Errorf("no JSON object in reply %q", truncate(response, 80))
	}

	var reply struct {
		Summary           string   `json:"summary"`
		ConfidenceFactors []string `json:"confidence_factors"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &reply); err != nil {
		return Reasoning{}, fmt.Errorf("malformed reply: %w", err)
	}
	summary := strings.TrimSpace(reply.Summary)
	if summary == "" {
		return Reasoning{}, fmt.Errorf("reply has an empty summary")
	}

	factors := make([]string, 0, len(reply.ConfidenceFactors))
	for _, factor := range reply.ConfidenceFactors {
		if factor = strings.TrimSpace(factor); factor != "" {
			factors = append(factors, factor)
		}
	}
	return Reasoning{Summary: summary, ConfidenceFactors: factors, Source: SourceLLM}, nil
}

type promptService struct {
	ServiceType     string `json:"service_type"`
	DayOfWeek       string `json:"day_of_week"`
	DayType         string `json:"day_type"`
	Season          string `json:"season"`
	HasNearbyEvent  bool   `json:"has_nearby_event"`
	EventType       string `json:"event_type,omitempty"`
	WeatherCategory string `json:"weather_category"`
}

type promptForecast struct {
	PredictedCovers float64 `json:"predicted_covers"`
	RangeLow        int     `json:"range_low"`
	RangeHigh       int     `json:"range_high"`
	Confidence      float64 `json:"confidence"`
	ConfidenceLevel string  `json:"confidence_level"`
	Method          Method  `json:"method"`
	FallbackReason  string  `json:"fallback_reason,omitempty"`
}

type promptPayload struct {
	Service  promptService    `json:"service"`
	Forecast promptForecast   `json:"forecast"`
	Patterns []PatternSummary `json:"similar_services"`
}

// buildPromptPayload holds categorical context and numbers only, no restaurant identity.
func buildPromptPayload(desc ContextDescriptor, f Forecast) promptPayload {
	return promptPayload{
		Service: promptService{
			ServiceType:     string(desc.ServiceType),
			DayOfWeek:       desc.Date.Weekday().String(),
			DayType:         desc.DayType,
			Season:          desc.Season,
			HasNearbyEvent:  desc.HasNearbyEvent,
			EventType:       desc.EventType,
			WeatherCategory: desc.WeatherCategory,
		},
		Forecast: promptForecast{
			PredictedCovers: roundTo(f.PredictedCovers, 1),
			RangeLow:        f.RangeLow,
			RangeHigh:       f.RangeHigh,
			Confidence:      roundTo(f.Confidence, 2),
			ConfidenceLevel: ConfidenceLevel(f.Confidence),
			Method:          f.Method,
			FallbackReason:  f.FallbackReason,
		},
		Patterns: Summarize(f.Matches),
	}
}

// Summarize describes matches for callers, replacing stored ids with opaque references.
func Summarize(matches []MatchedPattern) []PatternSummary {
	summaries := make([]PatternSummary, 0, len(matches))
	for _, m := range matches {
		d := DescribePattern(m.Pattern)
		summaries = append(summaries, PatternSummary{
			Ref:             PatternRef(m.Pattern.ID),
			Date:            m.Pattern.ServiceDate.Format(DateLayout),
			DayType:         d.DayType,
			Season:          d.Season,
			HasNearbyEvent:  d.HasNearbyEvent,
			WeatherCategory: d.WeatherCategory,
			Covers:          m.Pattern.ObservedCovers,
			Similarity:      roundTo(m.Similarity, 3),
		})
	}
	return summaries
}

// PatternRef is a stable opaque reference for a stored pattern id.
func PatternRef(id string) string {
	return "pat_" + shortuuid.NewWithNamespace("pattern:" + id)[:10]
}

// ConfidenceLevel names a confidence score: high from 0.8, moderate from 0.6, low below.
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "high"
	case confidence >= 0.6:
		return "moderate"
	default:
		return "low"
	}
}

// TemplateSummary explains a forecast without the language model.
func TemplateSummary(desc ContextDescriptor, f Forecast) string {
	confidence := fmt.Sprintf("Confidence is %s (%d%%).", ConfidenceLevel(f.Confidence), int(math.Round(f.Confidence*100)))

	if f.Method == MethodFallback || len(f.Matches) == 0 {
		var lead string
		switch f.FallbackReason {
		case ReasonEncodingUnavailable, ReasonStoreUnavailable:
			lead = "Historical matching was unavailable for this request"
		default:
			lead = fmt.Sprintf("No similar historical %s services were close enough to this one", desc.ServiceType)
		}
		return fmt.Sprintf("%s, so the forecast falls back to the baseline of **%.0f covers** (range %d to %d). %s",
			lead, f.PredictedCovers, f.RangeLow, f.RangeHigh, confidence)
	}

	n := len(f.Matches)
	noun := "service"
	if n > 1 {
		noun = "services"
	}
	return fmt.Sprintf("Based on **%d similar historical %s %s** (%s), expected demand is **%.0f covers** (range %d to %d). %s",
		n, desc.ServiceType, noun, sharedCharacteristics(f.Matches), f.PredictedCovers, f.RangeLow, f.RangeHigh, confidence)
}

func sharedCharacteristics(matches []MatchedPattern) string {
	dayTypes := make(map[string]int)
	weather := make(map[string]int)
	events := 0
	for _, m := range matches {
		d := DescribePattern(m.Pattern)
		dayTypes[d.DayType]++
		weather[d.WeatherCategory]++
		if d.HasNearbyEvent {
			events++
		}
	}

	n := len(matches)
	parts := make([]string, 0, 3)
	if day, count := dominant(dayTypes); count == n {
		parts = append(parts, "all on a "+day)
	} else {
		parts = append(parts, fmt.Sprintf("%d of %d on a %s", count, n, day))
	}
	switch events {
	case 0:
		parts = append(parts, "none with a nearby event")
	case n:
		parts = append(parts, "all with a nearby event")
	default:
		parts = append(parts, fmt.Sprintf("%d with a nearby event", events))
	}
	if w, count := dominant(weather); w != WeatherUnknown {
		if count == n {
			parts = append(parts, w+" weather throughout")
		} else {
			parts = append(parts, "mostly "+w+" weather")
		}
	}
	return strings.Join(parts, ", ")
}

// dominant returns the most frequent key, ties broken alphabetically.
func dominant(counts map[string]int) (string, int) {
	best, bestCount := "", -1
	for k, c := range counts {
		if c > bestCount || (c == bestCount && k < best) {
			best, bestCount = k, c
		}
	}
	return best, bestCount
}

// ConfidenceFactors lists short reasons behind the confidence of f.
func ConfidenceFactors(desc ContextDescriptor, f Forecast) []string {
	if f.Method == MethodFallback || len(f.Matches) == 0 {
		if f.FallbackReason == ReasonEncodingUnavailable || f.FallbackReason == ReasonStoreUnavailable {
			return []string{"Historical matching unavailable", "Baseline estimate"}
		}
		return []string{"No similar history", "Baseline estimate"}
	}

	var sameDay, sameWeather, withEvent int
	var sum float64
	for _, m := range f.Matches {
		d := DescribePattern(m.Pattern)
		if d.DayType == desc.DayType {
			sameDay++
		}
		if desc.WeatherCategory != WeatherUnknown && d.WeatherCategory == desc.WeatherCategory {
			sameWeather++
		}
		if d.HasNearbyEvent {
			withEvent++
		}
		sum += float64(m.Pattern.ObservedCovers)
	}

	n := len(f.Matches)
	factors := make([]string, 0, 5)
	if sameDay*2 > n {
		factors = append(factors, "Similar day of week")
	}
	if desc.HasNearbyEvent && withEvent > 0 {
		factors = append(factors, "Nearby event")
	}
	if sameWeather*2 > n {
		factors = append(factors, "Same weather")
	}

	mean := sum / float64(n)
	var variance float64
	for _, m := range f.Matches {
		c := float64(m.Pattern.ObservedCovers)
		variance += (c - mean) * (c - mean)
	}
	if mean > 0 {
		switch cv := math.Sqrt(variance/float64(n)) / mean; {
		case cv < 0.15:
			factors = append(factors, "Consistent history")
		case cv > 0.3:
			factors = append(factors, "Variable history")
		}
	}
	if n < 3 {
		factors = append(factors, "Limited history")
	}
	return factors
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
