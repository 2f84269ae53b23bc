package forecast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hrygo/covercast/plugin/ai"
	"github.com/hrygo/covercast/store"
)

// Day types.
const (
	DayTypeWeekday = "weekday"
	DayTypeWeekend = "weekend"
)

// Weather categories.
const (
	WeatherClear   = "clear"
	WeatherCloudy  = "cloudy"
	WeatherRain    = "rain"
	WeatherSnow    = "snow"
	WeatherStorm   = "storm"
	WeatherUnknown = "unknown"
)

// ContextDescriptor is the categorical context of one service, shared by queries and patterns.
type ContextDescriptor struct {
	Date            time.Time
	ServiceType     store.ServiceType
	DayType         string
	Season          string
	HasNearbyEvent  bool
	EventType       string
	NearestEvent    *Event
	EventCount      int
	WeatherCategory string
	TemperatureC    *float64
	OccupancyHint   *float64
}

// Describe derives the context descriptor of a query.
func Describe(q *Query) (ContextDescriptor, error) {
	date, err := q.Date()
	if err != nil {
		return ContextDescriptor{}, fmt.Errorf("%w: service_date %q", ErrInvalidQuery, q.ServiceDate)
	}
	if !q.ServiceType.IsValid() {
		return ContextDescriptor{}, fmt.Errorf("%w: service_type %q", ErrInvalidQuery, q.ServiceType)
	}

	d := ContextDescriptor{
		Date:            date,
		ServiceType:     q.ServiceType,
		DayType:         DayType(date),
		Season:          Season(date),
		WeatherCategory: WeatherUnknown,
		OccupancyHint:   q.OccupancyHint,
	}

	if len(q.NearbyEvents) > 0 {
		events := sortedEvents(q.NearbyEvents)
		nearest := events[0]
		d.HasNearbyEvent = true
		d.EventCount = len(events)
		d.NearestEvent = &nearest
		d.EventType = strings.ToLower(strings.TrimSpace(nearest.Type))
	}
	if q.Weather != nil {
		d.WeatherCategory = NormalizeWeather(q.Weather.Condition)
		d.TemperatureC = q.Weather.TemperatureC
	}
	return d, nil
}

// DescribePattern derives the context descriptor of a stored pattern.
func DescribePattern(p *store.Pattern) ContextDescriptor {
	d := ContextDescriptor{
		Date:            p.ServiceDate,
		ServiceType:     p.ServiceType,
		DayType:         p.DayType,
		Season:          p.Season,
		HasNearbyEvent:  p.HasNearbyEvent,
		EventType:       strings.ToLower(strings.TrimSpace(p.EventType)),
		WeatherCategory: NormalizeWeather(p.WeatherCategory),
	}
	if d.DayType == "" {
		d.DayType = DayType(p.ServiceDate)
	}
	if d.Season == "" {
		d.Season = Season(p.ServiceDate)
	}
	if d.HasNearbyEvent {
		d.EventCount = 1
	}
	return d
}

// Text renders the descriptor as canonical text: one attribute per line, fixed order.
// Equal descriptors always render to identical bytes.
func (d ContextDescriptor) Text() string {
	var b strings.Builder
	b.WriteString("service: ")
	b.WriteString(string(d.ServiceType))
	b.WriteString("\nday: ")
	b.WriteString(strings.ToLower(d.Date.Weekday().String()))
	b.WriteString(" (")
	b.WriteString(d.DayType)
	b.WriteString(")\nseason: ")
	b.WriteString(d.Season)
	b.WriteString("\nnearby event: ")
	if d.HasNearbyEvent {
		b.WriteString("yes")
		if d.EventType != "" {
			b.WriteString(", ")
			b.WriteString(d.EventType)
		}
		if d.NearestEvent != nil {
			b.WriteString(", ")
			b.WriteString(strconv.FormatFloat(d.NearestEvent.DistanceKM, 'f', 1, 64))
			b.WriteString(" km")
			if d.NearestEvent.ExpectedAttendance > 0 {
				b.WriteString(", ")
				b.WriteString(strconv.Itoa(d.NearestEvent.ExpectedAttendance))
				b.WriteString(" expected")
			}
		}
		if d.EventCount > 1 {
			fmt.Fprintf(&b, ", %d events", d.EventCount)
		}
	} else {
		b.WriteString("no")
	}
	b.WriteString("\nweather: ")
	b.WriteString(d.WeatherCategory)
	if d.TemperatureC != nil {
		b.WriteString(", ")
		b.WriteString(strconv.FormatFloat(*d.TemperatureC, 'f', 1, 64))
		b.WriteString(" C")
	}
	if d.OccupancyHint != nil {
		b.WriteString("\noccupancy: ")
		b.WriteString(strconv.FormatFloat(*d.OccupancyHint*100, 'f', 0, 64))
		b.WriteString("%")
	}
	return b.String()
}

// DayType returns weekend for Saturday and Sunday, weekday otherwise.
func DayType(date time.Time) string {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return DayTypeWeekend
	default:
		return DayTypeWeekday
	}
}

// Season returns the meteorological season of the northern hemisphere.
func Season(date time.Time) string {
	switch date.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// weatherKeywords are checked in order; the first match wins.
var weatherKeywords = []struct {
	category string
	words    []string
}{
	{WeatherStorm, []string{"storm", "thunder", "hurricane", "typhoon", "gale"}},
	{WeatherSnow, []string{"snow", "sleet", "blizzard", "hail", "icy", "freezing"}},
	{WeatherRain, []string{"rain", "shower", "drizzle", "wet"}},
	{WeatherCloudy, []string{"cloud", "overcast", "fog", "mist", "haze", "grey", "gray"}},
	{WeatherClear, []string{"clear", "sun", "fair", "dry"}},
}

// NormalizeWeather maps a free-text weather condition to one of the weather categories.
func NormalizeWeather(condition string) string {
	c := strings.ToLower(strings.TrimSpace(condition))
	if c == "" {
		return WeatherUnknown
	}
	for _, kw := range weatherKeywords {
		if kw.category == c {
			return c
		}
		for _, w := range kw.words {
			if strings.Contains(c, w) {
				return kw.category
			}
		}
	}
	return WeatherUnknown
}

func sortedEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKM != out[j].DistanceKM {
			return out[i].DistanceKM < out[j].DistanceKM
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Encoder turns a query into an embedding vector.
type Encoder interface {
	Encode(ctx context.Context, q *Query) ([]float32, error)
}

// ContextEncoder encodes queries through the embedding collaborator.
type ContextEncoder struct {
	embedder ai.EmbeddingService
	timeout  time.Duration
}

// NewContextEncoder creates a ContextEncoder. A zero timeout leaves the caller's deadline in charge.
func NewContextEncoder(embedder ai.EmbeddingService, timeout time.Duration) *ContextEncoder {
	return &ContextEncoder{embedder: embedder, timeout: timeout}
}

// Encode embeds the canonical context text of q.
// Every collaborator failure, deadline included, is reported as ErrEncodingUnavailable.
func (e *ContextEncoder) Encode(ctx context.Context, q *Query) ([]float32, error) {
	d, err := Describe(q)
	if err != nil {
		return nil, err
	}
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", ErrEncodingUnavailable)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vector, err := e.embedder.Embed(ctx, d.Text())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingUnavailable, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrEncodingUnavailable)
	}
	return vector, nil
}
