package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/covercast/plugin/ai/forecast"
	"github.com/hrygo/covercast/store"
)

// patternLine is one historical service in an ingestion file (JSON lines).
type patternLine struct {
	ID              string            `json:"id"`
	RestaurantID    string            `json:"restaurant_id"`
	ServiceDate     string            `json:"service_date"`
	ServiceType     store.ServiceType `json:"service_type"`
	ObservedCovers  int               `json:"observed_covers"`
	HasNearbyEvent  bool              `json:"has_nearby_event"`
	EventType       string            `json:"event_type"`
	WeatherCategory string            `json:"weather_category"`
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Embed and store historical services read as JSON lines from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), p)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.embedder == nil {
			return errors.New("ingestion needs an embedding provider; set the COVERCAST_AI_* variables")
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		ctx := cmd.Context()
		restaurants := make(map[string]bool)
		scanner := bufio.NewScanner(in)
		count := 0
		for line := 1; scanner.Scan(); line++ {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			pattern, err := parsePatternLine(scanner.Bytes())
			if err != nil {
				return errors.Wrapf(err, "line %d", line)
			}
			vector, err := a.embedder.Embed(ctx, forecast.DescribePattern(pattern).Text())
			if err != nil {
				return errors.Wrapf(err, "failed to embed line %d", line)
			}
			pattern.Embedding = vector
			pattern.Model = a.embedder.Model()
			if _, err := a.store.CreatePattern(ctx, pattern); err != nil {
				return errors.Wrapf(err, "failed to store line %d", line)
			}
			restaurants[pattern.RestaurantID] = true
			count++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		// New history changes the neighbours of cached predictions.
		for restaurantID := range restaurants {
			if err := a.forecast.Cache().InvalidateRestaurant(ctx, restaurantID); err != nil {
				slog.Warn("failed to invalidate cached predictions",
					slog.String("restaurant_id", restaurantID),
					slog.String("error", err.Error()),
				)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d patterns for %d restaurants\n", count, len(restaurants))
		return nil
	},
}

func parsePatternLine(data []byte) (*store.Pattern, error) {
	var l patternLine
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	if l.RestaurantID == "" {
		return nil, errors.New("restaurant_id is required")
	}
	date, err := time.Parse(forecast.DateLayout, l.ServiceDate)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid service_date %q", l.ServiceDate)
	}
	serviceType, ok := store.ParseServiceType(string(l.ServiceType))
	if !ok {
		return nil, errors.Errorf("invalid service_type %q", l.ServiceType)
	}
	if l.ObservedCovers < 0 {
		return nil, errors.Errorf("observed_covers must not be negative, got %d", l.ObservedCovers)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return &store.Pattern{
		ID:              l.ID,
		RestaurantID:    l.RestaurantID,
		ServiceDate:     date,
		ServiceType:     serviceType,
		DayType:         forecast.DayType(date),
		Season:          forecast.Season(date),
		HasNearbyEvent:  l.HasNearbyEvent,
		EventType:       l.EventType,
		WeatherCategory: forecast.NormalizeWeather(l.WeatherCategory),
		ObservedCovers:  l.ObservedCovers,
	}, nil
}
