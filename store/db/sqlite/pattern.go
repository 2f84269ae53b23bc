package sqlite

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/hrygo/covercast/store"
)

const patternColumns = `id, restaurant_id, service_date, service_type, day_type, season,
	has_nearby_event, event_type, weather_category, observed_covers, embedding, model, created_ts`

func (d *DB) CreatePattern(ctx context.Context, create *store.Pattern) (*store.Pattern, error) {
	embedding, err := json.Marshal(create.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal pattern embedding")
	}

	stmt := `INSERT INTO pattern (` + patternColumns + `) VALUES (` + placeholders(13) + `)`
	_, err = d.db.ExecContext(ctx, stmt,
		create.ID,
		create.RestaurantID,
		create.ServiceDate.Format(dateLayout),
		string(create.ServiceType),
		create.DayType,
		create.Season,
		create.HasNearbyEvent,
		create.EventType,
		create.WeatherCategory,
		create.ObservedCovers,
		string(embedding),
		create.Model,
		create.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pattern")
	}
	return create, nil
}

func (d *DB) ListPatterns(ctx context.Context, find *store.FindPattern) ([]*store.Pattern, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.RestaurantID != nil {
		where, args = append(where, "restaurant_id = "+placeholder(len(args)+1)), append(args, *find.RestaurantID)
	}
	if find.ServiceType != nil {
		where, args = append(where, "service_type = "+placeholder(len(args)+1)), append(args, string(*find.ServiceType))
	}

	query := `SELECT ` + patternColumns + ` FROM pattern WHERE ` + strings.Join(where, " AND ") + ` ORDER BY service_date DESC, id ASC`
	if find.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list patterns")
	}
	defer rows.Close()

	list := []*store.Pattern{}
	for rows.Next() {
		var pattern store.Pattern
		var serviceDate, serviceType, embedding string
		if err := rows.Scan(
			&pattern.ID,
			&pattern.RestaurantID,
			&serviceDate,
			&serviceType,
			&pattern.DayType,
			&pattern.Season,
			&pattern.HasNearbyEvent,
			&pattern.EventType,
			&pattern.WeatherCategory,
			&pattern.ObservedCovers,
			&embedding,
			&pattern.Model,
			&pattern.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan pattern")
		}
		pattern.ServiceType = store.ServiceType(serviceType)
		if pattern.ServiceDate, err = time.Parse(dateLayout, serviceDate); err != nil {
			return nil, errors.Wrapf(err, "invalid service date %q for pattern %s", serviceDate, pattern.ID)
		}
		if err := json.Unmarshal([]byte(embedding), &pattern.Embedding); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal embedding for pattern %s", pattern.ID)
		}
		list = append(list, &pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate patterns")
	}
	return list, nil
}

// SearchPatterns scores every candidate of the restaurant in process.
// Ties are broken by newer service date, then by id.
func (d *DB) SearchPatterns(ctx context.Context, opts *store.SearchPatternsOptions) ([]*store.PatternWithScore, error) {
	restaurantID := opts.RestaurantID
	candidates, err := d.ListPatterns(ctx, &store.FindPattern{
		RestaurantID: &restaurantID,
		ServiceType:  opts.ServiceType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load search candidates")
	}

	results := []*store.PatternWithScore{}
	for _, pattern := range candidates {
		score := store.CosineSimilarity(opts.Vector, pattern.Embedding)
		if score < opts.MinScore {
			continue
		}
		results = append(results, &store.PatternWithScore{Pattern: pattern, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Pattern.ServiceDate.Equal(b.Pattern.ServiceDate) {
			return a.Pattern.ServiceDate.After(b.Pattern.ServiceDate)
		}
		return a.Pattern.ID < b.Pattern.ID
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}
