package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/covercast/store"
)

const patternColumns = `id, restaurant_id, service_date, service_type, day_type, season,
	has_nearby_event, event_type, weather_category, observed_covers, embedding, model, created_ts`

func (d *DB) CreatePattern(ctx context.Context, create *store.Pattern) (*store.Pattern, error) {
	stmt := `INSERT INTO pattern (` + patternColumns + `) VALUES (` + placeholders(13) + `)`
	_, err := d.db.ExecContext(ctx, stmt,
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
		pgvector.NewVector(create.Embedding),
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
		pattern, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate patterns")
	}
	return list, nil
}

// SearchPatterns ranks a restaurant's patterns by cosine similarity.
// The <=> operator computes cosine distance, so similarity is 1 - distance.
func (d *DB) SearchPatterns(ctx context.Context, opts *store.SearchPatternsOptions) ([]*store.PatternWithScore, error) {
	vector := pgvector.NewVector(opts.Vector)
	where, args := []string{"restaurant_id = " + placeholder(2)}, []any{vector, opts.RestaurantID}
	if opts.ServiceType != nil {
		where, args = append(where, "service_type = "+placeholder(len(args)+1)), append(args, string(*opts.ServiceType))
	}
	where, args = append(where, "1 - (embedding <=> "+placeholder(1)+") >= "+placeholder(len(args)+1)), append(args, opts.MinScore)

	query := `
		SELECT ` + patternColumns + `, 1 - (embedding <=> ` + placeholder(1) + `) AS score
		FROM pattern
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> ` + placeholder(1) + ` ASC, service_date DESC, id ASC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, opts.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search patterns")
	}
	defer rows.Close()

	results := []*store.PatternWithScore{}
	for rows.Next() {
		var result store.PatternWithScore
		pattern, err := scanPattern(rows, &result.Score)
		if err != nil {
			return nil, err
		}
		result.Pattern = pattern
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate pattern search results")
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(row scanner, extra ...any) (*store.Pattern, error) {
	var pattern store.Pattern
	var serviceType string
	var vector pgvector.Vector
	dest := []any{
		&pattern.ID,
		&pattern.RestaurantID,
		&pattern.ServiceDate,
		&serviceType,
		&pattern.DayType,
		&pattern.Season,
		&pattern.HasNearbyEvent,
		&pattern.EventType,
		&pattern.WeatherCategory,
		&pattern.ObservedCovers,
		&vector,
		&pattern.Model,
		&pattern.CreatedTs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, errors.Wrap(err, "failed to scan pattern")
	}
	pattern.ServiceType = store.ServiceType(serviceType)
	pattern.ServiceDate = pattern.ServiceDate.UTC()
	pattern.Embedding = vector.Slice()
	return &pattern, nil
}
