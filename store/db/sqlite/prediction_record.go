package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/hrygo/covercast/store"
)

type recordPayload struct {
	Factors  []string                  `json:"factors,omitempty"`
	Patterns []store.PredictionPattern `json:"similar_patterns,omitempty"`
}

func (d *DB) CreatePredictionRecord(ctx context.Context, create *store.PredictionRecord) (*store.PredictionRecord, error) {
	payload, err := json.Marshal(recordPayload{Factors: create.Factors, Patterns: create.Patterns})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal prediction record payload")
	}

	stmt := `INSERT INTO prediction_record (id, restaurant_id, service_date, service_type, predicted_covers,
			range_low, range_high, confidence, method, payload, created_ts)
		VALUES (` + placeholders(11) + `)`
	_, err = d.db.ExecContext(ctx, stmt,
		create.ID,
		create.RestaurantID,
		create.ServiceDate.Format(dateLayout),
		string(create.ServiceType),
		create.PredictedCovers,
		create.RangeLow,
		create.RangeHigh,
		create.Confidence,
		create.Method,
		string(payload),
		create.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create prediction record")
	}
	return create, nil
}

func (d *DB) ListPredictionRecords(ctx context.Context, find *store.FindPredictionRecord) ([]*store.PredictionRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.RestaurantID != nil {
		where, args = append(where, "restaurant_id = "+placeholder(len(args)+1)), append(args, *find.RestaurantID)
	}
	if find.ServiceDate != nil {
		where, args = append(where, "service_date = "+placeholder(len(args)+1)), append(args, find.ServiceDate.Format(dateLayout))
	}

	query := `SELECT id, restaurant_id, service_date, service_type, predicted_covers, range_low, range_high,
			confidence, method, payload, created_ts
		FROM prediction_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list prediction records")
	}
	defer rows.Close()

	list := []*store.PredictionRecord{}
	for rows.Next() {
		var record store.PredictionRecord
		var serviceDate, serviceType, payloadText string
		if err := rows.Scan(
			&record.ID,
			&record.RestaurantID,
			&serviceDate,
			&serviceType,
			&record.PredictedCovers,
			&record.RangeLow,
			&record.RangeHigh,
			&record.Confidence,
			&record.Method,
			&payloadText,
			&record.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan prediction record")
		}
		record.ServiceType = store.ServiceType(serviceType)
		if record.ServiceDate, err = time.Parse(dateLayout, serviceDate); err != nil {
			return nil, errors.Wrapf(err, "invalid service date %q for prediction record %s", serviceDate, record.ID)
		}

		var payload recordPayload
		if payloadText != "" {
			if err := json.Unmarshal([]byte(payloadText), &payload); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal prediction record payload")
			}
		}
		record.Factors = payload.Factors
		record.Patterns = payload.Patterns
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate prediction records")
	}
	return list, nil
}
