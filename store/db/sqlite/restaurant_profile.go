package sqlite

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/hrygo/covercast/store"
)

func (d *DB) UpsertRestaurantProfile(ctx context.Context, upsert *store.RestaurantProfile) (*store.RestaurantProfile, error) {
	payload, err := json.Marshal(upsert)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal restaurant profile")
	}

	stmt := `INSERT INTO restaurant_profile (id, restaurant_id, payload, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (id) DO UPDATE SET
			restaurant_id = excluded.restaurant_id,
			payload = excluded.payload,
			updated_ts = excluded.updated_ts
		RETURNING created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.RestaurantID,
		string(payload),
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.CreatedTs, &upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert restaurant profile")
	}
	return upsert, nil
}

func (d *DB) GetRestaurantProfile(ctx context.Context, find *store.FindRestaurantProfile) (*store.RestaurantProfile, error) {
	query := `SELECT id, payload, created_ts, updated_ts FROM restaurant_profile WHERE id = ` + placeholder(1)

	var id, payload string
	var createdTs, updatedTs int64
	err := d.db.QueryRowContext(ctx, query, find.RestaurantID).Scan(&id, &payload, &createdTs, &updatedTs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get restaurant profile")
	}

	profile := &store.RestaurantProfile{}
	if err := json.Unmarshal([]byte(payload), profile); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal restaurant profile")
	}
	profile.ID = id
	profile.CreatedTs = createdTs
	profile.UpdatedTs = updatedTs
	return profile, nil
}
