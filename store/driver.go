package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Pattern model related methods.
	CreatePattern(ctx context.Context, create *Pattern) (*Pattern, error)
	ListPatterns(ctx context.Context, find *FindPattern) ([]*Pattern, error)
	SearchPatterns(ctx context.Context, opts *SearchPatternsOptions) ([]*PatternWithScore, error)

	// RestaurantProfile model related methods.
	UpsertRestaurantProfile(ctx context.Context, upsert *RestaurantProfile) (*RestaurantProfile, error)
	GetRestaurantProfile(ctx context.Context, find *FindRestaurantProfile) (*RestaurantProfile, error)

	// PredictionRecord model related methods.
	CreatePredictionRecord(ctx context.Context, create *PredictionRecord) (*PredictionRecord, error)
	ListPredictionRecords(ctx context.Context, find *FindPredictionRecord) ([]*PredictionRecord, error)
}
