package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/covercast/internal/profile"
	"github.com/hrygo/covercast/store"
	"github.com/hrygo/covercast/store/db/postgres"
	"github.com/hrygo/covercast/store/db/sqlite"
)

// PostgreSQL with pgvector is the production driver.
// SQLite keeps embeddings as JSON text and searches them in process; it serves
// local development, demos and tests.

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
