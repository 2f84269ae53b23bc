package test

import (
	"context"
	"os"
	"testing"

	"github.com/hrygo/covercast/internal/profile"
	"github.com/hrygo/covercast/store"
	"github.com/hrygo/covercast/store/db"
)

// NewTestingStore opens a migrated store on the driver named by DRIVER (sqlite by default).
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := getTestingProfile(t)
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(dbDriver, p)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	p := profile.Default()
	p.Mode = "demo"
	p.Driver = getDriverFromEnv()
	switch p.Driver {
	case "postgres":
		p.DSN = GetPostgresDSN(t)
	default:
		p.Driver = "sqlite"
		p.DSN = ":memory:"
	}
	return p
}

func getDriverFromEnv() string {
	return os.Getenv("DRIVER")
}
