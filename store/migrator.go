package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Migration layout:
//   - store/migration/{driver}/LATEST.sql holds the full schema for new installations.
//   - store/seed/{driver}/NN__description.sql holds demo data, applied in demo mode only.

//go:embed migration
var migrationFS embed.FS

//go:embed seed
var seedFS embed.FS

const (
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	modeDemo = "demo"
)

// Migrate creates the schema on a fresh database and seeds it in demo mode.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := fmt.Sprintf("migration/%s/%s", s.profile.Driver, LatestSchemaFileName)
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read latest schema %s", filePath)
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("applying latest schema", slog.String("driver", s.profile.Driver))
	if err := execute(ctx, tx, string(bytes)); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}

	if s.profile.Mode == modeDemo {
		if err := s.seed(ctx, tx); err != nil {
			return errors.Wrap(err, "failed to seed")
		}
	}

	return tx.Commit()
}

func (s *Store) seed(ctx context.Context, tx *sql.Tx) error {
	filePaths, err := fs.Glob(seedFS, fmt.Sprintf("seed/%s/*.sql", s.profile.Driver))
	if err != nil {
		return errors.Wrap(err, "failed to read seed files")
	}
	sort.Strings(filePaths)

	for _, filePath := range filePaths {
		bytes, err := seedFS.ReadFile(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to read seed file %s", filePath)
		}
		if err := execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute seed file %s", filePath)
		}
		slog.Info("applied seed file", slog.String("file", filePath))
	}
	return nil
}

// execute runs each ';'-terminated statement of the script.
func execute(ctx context.Context, tx *sql.Tx, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement: %s", strings.TrimSpace(stmt))
		}
	}
	return nil
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
