package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every embedded migration in file-name order. The scripts
// are idempotent, so running Migrate against an up-to-date schema is a no-op.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("store: list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", name, err)
		}
		s.logger.Info("applied migration", zap.String("file", name))
	}
	return nil
}
