package data

import (
	"context"
	"database/sql"

	"github.com/target/gatekeeper/internal/migrate"
)

// RunMigrations applies pending account schema migrations and returns the versions applied.
func RunMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Run(ctx, db)
}
