package db

import (
	"context"
	"database/sql"

	libdb "stationmgr/backend/libs/db"
)

// NewPostgres reuses shared DB initializer.
func NewPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, dsn)
}
