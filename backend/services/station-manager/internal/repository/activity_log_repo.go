package repository

import (
	"context"
	"database/sql"

	"stationmgr/backend/services/station-manager/internal/models"
)

const activityLogSchema = `
	CREATE TABLE IF NOT EXISTS activity_log (
		id           BIGSERIAL PRIMARY KEY,
		entry_id     BIGINT NOT NULL,
		logged_at    TIMESTAMPTZ NOT NULL,
		type         TEXT NOT NULL,
		message      TEXT NOT NULL,
		station_id   TEXT,
		station_name TEXT
	)
`

// ActivityLogRepository archives activity log entries. Entries are never read back by the
// service.
type ActivityLogRepository struct {
	db *sql.DB
}

// NewActivityLogRepository ctor.
func NewActivityLogRepository(db *sql.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// EnsureSchema creates the archive table when missing.
func (r *ActivityLogRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, activityLogSchema)
	return err
}

// Save stores log entry.
func (r *ActivityLogRepository) Save(ctx context.Context, entry models.LogEntry) error {
	const query = `
		INSERT INTO activity_log (entry_id, logged_at, type, message, station_id, station_name)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
	`
	_, err := r.db.ExecContext(ctx, query,
		int64(entry.ID), entry.Time, string(entry.Type), entry.Message, entry.StationID, entry.StationName)
	return err
}
