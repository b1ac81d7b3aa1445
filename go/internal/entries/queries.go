package entries

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries binds the entry statements to a connection or transaction.
type Queries struct {
	db DBTX
}

// New creates Queries on top of db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// ActivityEntry is the activity_entries row.
type ActivityEntry struct {
	ID           uuid.UUID
	UserID       string
	ActivityID   uuid.UUID
	ActivityType string
	Data         pqtype.NullRawMessage
	Notes        sql.NullString
	LoggedAt     time.Time
	CreatedAt    time.Time
}

const activityOwnedBy = `
SELECT EXISTS (
    SELECT 1 FROM activities WHERE id = $1 AND user_id = $2
)`

// ActivityOwnedBy reports whether the activity exists and belongs to userID.
func (q *Queries) ActivityOwnedBy(ctx context.Context, activityID uuid.UUID, userID string) (bool, error) {
	row := q.db.QueryRowContext(ctx, activityOwnedBy, activityID, userID)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const lockActivityForEntry = `
SELECT id FROM activities WHERE id = $1 AND user_id = $2 FOR SHARE`

// LockActivityForEntry holds a share lock on the activity row for the rest of the
// transaction so it cannot be deleted while an entry is written against it.
func (q *Queries) LockActivityForEntry(ctx context.Context, activityID uuid.UUID, userID string) (uuid.UUID, error) {
	row := q.db.QueryRowContext(ctx, lockActivityForEntry, activityID, userID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}

// CreateActivityEntryParams holds the insert arguments.
type CreateActivityEntryParams struct {
	ID           uuid.UUID
	UserID       string
	ActivityID   uuid.UUID
	ActivityType string
	Data         pqtype.NullRawMessage
	Notes        sql.NullString
	LoggedAt     time.Time
}

const createActivityEntry = `
INSERT INTO activity_entries (id, user_id, activity_id, activity_type, data, notes, logged_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, activity_id, activity_type, data, notes, logged_at, created_at`

// CreateActivityEntry inserts one entry and returns the stored row.
func (q *Queries) CreateActivityEntry(ctx context.Context, arg CreateActivityEntryParams) (ActivityEntry, error) {
	row := q.db.QueryRowContext(ctx, createActivityEntry,
		arg.ID,
		arg.UserID,
		arg.ActivityID,
		arg.ActivityType,
		arg.Data,
		arg.Notes,
		arg.LoggedAt,
	)
	var i ActivityEntry
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ActivityID,
		&i.ActivityType,
		&i.Data,
		&i.Notes,
		&i.LoggedAt,
		&i.CreatedAt,
	)
	return i, err
}
