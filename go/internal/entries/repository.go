package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/mcdev12/chronicle/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// ErrActivityNotFound is returned when the activity is missing or owned by another user.
var ErrActivityNotFound = errors.New("activity not found")

const pqForeignKeyViolation = "23503"

// CreateTimeEntryRequest represents the log record written when a timer completes
type CreateTimeEntryRequest struct {
	UserID     string           `json:"userId"`
	ActivityID uuid.UUID        `json:"activityId"`
	Duration   int              `json:"duration"`
	SoundType  models.SoundType `json:"soundType"`
	Notes      *string          `json:"notes,omitempty"`
	LoggedAt   time.Time        `json:"loggedAt"`
}

// Repository implements the activity entry sink backed by Postgres
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new entries repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ActivityExists reports whether userID owns the activity
func (r *Repository) ActivityExists(ctx context.Context, userID string, activityID uuid.UUID) (bool, error) {
	exists, err := New(r.db).ActivityOwnedBy(ctx, activityID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check activity: %w", err)
	}
	return exists, nil
}

// CreateTimeEntry writes one TIME entry for the activity inside a transaction
func (r *Repository) CreateTimeEntry(ctx context.Context, req CreateTimeEntryRequest) (*models.ActivityEntry, error) {
	data, err := json.Marshal(models.TimeEntryData{
		Duration:  req.Duration,
		SoundType: req.SoundType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entry data: %w", err)
	}

	var row ActivityEntry
	err = sqlutil.Run(ctx, r.db, func(tx *sql.Tx) *Queries { return New(tx) }, func(q *Queries) error {
		if _, err := q.LockActivityForEntry(ctx, req.ActivityID, req.UserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrActivityNotFound
			}
			return fmt.Errorf("failed to lock activity: %w", err)
		}

		row, err = q.CreateActivityEntry(ctx, CreateActivityEntryParams{
			ID:           uuid.New(),
			UserID:       req.UserID,
			ActivityID:   req.ActivityID,
			ActivityType: string(models.ActivityTypeTime),
			Data:         pqtype.NullRawMessage{RawMessage: data, Valid: true},
			Notes:        sqlutil.ToSqlString(req.Notes),
			LoggedAt:     req.LoggedAt,
		})
		return err
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrActivityNotFound
		}
		if errors.Is(err, ErrActivityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create time entry: %w", err)
	}

	return r.dbEntryToModel(row), nil
}

// dbEntryToModel converts a database entry to domain model
func (r *Repository) dbEntryToModel(row ActivityEntry) *models.ActivityEntry {
	entry := &models.ActivityEntry{
		ID:           row.ID,
		UserID:       row.UserID,
		ActivityID:   row.ActivityID,
		ActivityType: models.ActivityType(row.ActivityType),
		Notes:        sqlutil.FromSqlStringPtr(row.Notes),
		LoggedAt:     row.LoggedAt,
		CreatedAt:    row.CreatedAt,
	}
	if row.Data.Valid {
		entry.Data = row.Data.RawMessage
	}
	return entry
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}
