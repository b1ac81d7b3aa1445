package entries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func timeEntryRequest() CreateTimeEntryRequest {
	return CreateTimeEntryRequest{
		UserID:     "user-1",
		ActivityID: uuid.New(),
		Duration:   90,
		SoundType:  models.SoundTypeGong,
		LoggedAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestRepository_ActivityExists(t *testing.T) {
	repo, mock := newMockRepository(t)
	activityID := uuid.New()

	mock.ExpectQuery(activityOwnedBy).
		WithArgs(activityID, "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(activityOwnedBy).
		WithArgs(activityID, "user-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(activityOwnedBy).
		WithArgs(activityID, "user-3").
		WillReturnError(errors.New("connection reset"))

	ok, err := repo.ActivityExists(context.Background(), "user-1", activityID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ActivityExists(context.Background(), "user-2", activityID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.ActivityExists(context.Background(), "user-3", activityID)
	assert.ErrorContains(t, err, "failed to check activity")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateTimeEntry(t *testing.T) {
	repo, mock := newMockRepository(t)
	req := timeEntryRequest()
	entryID := uuid.New()
	createdAt := req.LoggedAt.Add(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(lockActivityForEntry).
		WithArgs(req.ActivityID, req.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(req.ActivityID.String()))
	mock.ExpectQuery(createActivityEntry).
		WithArgs(sqlmock.AnyArg(), req.UserID, req.ActivityID, string(models.ActivityTypeTime),
			sqlmock.AnyArg(), sqlmock.AnyArg(), req.LoggedAt).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "activity_id", "activity_type", "data", "notes", "logged_at", "created_at",
		}).AddRow(
			entryID.String(), req.UserID, req.ActivityID.String(), "TIME",
			[]byte(`{"duration":90,"soundType":"GONG"}`), nil, req.LoggedAt, createdAt,
		))
	mock.ExpectCommit()

	entry, err := repo.CreateTimeEntry(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entryID, entry.ID)
	assert.Equal(t, req.ActivityID, entry.ActivityID)
	assert.Equal(t, models.ActivityTypeTime, entry.ActivityType)
	assert.JSONEq(t, `{"duration":90,"soundType":"GONG"}`, string(entry.Data))
	assert.Nil(t, entry.Notes)
	assert.Equal(t, createdAt, entry.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateTimeEntryActivityMissing(t *testing.T) {
	repo, mock := newMockRepository(t)
	req := timeEntryRequest()

	mock.ExpectBegin()
	mock.ExpectQuery(lockActivityForEntry).
		WithArgs(req.ActivityID, req.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.CreateTimeEntry(context.Background(), req)
	assert.ErrorIs(t, err, ErrActivityNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateTimeEntryInsertFailureRollsBack(t *testing.T) {
	tests := []struct {
		name        string
		insertErr   error
		notFound    bool
		errContains string
	}{
		{
			name:        "driver error",
			insertErr:   errors.New("connection reset"),
			errContains: "failed to create time entry",
		},
		{
			name:      "activity deleted concurrently",
			insertErr: &pq.Error{Code: pqForeignKeyViolation},
			notFound:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			req := timeEntryRequest()

			mock.ExpectBegin()
			mock.ExpectQuery(lockActivityForEntry).
				WithArgs(req.ActivityID, req.UserID).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(req.ActivityID.String()))
			mock.ExpectQuery(createActivityEntry).WillReturnError(tt.insertErr)
			mock.ExpectRollback()

			_, err := repo.CreateTimeEntry(context.Background(), req)
			require.Error(t, err)
			if tt.notFound {
				assert.ErrorIs(t, err, ErrActivityNotFound)
			} else {
				assert.NotErrorIs(t, err, ErrActivityNotFound)
				assert.ErrorContains(t, err, tt.errContains)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_CreateTimeEntryBeginFailure(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := repo.CreateTimeEntry(context.Background(), timeEntryRequest())
	assert.ErrorContains(t, err, "failed to begin transaction")

	assert.NoError(t, mock.ExpectationsWereMet())
}
