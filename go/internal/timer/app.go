package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/chronicle/go/internal/entries"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/mcdev12/chronicle/go/internal/timer/store"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
}

// TimerStore defines what the app layer needs from the live timer store
type TimerStore interface {
	Put(ctx context.Context, timer *models.TimerSession) error
	Get(ctx context.Context, id uuid.UUID) (*models.TimerSession, error)
	ListActive(ctx context.Context, userID string) ([]*models.TimerSession, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// EntriesRepository defines what the app layer needs from the system of record
type EntriesRepository interface {
	ActivityExists(ctx context.Context, userID string, activityID uuid.UUID) (bool, error)
	CreateTimeEntry(ctx context.Context, req entries.CreateTimeEntryRequest) (*models.ActivityEntry, error)
}

// Broadcaster relays timer changes to subscribers. Delivery is best effort and
// implementations must not block the caller.
type Broadcaster interface {
	BroadcastUpdate(timer *models.TimerSession)
	BroadcastComplete(timer *models.TimerSession)
}

// App handles timer session business logic
type App struct {
	store       TimerStore
	entries     EntriesRepository
	broadcaster Broadcaster
	clock       Clock
	locks       *keyedMutex
}

// NewApp creates a new timer App using the real clock
func NewApp(timerStore TimerStore, entryRepo EntriesRepository, broadcaster Broadcaster) *App {
	return NewAppWithClock(timerStore, entryRepo, broadcaster, clockwork.NewRealClock())
}

// NewAppWithClock creates a new timer App with an explicit time source
func NewAppWithClock(timerStore TimerStore, entryRepo EntriesRepository, broadcaster Broadcaster, clock Clock) *App {
	return &App{
		store:       timerStore,
		entries:     entryRepo,
		broadcaster: broadcaster,
		clock:       clock,
		locks:       newKeyedMutex(),
	}
}

// StartTimer creates a running timer for an activity the user owns
func (a *App) StartTimer(ctx context.Context, userID string, req StartTimerRequest) (*models.TimerSession, error) {
	if err := a.validateStartTimerRequest(&req); err != nil {
		return nil, err
	}

	exists, err := a.entries.ActivityExists(ctx, userID, req.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify activity: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("activity %s: %w", req.ActivityID, ErrNotFound)
	}

	timer := &models.TimerSession{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: req.ActivityID,
		Duration:   req.Duration,
		Remaining:  req.Duration,
		Status:     models.TimerStatusRunning,
		SoundType:  req.SoundType,
		StartedAt:  a.clock.Now().UnixMilli(),
	}

	if err := a.store.Put(ctx, timer); err != nil {
		return nil, fmt.Errorf("failed to save timer: %w", err)
	}
	a.broadcaster.BroadcastUpdate(timer)

	log.Info().
		Str("timer_id", timer.ID.String()).
		Str("user_id", userID).
		Str("activity_id", req.ActivityID.String()).
		Int("duration", timer.Duration).
		Msg("timer started")

	return timer, nil
}

// PauseTimer freezes the remaining time of a running timer
func (a *App) PauseTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error) {
	unlock := a.locks.Lock(id)
	defer unlock()

	timer, err := a.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if timer.Status != models.TimerStatusRunning {
		return nil, fmt.Errorf("cannot pause timer in status %s: %w", timer.Status, ErrInvalidTransition)
	}

	now := a.clock.Now()
	pausedAt := now.UnixMilli()
	timer.Remaining = timer.RemainingAt(now)
	timer.Status = models.TimerStatusPaused
	timer.PausedAt = &pausedAt

	if err := a.store.Put(ctx, timer); err != nil {
		return nil, fmt.Errorf("failed to save timer: %w", err)
	}
	a.broadcaster.BroadcastUpdate(timer)

	log.Info().
		Str("timer_id", id.String()).
		Int("remaining", timer.Remaining).
		Msg("timer paused")

	return timer, nil
}

// ResumeTimer restarts a paused timer from its frozen remaining time
func (a *App) ResumeTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error) {
	unlock := a.locks.Lock(id)
	defer unlock()

	timer, err := a.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if timer.Status != models.TimerStatusPaused {
		return nil, fmt.Errorf("cannot resume timer in status %s: %w", timer.Status, ErrInvalidTransition)
	}

	timer.StartedAt = timer.ResumeAnchor(a.clock.Now())
	timer.Status = models.TimerStatusRunning
	timer.PausedAt = nil

	if err := a.store.Put(ctx, timer); err != nil {
		return nil, fmt.Errorf("failed to save timer: %w", err)
	}
	a.broadcaster.BroadcastUpdate(timer)

	log.Info().
		Str("timer_id", id.String()).
		Int("remaining", timer.Remaining).
		Msg("timer resumed")

	return timer, nil
}

// CompleteTimer records the time actually run as a permanent entry and retires the timer
func (a *App) CompleteTimer(ctx context.Context, userID string, id uuid.UUID) (*CompleteResult, error) {
	unlock := a.locks.Lock(id)
	defer unlock()

	timer, err := a.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	elapsed := timer.RunningSeconds(now)

	entry, err := a.entries.CreateTimeEntry(ctx, entries.CreateTimeEntryRequest{
		UserID:     userID,
		ActivityID: timer.ActivityID,
		Duration:   elapsed,
		SoundType:  timer.SoundType,
		LoggedAt:   now,
	})
	if err != nil {
		if errors.Is(err, entries.ErrActivityNotFound) {
			return nil, fmt.Errorf("activity %s: %w", timer.ActivityID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to create time entry: %w", err)
	}

	if err := a.store.Delete(ctx, id, userID); err != nil {
		log.Error().
			Err(err).
			Str("timer_id", id.String()).
			Str("entry_id", entry.ID.String()).
			Msg("entry written but timer could not be removed from store")
	}

	timer.Status = models.TimerStatusCompleted
	timer.Remaining = 0
	a.broadcaster.BroadcastComplete(timer)

	log.Info().
		Str("timer_id", id.String()).
		Str("entry_id", entry.ID.String()).
		Int("duration", elapsed).
		Msg("timer completed")

	return &CompleteResult{Timer: timer, Entry: entry}, nil
}

// CancelTimer discards a timer without writing an entry
func (a *App) CancelTimer(ctx context.Context, userID string, id uuid.UUID) error {
	unlock := a.locks.Lock(id)
	defer unlock()

	timer, err := a.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := a.store.Delete(ctx, id, userID); err != nil {
		return fmt.Errorf("failed to delete timer: %w", err)
	}

	timer.Status = models.TimerStatusCancelled
	a.broadcaster.BroadcastUpdate(timer)

	log.Info().Str("timer_id", id.String()).Msg("timer cancelled")
	return nil
}

// GetTimer returns the stored timer as last written
func (a *App) GetTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error) {
	return a.getOwned(ctx, userID, id)
}

// GetLiveTimer returns the stored timer with Remaining derived from the clock when running.
// Nothing is written back.
func (a *App) GetLiveTimer(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error) {
	timer, err := a.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	timer.Remaining = timer.RemainingAt(a.clock.Now())
	return timer, nil
}

// ListActiveTimers returns the user's running and paused timers
func (a *App) ListActiveTimers(ctx context.Context, userID string) ([]*models.TimerSession, error) {
	timers, err := a.store.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	return timers, nil
}

// getOwned loads a timer and hides timers owned by other users behind ErrNotFound
func (a *App) getOwned(ctx context.Context, userID string, id uuid.UUID) (*models.TimerSession, error) {
	timer, err := a.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("timer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get timer: %w", err)
	}
	if timer.UserID != userID {
		return nil, fmt.Errorf("timer %s: %w", id, ErrNotFound)
	}
	return timer, nil
}

// validateStartTimerRequest validates and normalizes a start request
func (a *App) validateStartTimerRequest(req *StartTimerRequest) error {
	if req.ActivityID == uuid.Nil {
		return fmt.Errorf("activityId is required: %w", ErrValidation)
	}
	if req.Duration <= 0 {
		return fmt.Errorf("duration must be positive: %w", ErrValidation)
	}
	if req.SoundType == "" {
		req.SoundType = models.SoundTypeChime
	}
	if !req.SoundType.Valid() {
		return fmt.Errorf("unknown soundType %q: %w", req.SoundType, ErrValidation)
	}
	return nil
}
