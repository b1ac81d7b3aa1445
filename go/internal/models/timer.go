package models

import (
	"time"

	"github.com/google/uuid"
)

// TimerStatus defines the lifecycle state of a timer session.
type TimerStatus string

const (
	TimerStatusRunning   TimerStatus = "RUNNING"
	TimerStatusPaused    TimerStatus = "PAUSED"
	TimerStatusCompleted TimerStatus = "COMPLETED"
	TimerStatusCancelled TimerStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TimerStatus) IsTerminal() bool {
	return s == TimerStatusCompleted || s == TimerStatusCancelled
}

// SoundType selects the notification sound played when a timer ends.
type SoundType string

const (
	SoundTypeChime   SoundType = "CHIME"
	SoundTypeGong    SoundType = "GONG"
	SoundTypeDigital SoundType = "DIGITAL"
)

// Valid reports whether s is one of the known sound types.
func (s SoundType) Valid() bool {
	switch s {
	case SoundTypeChime, SoundTypeGong, SoundTypeDigital:
		return true
	}
	return false
}

// TimerSession is the server-authoritative record of one countdown.
//
// While the timer is RUNNING, Remaining is stale and StartedAt is the anchor from which
// elapsed time is derived. While PAUSED, Remaining is authoritative.
type TimerSession struct {
	ID         uuid.UUID   `json:"id"`
	UserID     string      `json:"userId"`
	ActivityID uuid.UUID   `json:"activityId"`
	Duration   int         `json:"duration"`  // planned seconds
	Remaining  int         `json:"remaining"` // seconds
	Status     TimerStatus `json:"status"`
	SoundType  SoundType   `json:"soundType"`
	StartedAt  int64       `json:"startedAt"`          // epoch ms
	PausedAt   *int64      `json:"pausedAt,omitempty"` // epoch ms
}

// IsActive reports whether the session belongs in the live store.
func (t *TimerSession) IsActive() bool {
	return t.Status == TimerStatusRunning || t.Status == TimerStatusPaused
}

// ElapsedSeconds returns whole seconds since the anchor, truncated and never negative.
func (t *TimerSession) ElapsedSeconds(now time.Time) int {
	ms := now.UnixMilli() - t.StartedAt
	if ms < 0 {
		return 0
	}
	return int(ms / 1000)
}

// RemainingAt derives the remaining seconds at now without mutating the session.
func (t *TimerSession) RemainingAt(now time.Time) int {
	if t.Status != TimerStatusRunning {
		return t.Remaining
	}
	remaining := t.Duration - t.ElapsedSeconds(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RunningSeconds returns how long the timer has actually run, capped at Duration.
func (t *TimerSession) RunningSeconds(now time.Time) int {
	if t.Status == TimerStatusRunning {
		return min(t.Duration, t.ElapsedSeconds(now))
	}
	return t.Duration - t.Remaining
}

// ResumeAnchor returns the StartedAt value that makes ElapsedSeconds continue from the
// paused remaining time. Time spent paused is not counted.
func (t *TimerSession) ResumeAnchor(now time.Time) int64 {
	return now.UnixMilli() - int64(t.Duration-t.Remaining)*1000
}
