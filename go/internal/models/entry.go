package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityType describes how an entry was measured.
type ActivityType string

const (
	ActivityTypeTime ActivityType = "TIME"
)

// TimeEntryData is the payload stored for a TIME entry written by a completed timer.
type TimeEntryData struct {
	Duration  int       `json:"duration"`
	SoundType SoundType `json:"soundType"`
}

// ActivityEntry is a permanent log record in the system of record.
type ActivityEntry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"userId"`
	ActivityID   uuid.UUID       `json:"activityId"`
	ActivityType ActivityType    `json:"activityType"`
	Data         json.RawMessage `json:"data"`
	Notes        *string         `json:"notes,omitempty"`
	LoggedAt     time.Time       `json:"loggedAt"`
	CreatedAt    time.Time       `json:"createdAt"`
}
