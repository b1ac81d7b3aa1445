package timer

import (
	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/models"
)

// StartTimerRequest represents the data needed to start a timer
type StartTimerRequest struct {
	ActivityID uuid.UUID        `json:"activityId"`
	Duration   int              `json:"duration"`
	SoundType  models.SoundType `json:"soundType,omitempty"`
}

// CompleteResult is the final snapshot of a completed timer and the entry it produced
type CompleteResult struct {
	Timer *models.TimerSession  `json:"timer"`
	Entry *models.ActivityEntry `json:"entry"`
}

// TimerIDRequest names a single timer
type TimerIDRequest struct {
	ID string `json:"id"`
}

// GetTimerRequest names a timer. Live derives Remaining from the clock for running timers.
type GetTimerRequest struct {
	ID   string `json:"id"`
	Live bool   `json:"live,omitempty"`
}

// ListActiveTimersRequest has no parameters; the caller's identity scopes the list
type ListActiveTimersRequest struct{}

// TimerResponse wraps a single timer
type TimerResponse struct {
	Data *models.TimerSession `json:"data"`
}

// TimerListResponse wraps a list of timers
type TimerListResponse struct {
	Data []*models.TimerSession `json:"data"`
}

// CompleteTimerResponse wraps the completed timer and its entry
type CompleteTimerResponse struct {
	Data *CompleteResult `json:"data"`
}

// SuccessResponse acknowledges an operation without a payload
type SuccessResponse struct {
	Success bool `json:"success"`
}
