package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/models"
)

// EventType represents the type of message sent to a client
type EventType string

const (
	EventTypeTimerState    EventType = "timer:state"
	EventTypeTimerComplete EventType = "timer:complete"
	EventTypeAck           EventType = "ack"
	EventTypeError         EventType = "error"
)

// Client → server commands
const (
	CommandJoinTimer  = "join:timer"
	CommandLeaveTimer = "leave:timer"
)

// TimerEvent carries a full timer snapshot to subscribers
type TimerEvent struct {
	ID        string               `json:"id"`
	Type      EventType            `json:"type"`
	TimerID   string               `json:"timerId"`
	Timestamp time.Time            `json:"timestamp"`
	Timer     *models.TimerSession `json:"timer"`
}

// NewTimerEvent snapshots timer into a new event. Later changes to timer do not leak
// into the event.
func NewTimerEvent(eventType EventType, timer *models.TimerSession) *TimerEvent {
	snapshot := *timer
	if timer.PausedAt != nil {
		pausedAt := *timer.PausedAt
		snapshot.PausedAt = &pausedAt
	}
	return &TimerEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		TimerID:   timer.ID.String(),
		Timestamp: time.Now().UTC(),
		Timer:     &snapshot,
	}
}

// ClientMessage is a command received from a client
type ClientMessage struct {
	Type    string `json:"type"`
	TimerID string `json:"timerId"`
}

// AckMessage answers a client command
type AckMessage struct {
	Type    EventType `json:"type"`
	Event   string    `json:"event"`
	TimerID string    `json:"timerId,omitempty"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}
