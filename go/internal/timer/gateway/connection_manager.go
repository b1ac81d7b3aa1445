package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/mcdev12/chronicle/go/internal/timer/store"
	"github.com/rs/zerolog/log"
)

// StateProvider looks up the current state of a live timer for late joiners
type StateProvider interface {
	Get(ctx context.Context, id uuid.UUID) (*models.TimerSession, error)
}

// ConnectionManager manages WebSocket connections and their timer subscriptions
type ConnectionManager struct {
	// Subscription groups organized by timer ID
	groups      map[uuid.UUID]map[*Connection]bool
	connections map[*Connection]bool
	// Broadcasts fanned out per group, used to drop stale catch-up state
	delivered map[uuid.UUID]uint64
	mu        sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Event broadcasting
	broadcastCh chan *TimerEvent

	states StateProvider
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time

	// guarded by Manager.mu
	subscriptions map[uuid.UUID]bool
	closed        bool
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	PingInterval       time.Duration
	StateLookupTimeout time.Duration
	MaxMessageSize     int64
	ReadBufferSize     int
	WriteBufferSize    int
	SendBufferSize     int
	BroadcastBuffer    int
	CheckOrigin        func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:       10 * time.Second,
		ReadTimeout:        60 * time.Second,
		PingInterval:       30 * time.Second,
		StateLookupTimeout: 2 * time.Second,
		MaxMessageSize:     1024, // 1KB max message size
		ReadBufferSize:     1024,
		WriteBufferSize:    1024,
		SendBufferSize:     64,
		BroadcastBuffer:    1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, states StateProvider) *ConnectionManager {
	return &ConnectionManager{
		groups:      make(map[uuid.UUID]map[*Connection]bool),
		connections: make(map[*Connection]bool),
		delivered:   make(map[uuid.UUID]uint64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *TimerEvent, config.BroadcastBuffer),
		states:      states,
	}
}

// Start processes broadcast events until ctx is cancelled, then closes all connections
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its pumps
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:            uuid.New().String(),
		UserID:        userID,
		Conn:          conn,
		Send:          make(chan []byte, cm.config.SendBufferSize),
		Manager:       cm,
		ConnectedAt:   now,
		LastPing:      now,
		subscriptions: make(map[uuid.UUID]bool),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Msg("WebSocket connection established")

	return connection, nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = true
}

// unregisterConnection removes a connection from every group it joined
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return
	}
	conn.closed = true

	for timerID := range conn.subscriptions {
		cm.removeFromGroupLocked(conn, timerID)
	}
	delete(cm.connections, conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Int("subscriptions", len(conn.subscriptions)).
		Msg("connection unregistered")
}

// Subscribe adds conn to the timer's group. On first join the current timer state is
// sent to conn once, if the timer is live. Returns false if conn was already a member.
func (cm *ConnectionManager) Subscribe(conn *Connection, timerID uuid.UUID) bool {
	cm.mu.Lock()
	if conn.closed {
		cm.mu.Unlock()
		return false
	}
	group, ok := cm.groups[timerID]
	if !ok {
		group = make(map[*Connection]bool)
		cm.groups[timerID] = group
	}
	first := !group[conn]
	group[conn] = true
	conn.subscriptions[timerID] = true
	size := len(group)
	since := cm.delivered[timerID]
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("timer_id", timerID.String()).
		Int("group_size", size).
		Msg("connection subscribed")

	if first {
		cm.sendCurrentState(conn, timerID, since)
	}
	return first
}

// Unsubscribe removes conn from the timer's group. Absence is not an error.
func (cm *ConnectionManager) Unsubscribe(conn *Connection, timerID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.removeFromGroupLocked(conn, timerID)
	delete(conn.subscriptions, timerID)
}

// ReleaseTimer drops the whole group for a timer that no longer exists
func (cm *ConnectionManager) ReleaseTimer(timerID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for conn := range cm.groups[timerID] {
		delete(conn.subscriptions, timerID)
	}
	delete(cm.groups, timerID)
	delete(cm.delivered, timerID)
}

func (cm *ConnectionManager) removeFromGroupLocked(conn *Connection, timerID uuid.UUID) {
	group, ok := cm.groups[timerID]
	if !ok {
		return
	}
	delete(group, conn)
	if len(group) == 0 {
		delete(cm.groups, timerID)
		delete(cm.delivered, timerID)
	}
}

// sendCurrentState gives a late joiner the stored state of the timer. The state is
// dropped if conn left or the group was broadcast to after since.
func (cm *ConnectionManager) sendCurrentState(conn *Connection, timerID uuid.UUID, since uint64) {
	if cm.states == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.StateLookupTimeout)
	defer cancel()

	timer, err := cm.states.Get(ctx, timerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("timer_id", timerID.String()).Msg("failed to load timer state for late joiner")
		}
		return
	}

	data, err := json.Marshal(NewTimerEvent(EventTypeTimerState, timer))
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal timer state")
		return
	}

	current := func() bool {
		return conn.subscriptions[timerID] && cm.delivered[timerID] == since
	}
	if !cm.sendToIf(conn, data, current) {
		log.Debug().
			Str("connection_id", conn.ID).
			Str("timer_id", timerID.String()).
			Msg("catch-up state not delivered")
	}
}

// BroadcastUpdate fans a state event out to the timer's subscribers
func (cm *ConnectionManager) BroadcastUpdate(timer *models.TimerSession) {
	cm.Dispatch(NewTimerEvent(EventTypeTimerState, timer))
}

// BroadcastComplete fans a completion event out to the timer's subscribers
func (cm *ConnectionManager) BroadcastComplete(timer *models.TimerSession) {
	cm.Dispatch(NewTimerEvent(EventTypeTimerComplete, timer))
}

// Dispatch queues an event for delivery without blocking the caller
func (cm *ConnectionManager) Dispatch(event *TimerEvent) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("timer_id", event.TimerID).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast delivers an event to every connection in the timer's group
func (cm *ConnectionManager) handleBroadcast(event *TimerEvent) {
	timerID, err := uuid.Parse(event.TimerID)
	if err != nil {
		log.Error().Err(err).Str("timer_id", event.TimerID).Msg("dropping event with invalid timer id")
		return
	}

	// Marshal the event once
	eventData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	var slow []*Connection
	delivered := 0

	cm.mu.Lock()
	group, ok := cm.groups[timerID]
	if ok {
		cm.delivered[timerID]++
	}
	for conn := range group {
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.Unlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("timer_id", event.TimerID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// sendTo queues data for a single connection
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	return cm.sendToIf(conn, data, nil)
}

// sendToIf queues data only while cond holds. cond runs under cm.mu.
func (cm *ConnectionManager) sendToIf(conn *Connection, data []byte, cond func() bool) bool {
	cm.mu.RLock()
	if conn.closed || (cond != nil && !cond()) {
		cm.mu.RUnlock()
		return false
	}
	var ok bool
	select {
	case conn.Send <- data:
		ok = true
	default:
	}
	cm.mu.RUnlock()

	if !ok {
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
	return ok
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

// ConnectionStats summarizes active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveTimers     int            `json:"active_timers"`
	TimerConnections map[string]int `json:"timer_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	timerCounts := make(map[string]int, len(cm.groups))
	for timerID, group := range cm.groups {
		timerCounts[timerID.String()] = len(group)
	}

	return ConnectionStats{
		TotalConnections: len(cm.connections),
		ActiveTimers:     len(cm.groups),
		TimerConnections: timerCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes join/leave commands received from the client
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(AckMessage{Type: EventTypeError, Error: "invalid message"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("command", msg.Type).
		Str("timer_id", msg.TimerID).
		Msg("received client message")

	switch msg.Type {
	case CommandJoinTimer, CommandLeaveTimer:
		timerID, err := uuid.Parse(msg.TimerID)
		if err != nil {
			c.reply(AckMessage{Type: EventTypeError, Event: msg.Type, TimerID: msg.TimerID, Error: "invalid timerId"})
			return
		}
		if msg.Type == CommandJoinTimer {
			c.Manager.Subscribe(c, timerID)
		} else {
			c.Manager.Unsubscribe(c, timerID)
		}
		c.reply(AckMessage{Type: EventTypeAck, Event: msg.Type, TimerID: msg.TimerID, Success: true})
	default:
		c.reply(AckMessage{Type: EventTypeError, Event: msg.Type, Error: "unknown command"})
	}
}

func (c *Connection) reply(ack AckMessage) {
	data, err := json.Marshal(ack)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal ack")
		return
	}
	c.Manager.sendTo(c, data)
}
