package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/chronicle/go/internal/auth"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/mcdev12/chronicle/go/internal/timer/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStates struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*models.TimerSession
}

func (f *fakeStates) Get(_ context.Context, id uuid.UUID) (*models.TimerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.timers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStates) put(t *models.TimerSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timers[t.ID] = t
}

// inbound decodes any server to client message
type inbound struct {
	Type    string               `json:"type"`
	Event   string               `json:"event"`
	TimerID string               `json:"timerId"`
	Success bool                 `json:"success"`
	Error   string               `json:"error"`
	Timer   *models.TimerSession `json:"timer"`
}

type gatewayFixture struct {
	svc    *Service
	states *fakeStates
	srv    *httptest.Server
	wsURL  string
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	states := &fakeStates{timers: make(map[uuid.UUID]*models.TimerSession)}
	svc := NewService(DefaultConfig(), states)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		svc:    svc,
		states: states,
		srv:    srv,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/timer",
	}
}

func (f *gatewayFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := f.wsURL
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func runningTimer(userID string) *models.TimerSession {
	return &models.TimerSession{
		ID:         uuid.New(),
		UserID:     userID,
		ActivityID: uuid.New(),
		Duration:   1500,
		Remaining:  1500,
		Status:     models.TimerStatusRunning,
		SoundType:  models.SoundTypeChime,
		StartedAt:  time.Now().UnixMilli(),
	}
}

func send(t *testing.T, conn *websocket.Conn, command string, timerID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: command, TimerID: timerID}))
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg inbound
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func join(t *testing.T, conn *websocket.Conn, timerID uuid.UUID) {
	t.Helper()
	send(t, conn, CommandJoinTimer, timerID.String())
	for {
		msg := read(t, conn)
		if msg.Type == string(EventTypeAck) {
			require.Equal(t, CommandJoinTimer, msg.Event)
			require.True(t, msg.Success)
			return
		}
	}
}

func TestGateway_LateJoinerReceivesCurrentStateThenAck(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")
	timer.Remaining = 1200
	f.states.put(timer)

	conn := f.dial(t, "user_id=u1")
	send(t, conn, CommandJoinTimer, timer.ID.String())

	state := read(t, conn)
	assert.Equal(t, string(EventTypeTimerState), state.Type)
	assert.Equal(t, timer.ID.String(), state.TimerID)
	require.NotNil(t, state.Timer)
	assert.Equal(t, 1200, state.Timer.Remaining)

	ack := read(t, conn)
	assert.Equal(t, string(EventTypeAck), ack.Type)
	assert.Equal(t, CommandJoinTimer, ack.Event)
	assert.Equal(t, timer.ID.String(), ack.TimerID)
	assert.True(t, ack.Success)
}

func TestGateway_JoinUnknownTimerOnlyAcks(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "")

	send(t, conn, CommandJoinTimer, uuid.NewString())

	ack := read(t, conn)
	assert.Equal(t, string(EventTypeAck), ack.Type)
	assert.True(t, ack.Success)
}

func TestGateway_RepeatedJoinDoesNotResendState(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")
	f.states.put(timer)

	conn := f.dial(t, "")
	send(t, conn, CommandJoinTimer, timer.ID.String())
	assert.Equal(t, string(EventTypeTimerState), read(t, conn).Type)
	assert.Equal(t, string(EventTypeAck), read(t, conn).Type)

	send(t, conn, CommandJoinTimer, timer.ID.String())
	assert.Equal(t, string(EventTypeAck), read(t, conn).Type)

	stats := f.svc.GetStats()
	assert.Equal(t, 1, stats.TimerConnections[timer.ID.String()])
}

func TestGateway_BroadcastReachesOnlySubscribers(t *testing.T) {
	f := newGatewayFixture(t)
	timerA := runningTimer("u1")
	timerB := runningTimer("u1")

	subA := f.dial(t, "")
	subB := f.dial(t, "")
	join(t, subA, timerA.ID)
	join(t, subB, timerB.ID)

	timerA.Status = models.TimerStatusPaused
	f.svc.BroadcastUpdate(timerA)
	f.svc.BroadcastUpdate(timerB)

	gotA := read(t, subA)
	assert.Equal(t, string(EventTypeTimerState), gotA.Type)
	assert.Equal(t, timerA.ID.String(), gotA.TimerID)
	assert.Equal(t, models.TimerStatusPaused, gotA.Timer.Status)

	// subB sees its own timer first, so nothing for timerA was queued ahead of it
	gotB := read(t, subB)
	assert.Equal(t, timerB.ID.String(), gotB.TimerID)
}

func TestGateway_BroadcastCompleteEvent(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")

	conn := f.dial(t, "")
	join(t, conn, timer.ID)

	timer.Status = models.TimerStatusCompleted
	timer.Remaining = 0
	f.svc.BroadcastComplete(timer)

	msg := read(t, conn)
	assert.Equal(t, string(EventTypeTimerComplete), msg.Type)
	assert.Equal(t, models.TimerStatusCompleted, msg.Timer.Status)
	assert.Equal(t, 0, msg.Timer.Remaining)
}

func TestGateway_LeaveStopsDelivery(t *testing.T) {
	f := newGatewayFixture(t)
	timerA := runningTimer("u1")
	timerB := runningTimer("u1")

	conn := f.dial(t, "")
	join(t, conn, timerA.ID)
	join(t, conn, timerB.ID)

	send(t, conn, CommandLeaveTimer, timerA.ID.String())
	ack := read(t, conn)
	assert.Equal(t, CommandLeaveTimer, ack.Event)
	assert.True(t, ack.Success)

	f.svc.BroadcastUpdate(timerA)
	f.svc.BroadcastUpdate(timerB)

	msg := read(t, conn)
	assert.Equal(t, timerB.ID.String(), msg.TimerID)
}

func TestGateway_LeaveWithoutJoinAcks(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "")

	send(t, conn, CommandLeaveTimer, uuid.NewString())

	ack := read(t, conn)
	assert.Equal(t, string(EventTypeAck), ack.Type)
	assert.True(t, ack.Success)
}

func TestGateway_SubscribeFromQueryParameter(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")
	f.states.put(timer)

	conn := f.dial(t, "timer_id="+timer.ID.String())

	msg := read(t, conn)
	assert.Equal(t, string(EventTypeTimerState), msg.Type)
	assert.Equal(t, timer.ID.String(), msg.TimerID)
}

func TestGateway_InvalidTimerIDQueryRejected(t *testing.T) {
	f := newGatewayFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL+"?timer_id=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_BadCommands(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "")

	send(t, conn, CommandJoinTimer, "not-a-uuid")
	msg := read(t, conn)
	assert.Equal(t, string(EventTypeError), msg.Type)
	assert.Equal(t, "invalid timerId", msg.Error)
	assert.False(t, msg.Success)

	send(t, conn, "explode:timer", uuid.NewString())
	msg = read(t, conn)
	assert.Equal(t, string(EventTypeError), msg.Type)
	assert.Equal(t, "unknown command", msg.Error)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	msg = read(t, conn)
	assert.Equal(t, "invalid message", msg.Error)
}

func TestGateway_DisconnectRemovesFromAllGroups(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "")
	join(t, conn, uuid.New())
	join(t, conn, uuid.New())

	stats := f.svc.GetStats()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveTimers)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		s := f.svc.GetStats()
		return s.TotalConnections == 0 && s.ActiveTimers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_ReleaseTimerDropsGroup(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")

	conn := f.dial(t, "")
	join(t, conn, timer.ID)
	require.Equal(t, 1, f.svc.GetStats().ActiveTimers)

	f.svc.ReleaseTimer(timer.ID)

	stats := f.svc.GetStats()
	assert.Equal(t, 0, stats.ActiveTimers)
	assert.Equal(t, 1, stats.TotalConnections)
}

func TestGateway_StatsEndpoint(t *testing.T) {
	f := newGatewayFixture(t)
	timer := runningTimer("u1")
	conn := f.dial(t, "")
	join(t, conn, timer.ID)

	resp, err := http.Get(f.srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveTimers)
	assert.Equal(t, 1, stats.TimerConnections[timer.ID.String()])
}

func TestNewTimerEvent_SnapshotIsIndependent(t *testing.T) {
	pausedAt := int64(1000)
	timer := runningTimer("u1")
	timer.PausedAt = &pausedAt

	event := NewTimerEvent(EventTypeTimerState, timer)
	timer.Remaining = 1
	*timer.PausedAt = 2

	assert.Equal(t, 1500, event.Timer.Remaining)
	assert.Equal(t, int64(1000), *event.Timer.PausedAt)
	assert.Equal(t, timer.ID.String(), event.TimerID)
	assert.NotEmpty(t, event.ID)
}

func TestConnectionUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/timer", nil)
	assert.Equal(t, "anonymous", connectionUserID(req))

	req = httptest.NewRequest(http.MethodGet, "/ws/timer?user_id=u2", nil)
	assert.Equal(t, "u2", connectionUserID(req))

	req.Header.Set(auth.UserIDHeader, "u1")
	assert.Equal(t, "u1", connectionUserID(req))
}

// gatedStates holds every lookup until release is closed
type gatedStates struct {
	timer   *models.TimerSession
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStates) Get(_ context.Context, _ uuid.UUID) (*models.TimerSession, error) {
	g.entered <- struct{}{}
	<-g.release
	cp := *g.timer
	return &cp, nil
}

func TestGateway_StaleCatchUpDroppedAfterBroadcast(t *testing.T) {
	stale := runningTimer("u1")
	stale.Remaining = 1500
	states := &gatedStates{timer: stale, entered: make(chan struct{}, 1), release: make(chan struct{})}

	svc := NewService(DefaultConfig(), states)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/timer", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	send(t, conn, CommandJoinTimer, stale.ID.String())
	select {
	case <-states.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("state lookup never started")
	}

	newer := *stale
	newer.Status = models.TimerStatusPaused
	newer.Remaining = 1400
	svc.BroadcastUpdate(&newer)

	msg := read(t, conn)
	assert.Equal(t, string(EventTypeTimerState), msg.Type)
	require.NotNil(t, msg.Timer)
	assert.Equal(t, models.TimerStatusPaused, msg.Timer.Status)
	assert.Equal(t, 1400, msg.Timer.Remaining)

	close(states.release)

	ack := read(t, conn)
	assert.Equal(t, string(EventTypeAck), ack.Type)
	assert.Equal(t, CommandJoinTimer, ack.Event)
}
