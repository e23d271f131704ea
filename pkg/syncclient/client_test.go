package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoom speaks the room protocol well enough to drive a Client.
type fakeRoom struct {
	t          *testing.T
	upgrader   websocket.Upgrader
	state      protocol.VideoState
	serverTime func() int64
	syncMode   protocol.SyncMode
	// close the first n connections right after joining
	dropFirst int32

	connections atomic.Int32
	mu          sync.Mutex
	conn        *websocket.Conn
	received    chan protocol.RawEnvelope
}

func newFakeRoom(t *testing.T) *fakeRoom {
	return &fakeRoom{
		t:          t,
		serverTime: func() int64 { return time.Now().UnixMilli() },
		syncMode:   protocol.SyncModeImmediate,
		received:   make(chan protocol.RawEnvelope, 16),
	}
}

func (f *fakeRoom) write(conn *websocket.Conn, msgType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return conn.WriteJSON(&protocol.Envelope{Type: msgType, Payload: payload})
}

// push sends to the latest connection.
func (f *fakeRoom) push(msgType string, payload any) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	require.NotNil(f.t, conn)
	require.NoError(f.t, f.write(conn, msgType, payload))
}

func (f *fakeRoom) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	n := f.connections.Add(1)
	if n > f.dropFirst {
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
	}

	if err := f.write(conn, protocol.TypeJoinedRoom, &protocol.JoinedRoomPayload{
		RoomId:       "r1",
		ConnectionId: "c1",
		VideoState:   f.state,
		Users:        []protocol.Participant{{ConnectionId: "c1", DisplayName: r.URL.Query().Get("display-name")}},
		ServerTime:   f.serverTime(),
		SyncMode:     f.syncMode,
	}); err != nil {
		return
	}

	if n <= f.dropFirst {
		return
	}

	for {
		var env protocol.RawEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}

		if env.Type == protocol.TypeClockSync {
			var req protocol.ClockSyncRequest
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				return
			}
			if err := f.write(conn, protocol.TypeClockSync, &protocol.ClockSyncPayload{
				ClientTime: req.ClientTime,
				ServerTime: f.serverTime(),
			}); err != nil {
				return
			}
			continue
		}

		f.received <- env
	}
}

func (f *fakeRoom) next(msgType string) json.RawMessage {
	f.t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-f.received:
			if env.Type == msgType {
				return env.Payload
			}
		case <-timeout:
			f.t.Fatalf("no %s received", msgType)
			return nil
		}
	}
}

func startClient(t *testing.T, room *fakeRoom, player Player, cfg Config) (*Client, <-chan error, context.CancelFunc) {
	t.Helper()

	server := httptest.NewServer(room)
	t.Cleanup(server.Close)

	cfg.ServerURL = server.URL
	cfg.RoomId = "r1"
	cfg.DisplayName = "alice"
	c := New(cfg, player, Handlers{}, clockwork.NewRealClock(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	return c, errc, cancel
}

func TestClientHydratesAndFollows(t *testing.T) {
	room := newFakeRoom(t)
	now := time.Now().UnixMilli()
	room.state = protocol.VideoState{
		URL:         "v1",
		IsPlaying:   true,
		CurrentTime: 42,
		LastUpdated: now - 5000,
	}
	room.serverTime = func() int64 { return now }

	player := &fakePlayer{}
	c, _, _ := startClient(t, room, player, Config{})

	require.Eventually(t, func() bool { return player.IsPlaying() }, 2*time.Second, 5*time.Millisecond)
	url, _, position, _ := player.snapshot()
	assert.Equal(t, "v1", url)
	assert.InDelta(t, 47.0, position, 1e-9)
	require.Eventually(t, func() bool { return c.ConnectionId() == "c1" }, 2*time.Second, 5*time.Millisecond)

	room.push(protocol.TypeVideoPause, &protocol.VideoCommandPayload{CurrentTime: 50})
	require.Eventually(t, func() bool { return !player.IsPlaying() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 50.0, player.Position())

	room.push(protocol.TypeVideoURLChange, &protocol.VideoURLChangePayload{URL: "v2"})
	require.Eventually(t, func() bool {
		url, _, _, _ := player.snapshot()
		return url == "v2"
	}, 2*time.Second, 5*time.Millisecond)

	task, err := c.Play(3)
	require.NoError(t, err)
	assert.Nil(t, task)

	var req protocol.VideoCommandRequest
	require.NoError(t, json.Unmarshal(room.next(protocol.TypeVideoPlay), &req))
	assert.Equal(t, 3.0, req.CurrentTime)
	assert.Zero(t, req.ExecuteAt)
}

func TestClientEstimatesOffsetOverWebsocket(t *testing.T) {
	room := newFakeRoom(t)
	room.serverTime = func() int64 { return time.Now().Add(10 * time.Second).UnixMilli() }

	c, _, _ := startClient(t, room, &fakePlayer{}, Config{})

	require.Eventually(t, c.Estimator().Synced, 2*time.Second, 5*time.Millisecond)
	assert.InDelta(t, float64(10*time.Second), float64(c.Estimator().Offset()), float64(100*time.Millisecond))
}

func TestClientScheduledMode(t *testing.T) {
	room := newFakeRoom(t)
	room.syncMode = protocol.SyncModeScheduled

	player := &fakePlayer{url: "v1"}
	c, _, _ := startClient(t, room, player, Config{ScheduleLead: 100 * time.Millisecond})
	require.Eventually(t, func() bool { return c.ConnectionId() == "c1" }, 2*time.Second, 5*time.Millisecond)

	room.push(protocol.TypeVideoSeek, &protocol.VideoCommandPayload{
		CurrentTime: 30,
		ExecuteAt:   time.Now().Add(50 * time.Millisecond).UnixMilli(),
	})
	require.Eventually(t, func() bool { return player.Position() == 30 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, player.IsPlaying())

	// the sender is not echoed, so its own command runs locally at execute_at
	task, err := c.Play(12)
	require.NoError(t, err)
	require.NotNil(t, task)

	var req protocol.VideoCommandRequest
	require.NoError(t, json.Unmarshal(room.next(protocol.TypeVideoPlay), &req))
	assert.NotZero(t, req.ExecuteAt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
	assert.True(t, task.Executed())
	assert.True(t, player.IsPlaying())
	assert.GreaterOrEqual(t, player.Position(), 12.0)
}

func TestClientReconnects(t *testing.T) {
	room := newFakeRoom(t)
	room.dropFirst = 2

	_, errc, cancel := startClient(t, room, &fakePlayer{}, Config{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})

	require.Eventually(t, func() bool { return room.connections.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestClientGivesUp(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	serverURL := server.URL
	server.Close()

	c := New(Config{
		ServerURL:      serverURL,
		RoomId:         "r1",
		MaxReconnects:  2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}, &fakePlayer{}, Handlers{}, clockwork.NewRealClock(), slog.Default())

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyReconnects)
}

func TestClientRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{ServerURL: server.URL, RoomId: "r1", Token: "bad"}, &fakePlayer{}, Handlers{}, clockwork.NewRealClock(), slog.Default())

	err := c.Run(context.Background())
	assert.True(t, errors.Is(err, ErrRejected), "got %v", err)
}

func TestCommandsNeedConnection(t *testing.T) {
	c := New(Config{ServerURL: "http://127.0.0.1:1", RoomId: "r1"}, &fakePlayer{}, Handlers{}, clockwork.NewRealClock(), slog.Default())

	_, err := c.Play(1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.SendMessage("hi"), ErrNotConnected)
}
