package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *AppConfig {
	return &AppConfig{
		Secret:              "secret",
		Host:                "127.0.0.1",
		Port:                8080,
		LogLevel:            "debug",
		Store:               StoreMemory,
		MembersLimit:        9,
		PlaylistLimit:       25,
		RoomInactivity:      10 * time.Minute,
		JanitorInterval:     time.Minute,
		SyncMode:            protocol.SyncModeImmediate,
		ScheduleLead:        3 * time.Second,
		WSMessagesPerSecond: 20,
		WSBurst:             40,
		ChatPersistTimeout:  5 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *AppConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(*AppConfig) {}},
		{name: "unlimited members", modify: func(cfg *AppConfig) { cfg.MembersLimit = 0 }},
		{name: "negative members", modify: func(cfg *AppConfig) { cfg.MembersLimit = -1 }, wantErr: true},
		{name: "negative playlist", modify: func(cfg *AppConfig) { cfg.PlaylistLimit = -1 }, wantErr: true},
		{name: "unknown store", modify: func(cfg *AppConfig) { cfg.Store = "postgres" }, wantErr: true},
		{name: "unknown sync mode", modify: func(cfg *AppConfig) { cfg.SyncMode = "eventual" }, wantErr: true},
		{name: "bad port", modify: func(cfg *AppConfig) { cfg.Port = 70000 }, wantErr: true},
		{name: "negative rate", modify: func(cfg *AppConfig) { cfg.WSMessagesPerSecond = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)

			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func startServer(t *testing.T, cfg *AppConfig) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	s, err := newServer(ctx, cfg, clockwork.NewRealClock(), slog.Default())
	require.NoError(t, err)
	require.NoError(t, s.start(ctx))

	ts := httptest.NewServer(s.handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		s.close(context.Background())
	})

	return ts
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server, roomId, name string) *client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/" + roomId + "?display-name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &client{t: t, conn: conn}
}

func (c *client) send(msgType string, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(&protocol.Envelope{Type: msgType, Payload: payload}))
}

func (c *client) next(msgType string) json.RawMessage {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var env protocol.RawEnvelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", msgType)
		if env.Type == msgType {
			return env.Payload
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ts := startServer(t, testConfig())

	alice := dial(t, ts, "movie-night", "alice")
	alice.next(protocol.TypeJoinedRoom)
	bob := dial(t, ts, "movie-night", "bob")
	bob.next(protocol.TypeJoinedRoom)

	alice.send(protocol.TypeVideoURLChange, protocol.VideoURLChangeRequest{URL: "https://youtu.be/abc"})
	var change protocol.VideoURLChangePayload
	require.NoError(t, json.Unmarshal(bob.next(protocol.TypeVideoURLChange), &change))
	assert.Equal(t, "https://youtu.be/abc", change.URL)

	alice.send(protocol.TypePlaylistAdd, protocol.VideoItem{VideoId: "abc", Title: "A"})
	var playlist protocol.PlaylistUpdatedPayload
	require.NoError(t, json.Unmarshal(bob.next(protocol.TypePlaylistUpdated), &playlist))
	require.Len(t, playlist.Playlist, 1)
	assert.Equal(t, "abc", playlist.Playlist[0].VideoId)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRedisStoreAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Store = StoreRedis
	cfg.RedisHost = mr.Host()
	cfg.RedisPort = port

	first := startServer(t, cfg)
	second := startServer(t, cfg)

	alice := dial(t, first, "r1", "alice")
	alice.next(protocol.TypeJoinedRoom)

	bob := dial(t, second, "r1", "bob")
	var joined protocol.JoinedRoomPayload
	require.NoError(t, json.Unmarshal(bob.next(protocol.TypeJoinedRoom), &joined))
	assert.Len(t, joined.Users, 2)

	var notice protocol.SystemNoticePayload
	require.NoError(t, json.Unmarshal(alice.next(protocol.TypeSystemNotice), &notice))
	assert.Equal(t, "bob joined the room", notice.Text)

	alice.send(protocol.TypeVideoURLChange, protocol.VideoURLChangeRequest{URL: "https://youtu.be/abc"})
	bob.next(protocol.TypeVideoURLChange)

	bob.send(protocol.TypeVideoPlay, protocol.VideoCommandRequest{CurrentTime: 12.5})
	var play protocol.VideoCommandPayload
	require.NoError(t, json.Unmarshal(alice.next(protocol.TypeVideoPlay), &play))
	assert.Equal(t, 12.5, play.CurrentTime)

	// a late joiner on either instance sees the stored state
	carol := dial(t, first, "r1", "carol")
	require.NoError(t, json.Unmarshal(carol.next(protocol.TypeJoinedRoom), &joined))
	assert.True(t, joined.VideoState.IsPlaying)
	assert.Equal(t, "https://youtu.be/abc", joined.VideoState.URL)
	assert.Len(t, joined.Users, 3)
}
