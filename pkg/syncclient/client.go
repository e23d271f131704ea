package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/pkg/protocol"
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrTooManyReconnects = errors.New("too many reconnect attempts")
	// ErrRejected is returned by Run when the server refuses the join.
	ErrRejected = errors.New("join rejected")
)

type Config struct {
	// ServerURL is the http(s) base URL of the server.
	ServerURL   string
	RoomId      string
	DisplayName string
	// Token is an optional signed identity.
	Token string
	// Consecutive failed connection attempts before Run gives up. 0 means 5.
	MaxReconnects  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	DriftThreshold float64
	// ScheduleLead is how far ahead this client schedules its own commands in scheduled mode.
	ScheduleLead time.Duration
}

// Handlers receive events the client does not act on itself. Any of them may be nil.
type Handlers struct {
	OnJoined   func(protocol.JoinedRoomPayload)
	OnUsers    func([]protocol.Participant)
	OnNotice   func(text string)
	OnMessage  func(protocol.ChatMessage)
	OnPlaylist func([]protocol.VideoItem)
	OnError    func(protocol.ErrorPayload)
}

// Client keeps a Player in step with one room.
type Client struct {
	cfg        Config
	player     Player
	clock      clockwork.Clock
	estimator  *OffsetEstimator
	scheduler  *Scheduler
	reconciler *Reconciler
	handlers   Handlers
	logger     *slog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	connectionId string
	syncMode     protocol.SyncMode
	url          string

	// one clock_sync round trip at a time
	syncMu       sync.Mutex
	clockReplies chan protocol.ClockSyncPayload
}

func New(cfg Config, player Player, handlers Handlers, clock clockwork.Clock, logger *slog.Logger) *Client {
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}

	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	if cfg.ScheduleLead <= 0 {
		cfg.ScheduleLead = 3 * time.Second
	}

	c := &Client{
		cfg:          cfg,
		player:       player,
		clock:        clock,
		reconciler:   NewReconciler(player, cfg.DriftThreshold, logger),
		handlers:     handlers,
		logger:       logger,
		syncMode:     protocol.SyncModeImmediate,
		clockReplies: make(chan protocol.ClockSyncPayload, 1),
	}
	c.estimator = NewOffsetEstimator(c, clock, logger)
	c.scheduler = NewScheduler(clock, c.estimator, player, logger)

	return c
}

func (c *Client) Estimator() *OffsetEstimator {
	return c.estimator
}

func (c *Client) Scheduler() *Scheduler {
	return c.scheduler
}

func (c *Client) ConnectionId() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectionId
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/rooms/" + url.PathEscape(c.cfg.RoomId)

	query := url.Values{}
	query.Set("display-name", c.cfg.DisplayName)
	if c.cfg.Token != "" {
		query.Set("token", c.cfg.Token)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// Run connects to the room and processes events until ctx is done. A dropped connection
// is retried with exponential backoff; pending scheduled commands are cancelled on every drop.
func (c *Client) Run(ctx context.Context) error {
	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}

	backoff := c.cfg.InitialBackoff
	failures := 0

	for {
		connected, err := c.runOnce(ctx, wsURL)
		c.scheduler.CancelAll()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, ErrRejected) {
			return err
		}

		if connected {
			failures = 0
			backoff = c.cfg.InitialBackoff
		}

		failures++
		if failures > c.cfg.MaxReconnects {
			return fmt.Errorf("%w: %w", ErrTooManyReconnects, err)
		}

		c.logger.InfoContext(ctx, "connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(backoff):
		}

		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
}

// runOnce serves a single connection. connected reports whether the join succeeded.
func (c *Client) runOnce(ctx context.Context, wsURL string) (connected bool, err error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return false, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		return false, fmt.Errorf("failed to dial: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connectionId = ""
		c.mu.Unlock()
		conn.Close()
	}()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		var env protocol.RawEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			return connected, err
		}

		if env.Type == protocol.TypeJoinedRoom && !connected {
			connected = true
			go c.estimator.Run(connCtx)
		}

		if err := c.dispatch(ctx, &env); err != nil {
			if errors.Is(err, ErrRejected) {
				return connected, err
			}
			c.logger.WarnContext(ctx, "failed to handle message", "type", env.Type, "error", err)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, env *protocol.RawEnvelope) error {
	switch env.Type {
	case protocol.TypeJoinedRoom:
		var payload protocol.JoinedRoomPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		c.mu.Lock()
		c.connectionId = payload.ConnectionId
		c.syncMode = payload.SyncMode
		c.mu.Unlock()

		if err := c.applyState(payload.VideoState, payload.ServerTime); err != nil {
			return err
		}
		if c.handlers.OnJoined != nil {
			c.handlers.OnJoined(payload)
		}
	case protocol.TypeVideoPlay, protocol.TypeVideoPause, protocol.TypeVideoSeek:
		var payload protocol.VideoCommandPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		return c.applyCommand(actionFromType(env.Type), payload.CurrentTime, "", payload.ExecuteAt)
	case protocol.TypeVideoURLChange:
		var payload protocol.VideoURLChangePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		c.scheduler.CancelAll()
		return c.applyCommand(ActionLoadURL, 0, payload.URL, 0)
	case protocol.TypeVideoState:
		var payload protocol.VideoStatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if payload.VideoState != nil {
			return c.applyState(*payload.VideoState, c.estimator.ServerNow())
		}
	case protocol.TypeClockSync:
		var payload protocol.ClockSyncPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		select {
		case c.clockReplies <- payload:
		default:
			c.logger.DebugContext(ctx, "unexpected clock_sync reply")
		}
	case protocol.TypeUsersUpdated:
		var payload protocol.UsersUpdatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if c.handlers.OnUsers != nil {
			c.handlers.OnUsers(payload.Users)
		}
	case protocol.TypeSystemNotice:
		var payload protocol.SystemNoticePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if c.handlers.OnNotice != nil {
			c.handlers.OnNotice(payload.Text)
		}
	case protocol.TypeMessage:
		var payload protocol.ChatMessage
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(payload)
		}
	case protocol.TypePlaylistUpdated:
		var payload protocol.PlaylistUpdatedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if c.handlers.OnPlaylist != nil {
			c.handlers.OnPlaylist(payload.Playlist)
		}
	case protocol.TypeError:
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return err
		}

		if c.handlers.OnError != nil {
			c.handlers.OnError(payload)
		}

		// a refused join is followed by the server closing the socket
		if c.ConnectionId() == "" {
			return fmt.Errorf("%w: %s", ErrRejected, payload.Code)
		}
	default:
		c.logger.DebugContext(ctx, "ignoring message", "type", env.Type)
	}

	return nil
}

func actionFromType(msgType string) Action {
	switch msgType {
	case protocol.TypeVideoPlay:
		return ActionPlay
	case protocol.TypeVideoPause:
		return ActionPause
	default:
		return ActionSeek
	}
}

// applyCommand schedules commands that carry an execution time and applies the rest at once.
func (c *Client) applyCommand(action Action, currentTime float64, url string, executeAt int64) error {
	if executeAt > 0 {
		c.scheduler.Schedule(Instruction{
			Action:      action,
			CurrentTime: currentTime,
			URL:         url,
			ExecuteAt:   executeAt,
		})
		return nil
	}

	if action == ActionLoadURL {
		c.mu.Lock()
		c.url = url
		c.mu.Unlock()
	}

	return c.reconciler.Apply(action, currentTime, url)
}

// applyState hydrates the player from a snapshot, advancing a playing snapshot by the time
// passed since it was last updated.
func (c *Client) applyState(state protocol.VideoState, serverNow int64) error {
	position := state.CurrentTime
	if state.IsPlaying && serverNow > state.LastUpdated {
		position += float64(serverNow-state.LastUpdated) / 1000
	}

	c.mu.Lock()
	currentURL := c.url
	c.url = state.URL
	c.mu.Unlock()

	return c.reconciler.ApplyState(state, position, currentURL)
}

func (c *Client) write(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	return c.conn.WriteJSON(&protocol.Envelope{Type: msgType, Payload: payload})
}

// ServerTime asks the server for its clock over the websocket. It implements TimeSource.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	// drop a reply to an earlier request that timed out
	select {
	case <-c.clockReplies:
	default:
	}

	clientTime := c.clock.Now().UnixMilli()
	if err := c.write(protocol.TypeClockSync, &protocol.ClockSyncRequest{ClientTime: clientTime}); err != nil {
		return 0, err
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case reply := <-c.clockReplies:
			if reply.ClientTime == clientTime {
				return reply.ServerTime, nil
			}
		}
	}
}

func (c *Client) currentSyncMode() protocol.SyncMode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.syncMode
}

// command sends a video command. In scheduled mode the same instruction is also scheduled
// locally since the server does not echo commands to their sender.
func (c *Client) command(msgType string, action Action, currentTime float64) (*Task, error) {
	req := protocol.VideoCommandRequest{CurrentTime: currentTime}
	if c.currentSyncMode() == protocol.SyncModeScheduled {
		req.ExecuteAt = c.estimator.ServerNow() + c.cfg.ScheduleLead.Milliseconds()
	}

	if err := c.write(msgType, &req); err != nil {
		return nil, err
	}

	if req.ExecuteAt == 0 {
		return nil, nil
	}

	return c.scheduler.Schedule(Instruction{
		Action:      action,
		CurrentTime: currentTime,
		ExecuteAt:   req.ExecuteAt,
	}), nil
}

// Play asks the room to play from currentTime. The returned task is nil in immediate mode.
func (c *Client) Play(currentTime float64) (*Task, error) {
	return c.command(protocol.TypeVideoPlay, ActionPlay, currentTime)
}

func (c *Client) Pause(currentTime float64) (*Task, error) {
	return c.command(protocol.TypeVideoPause, ActionPause, currentTime)
}

func (c *Client) Seek(currentTime float64) (*Task, error) {
	return c.command(protocol.TypeVideoSeek, ActionSeek, currentTime)
}

func (c *Client) LoadURL(url string) error {
	if err := c.write(protocol.TypeVideoURLChange, &protocol.VideoURLChangeRequest{URL: url}); err != nil {
		return err
	}

	c.mu.Lock()
	c.url = url
	c.mu.Unlock()

	return nil
}

func (c *Client) SendMessage(text string) error {
	return c.write(protocol.TypeSendMessage, &protocol.SendMessageRequest{Text: text})
}

func (c *Client) RequestVideoState() error {
	return c.write(protocol.TypeGetVideoState, nil)
}

func (c *Client) AddVideo(item protocol.VideoItem) error {
	return c.write(protocol.TypePlaylistAdd, &item)
}

func (c *Client) RemoveVideo(videoId string) error {
	return c.write(protocol.TypePlaylistRemove, &protocol.PlaylistRemoveRequest{VideoId: videoId})
}

// Leave leaves the room. The server closes the connection and Run keeps reconnecting
// unless its context is cancelled.
func (c *Client) Leave() error {
	return c.write(protocol.TypeLeave, nil)
}
