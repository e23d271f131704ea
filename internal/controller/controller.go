package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchsync/internal/broadcast"
	"github.com/sharetube/watchsync/internal/repository/connection"
	"github.com/sharetube/watchsync/internal/service/auth"
	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/sharetube/watchsync/pkg/validator"
	"github.com/sharetube/watchsync/pkg/wsrouter"
	"golang.org/x/time/rate"
)

type iRoomService interface {
	CreateRoom(ctx context.Context) (room.CreateRoomResponse, error)
	Join(ctx context.Context, params *room.JoinParams) (room.JoinResponse, error)
	Leave(ctx context.Context, connectionId string) (room.LeaveResponse, error)
	ApplyVideoCommand(ctx context.Context, params *room.ApplyVideoCommandParams) (room.ApplyVideoCommandResponse, error)
	GetVideoState(ctx context.Context, roomId string) (protocol.VideoState, bool, error)
	PlaylistAdd(ctx context.Context, params *room.PlaylistAddParams) (room.PlaylistResponse, error)
	PlaylistRemove(ctx context.Context, params *room.PlaylistRemoveParams) (room.PlaylistResponse, error)
	SendMessage(ctx context.Context, params *room.SendMessageParams) (room.SendMessageResponse, error)
	SyncMode() protocol.SyncMode
}

type iClockService interface {
	Now() int64
}

type iAuthService interface {
	ParseToken(token string) (auth.Identity, error)
}

type iConnRepo interface {
	Add(ctx context.Context, connectionId string, conn connection.Sender) error
	Remove(ctx context.Context, connectionId string) (connection.Sender, error)
}

type iBroadcaster interface {
	Send(ctx context.Context, msg *broadcast.Message) error
}

type iMetrics interface {
	RecordClockSync()
	RecordRateLimited()
	ObserveHandleDuration(msgType string, seconds float64)
}

type Config struct {
	// Inbound websocket messages per second allowed per connection. 0 disables limiting.
	MessagesPerSecond float64
	Burst             int
	WriteTimeout      time.Duration
	// A connection silent for longer than ReadTimeout is dropped. 0 waits forever.
	ReadTimeout     time.Duration
	MaxMessageBytes int64
}

type Params struct {
	RoomService  iRoomService
	ClockService iClockService
	AuthService  iAuthService
	ConnRepo     iConnRepo
	Broadcaster  iBroadcaster
	Metrics      iMetrics
	// Handler for /metrics. Optional.
	MetricsHandler http.Handler
	Logger         *slog.Logger
	Config         Config
}

type controller struct {
	roomService    iRoomService
	clockService   iClockService
	authService    iAuthService
	connRepo       iConnRepo
	broadcaster    iBroadcaster
	metrics        iMetrics
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	wsmux          *wsrouter.WSRouter
	logger         *slog.Logger
	cfg            Config
}

func NewController(params *Params) *controller {
	cfg := params.Config
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 << 10
	}

	if cfg.MessagesPerSecond > 0 && cfg.Burst <= 0 {
		cfg.Burst = int(cfg.MessagesPerSecond)
	}

	c := &controller{
		roomService:    params.RoomService,
		clockService:   params.ClockService,
		authService:    params.AuthService,
		connRepo:       params.ConnRepo,
		broadcaster:    params.Broadcaster,
		metrics:        params.Metrics,
		metricsHandler: params.MetricsHandler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.New(),
		logger:   params.Logger,
		cfg:      cfg,
	}
	c.wsmux = c.getWSRouter()

	return c
}

// newLimiter returns nil when limiting is disabled.
func (c *controller) newLimiter() *rate.Limiter {
	if c.cfg.MessagesPerSecond <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(c.cfg.MessagesPerSecond), c.cfg.Burst)
}
