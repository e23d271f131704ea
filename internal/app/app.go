package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/broadcast"
	"github.com/sharetube/watchsync/internal/controller"
	"github.com/sharetube/watchsync/internal/metrics"
	chatInmemory "github.com/sharetube/watchsync/internal/repository/chat/inmemory"
	chatRedis "github.com/sharetube/watchsync/internal/repository/chat/redis"
	connInmemory "github.com/sharetube/watchsync/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/watchsync/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/watchsync/internal/repository/room/redis"
	"github.com/sharetube/watchsync/internal/service/auth"
	"github.com/sharetube/watchsync/internal/service/clock"
	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/ctxlogger"
	"github.com/sharetube/watchsync/pkg/keylock"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/sharetube/watchsync/pkg/redisclient"
	"github.com/sharetube/watchsync/pkg/ytvideodata"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	chatHistoryLimit = 200
	// room broadcasts are written under the lock, so it must outlive a slow websocket write
	roomLockTTL = 30 * time.Second
)

type AppConfig struct {
	Secret              string            `json:"-"`
	Host                string            `json:"host"`
	Port                int               `json:"port"`
	LogLevel            string            `json:"log_level"`
	Store               string            `json:"store"`
	RedisHost           string            `json:"redis_host"`
	RedisPort           int               `json:"redis_port"`
	RedisPassword       string            `json:"-"`
	RedisDB             int               `json:"redis_db"`
	MembersLimit        int               `json:"members_limit"`
	PlaylistLimit       int               `json:"playlist_limit"`
	RoomInactivity      time.Duration     `json:"room_inactivity"`
	JanitorInterval     time.Duration     `json:"janitor_interval"`
	SyncMode            protocol.SyncMode `json:"sync_mode"`
	ScheduleLead        time.Duration     `json:"schedule_lead"`
	WSMessagesPerSecond float64           `json:"ws_messages_per_second"`
	WSBurst             int               `json:"ws_burst"`
	WSReadTimeout       time.Duration     `json:"ws_read_timeout"`
	ChatPersistTimeout  time.Duration     `json:"chat_persist_timeout"`
	MetadataLookup      bool              `json:"metadata_lookup"`
	ShutdownGracePeriod time.Duration     `json:"shutdown_grace_period"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	if cfg.MembersLimit < 0 {
		return fmt.Errorf("members limit must not be negative")
	}
	if cfg.PlaylistLimit < 0 {
		return fmt.Errorf("playlist limit must not be negative")
	}
	if cfg.Store != StoreMemory && cfg.Store != StoreRedis {
		return fmt.Errorf("store must be %q or %q", StoreMemory, StoreRedis)
	}
	if cfg.SyncMode != protocol.SyncModeImmediate && cfg.SyncMode != protocol.SyncModeScheduled {
		return fmt.Errorf("sync mode must be %q or %q", protocol.SyncModeImmediate, protocol.SyncModeScheduled)
	}
	if cfg.RoomInactivity < 0 {
		return fmt.Errorf("room inactivity must not be negative")
	}
	if cfg.WSMessagesPerSecond < 0 {
		return fmt.Errorf("ws messages per second must not be negative")
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, err
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type backgroundService interface {
	RunJanitor(ctx context.Context, interval time.Duration)
	Wait()
}

// server is one fully wired instance. Several may share a Redis store.
type server struct {
	handler     http.Handler
	roomService backgroundService
	router      *broadcast.Router
	connRepo    interface{ CloseAll(ctx context.Context) }
	rc          *redis.Client
	cfg         *AppConfig
	logger      *slog.Logger
}

func newServer(ctx context.Context, cfg *AppConfig, clk clockwork.Clock, logger *slog.Logger) (*server, error) {
	collector := metrics.New()
	connRepo := connInmemory.NewRepo(logger)

	roomParams := &room.Params{
		Clock:   clk,
		Metrics: collector,
		Logger:  logger,
		Config: room.Config{
			MembersLimit:       cfg.MembersLimit,
			PlaylistLimit:      cfg.PlaylistLimit,
			RoomInactivity:     cfg.RoomInactivity,
			SyncMode:           cfg.SyncMode,
			ScheduleLead:       cfg.ScheduleLead,
			ChatPersistTimeout: cfg.ChatPersistTimeout,
		},
	}
	if cfg.MetadataLookup {
		roomParams.VideoData = ytvideodata.New()
	}

	s := &server{
		connRepo: connRepo,
		cfg:      cfg,
		logger:   logger,
	}

	switch cfg.Store {
	case StoreRedis:
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		s.rc = rc

		roomParams.RoomRepo = roomRedis.NewRepo(rc, logger)
		roomParams.ChatRepo = chatRedis.NewRepo(rc, chatHistoryLimit, logger)
		roomParams.Locker = keylock.NewRedis(rc, roomLockTTL)

		relay := broadcast.NewRedisRelay(rc, uuid.NewString(), logger)
		s.router = broadcast.NewRouter(connRepo, relay, collector, logger)
	default:
		roomParams.RoomRepo = roomInmemory.NewRepo(clk, logger)
		roomParams.ChatRepo = chatInmemory.NewRepo(chatHistoryLimit)
		roomParams.Locker = keylock.NewLocal()

		s.router = broadcast.NewRouter(connRepo, nil, collector, logger)
	}

	roomParams.Broadcaster = s.router
	roomService := room.NewService(roomParams)
	s.roomService = roomService

	s.handler = controller.NewController(&controller.Params{
		RoomService:    roomService,
		ClockService:   clock.NewService(clk),
		AuthService:    auth.NewService(cfg.Secret, clk),
		ConnRepo:       connRepo,
		Broadcaster:    s.router,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Logger:         logger,
		Config: controller.Config{
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			Burst:             cfg.WSBurst,
			ReadTimeout:       cfg.WSReadTimeout,
		},
	}).GetMux()

	return s, nil
}

// start launches the background loops. They stop when ctx is done.
func (s *server) start(ctx context.Context) error {
	if err := s.router.RunRelay(ctx); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	go s.roomService.RunJanitor(ctx, s.cfg.JanitorInterval)

	return nil
}

// close drops live connections and waits for background writes.
func (s *server) close(ctx context.Context) {
	s.connRepo.CloseAll(ctx)
	s.roomService.Wait()

	if s.rc != nil {
		if err := s.rc.Close(); err != nil {
			s.logger.WarnContext(ctx, "failed to close redis client", "error", err)
		}
	}
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	s, err := newServer(serverCtx, cfg, clockwork.NewRealClock(), logger)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(serverCtx))

	if err := s.start(serverCtx); err != nil {
		return err
	}

	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: s.handler}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sig:
		case <-serverCtx.Done():
		}

		gracePeriod := cfg.ShutdownGracePeriod
		if gracePeriod <= 0 {
			gracePeriod = 30 * time.Second
		}

		shutdownCtx, c := context.WithTimeout(context.WithoutCancel(serverCtx), gracePeriod)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", httpServer.Addr, "store", cfg.Store, "sync_mode", cfg.SyncMode)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-serverCtx.Done()

	return nil
}
