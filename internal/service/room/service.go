package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/internal/broadcast"
	"github.com/sharetube/watchsync/internal/repository/chat"
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/keylock"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/sharetube/watchsync/pkg/ytvideodata"
)

var (
	ErrMembersLimitReached  = errors.New("members limit reached")
	ErrPlaylistLimitReached = errors.New("playlist limit reached")
	ErrAlreadyJoined        = errors.New("connection already joined a room")
)

type iRoomRepo interface {
	CreateRoom(ctx context.Context, roomId string) (bool, error)
	IsRoomExists(ctx context.Context, roomId string) (bool, error)
	DeleteRoom(ctx context.Context, roomId string) error
	ExpireRoom(ctx context.Context, roomId string, ttl time.Duration) error
	PersistRoom(ctx context.Context, roomId string) error
	// video state
	SetVideoState(ctx context.Context, params *room.SetVideoStateParams) error
	GetVideoState(ctx context.Context, roomId string) (room.VideoState, error)
	// participants
	AddParticipant(ctx context.Context, params *room.AddParticipantParams) error
	RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) error
	GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error)
	GetParticipantRoomId(ctx context.Context, connectionId string) (string, error)
	// playlist
	AddVideo(ctx context.Context, params *room.AddVideoParams) error
	RemoveVideo(ctx context.Context, params *room.RemoveVideoParams) error
	GetPlaylist(ctx context.Context, roomId string) ([]room.Video, error)
}

// iExpiredRoomsDeleter is implemented by stores that do not expire rooms on their own.
type iExpiredRoomsDeleter interface {
	DeleteExpired(ctx context.Context) ([]string, error)
}

type iChatRepo interface {
	SaveMessage(ctx context.Context, msg *chat.Message) error
	DeleteMessages(ctx context.Context, roomId string) error
}

type iVideoDataGetter interface {
	Get(ctx context.Context, videoId string) (*ytvideodata.VideoData, error)
}

type iBroadcaster interface {
	Send(ctx context.Context, msg *broadcast.Message) error
}

type iMetrics interface {
	RecordRoomCreated()
	RecordParticipantJoined()
	RecordParticipantLeft()
	RecordVideoCommand(kind string, applied bool)
	RecordChatPersistFailure()
}

type Config struct {
	// 0 means unlimited.
	MembersLimit  int
	PlaylistLimit int
	// How long an empty room survives. 0 deletes it as soon as the last participant leaves.
	RoomInactivity     time.Duration
	SyncMode           protocol.SyncMode
	ScheduleLead       time.Duration
	ChatPersistTimeout time.Duration
	MetadataTimeout    time.Duration
}

type Params struct {
	RoomRepo iRoomRepo
	// Optional, messages are not kept without it.
	ChatRepo iChatRepo
	Locker   keylock.Locker
	Clock    clockwork.Clock
	// Broadcaster delivers outbound messages while the room is still locked.
	// Without it responses only list what would have been sent.
	Broadcaster iBroadcaster
	// VideoData fills in missing playlist item details. Optional.
	VideoData iVideoDataGetter
	// Optional.
	Metrics iMetrics
	Logger  *slog.Logger
	Config  Config
}

type service struct {
	roomRepo  iRoomRepo
	chatRepo  iChatRepo
	locker      keylock.Locker
	clock       clockwork.Clock
	broadcaster iBroadcaster
	videoData   iVideoDataGetter
	metrics     iMetrics
	logger      *slog.Logger
	cfg         Config
	// in-flight chat persistence
	wg sync.WaitGroup
}

func NewService(params *Params) *service {
	cfg := params.Config
	if cfg.SyncMode == "" {
		cfg.SyncMode = protocol.SyncModeImmediate
	}

	if cfg.ScheduleLead <= 0 {
		cfg.ScheduleLead = 3 * time.Second
	}

	if cfg.ChatPersistTimeout <= 0 {
		cfg.ChatPersistTimeout = 5 * time.Second
	}

	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 5 * time.Second
	}

	m := params.Metrics
	if m == nil {
		m = nopMetrics{}
	}

	chatRepo := params.ChatRepo
	if chatRepo == nil {
		chatRepo = nopChatRepo{}
	}

	return &service{
		roomRepo:    params.RoomRepo,
		chatRepo:    chatRepo,
		locker:      params.Locker,
		clock:       params.Clock,
		broadcaster: params.Broadcaster,
		videoData:   params.VideoData,
		metrics:     m,
		logger:      params.Logger,
		cfg:         cfg,
	}
}

func (s *service) SyncMode() protocol.SyncMode {
	return s.cfg.SyncMode
}

// Wait blocks until background chat persistence has finished.
func (s *service) Wait() {
	s.wg.Wait()
}

func (s *service) now() int64 {
	return s.clock.Now().UnixMilli()
}

// lockRoom serializes every mutation of one room. Outbound messages of a mutation are
// delivered before its unlock, so participants see mutations in the order they were applied.
func (s *service) lockRoom(ctx context.Context, roomId string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "room:"+roomId)
	if err != nil {
		return nil, err
	}

	return func() {
		if err := unlock(); err != nil {
			s.logger.WarnContext(ctx, "failed to unlock room", "room_id", roomId, "error", err)
		}
	}, nil
}

// deliver sends every outbound message in order. Delivery errors are logged, not returned.
func (s *service) deliver(ctx context.Context, outbound []Outbound) {
	if s.broadcaster == nil {
		return
	}

	for _, o := range outbound {
		if err := s.broadcaster.Send(ctx, &broadcast.Message{
			Type:       o.Type,
			Payload:    o.Payload,
			Recipients: o.Recipients,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to send", "type", o.Type, "error", err)
		}
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordRoomCreated()              {}
func (nopMetrics) RecordParticipantJoined()        {}
func (nopMetrics) RecordParticipantLeft()          {}
func (nopMetrics) RecordVideoCommand(string, bool) {}
func (nopMetrics) RecordChatPersistFailure()       {}

type nopChatRepo struct{}

func (nopChatRepo) SaveMessage(context.Context, *chat.Message) error { return nil }
func (nopChatRepo) DeleteMessages(context.Context, string) error     { return nil }
