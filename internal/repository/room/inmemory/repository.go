package inmemory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/internal/repository/room"
	"golang.org/x/exp/slices"
)

type roomRecord struct {
	videoState   room.VideoState
	participants []room.Participant
	playlist     []room.Video
	expireAt     time.Time
}

func (r *roomRecord) isExpired(now time.Time) bool {
	return !r.expireAt.IsZero() && !now.Before(r.expireAt)
}

type repo struct {
	rooms map[string]*roomRecord
	// connection id -> room id
	participantRooms map[string]string
	mu               sync.RWMutex
	clock            clockwork.Clock
	logger           *slog.Logger
}

func NewRepo(clock clockwork.Clock, logger *slog.Logger) *repo {
	return &repo{
		rooms:            make(map[string]*roomRecord),
		participantRooms: make(map[string]string),
		clock:            clock,
		logger:           logger,
	}
}

// getRoom must be called with mu held.
func (r *repo) getRoom(roomId string) (*roomRecord, error) {
	rec, ok := r.rooms[roomId]
	if !ok || rec.isExpired(r.clock.Now()) {
		return nil, room.ErrRoomNotFound
	}

	return rec, nil
}

func (r *repo) CreateRoom(ctx context.Context, roomId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.getRoom(roomId); err == nil {
		return false, nil
	}

	r.deleteRoom(roomId)
	r.rooms[roomId] = &roomRecord{
		participants: []room.Participant{},
		playlist:     []room.Video{},
	}

	return true, nil
}

func (r *repo) IsRoomExists(ctx context.Context, roomId string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, err := r.getRoom(roomId)
	return err == nil, nil
}

func (r *repo) deleteRoom(roomId string) bool {
	rec, ok := r.rooms[roomId]
	if !ok {
		return false
	}

	for _, p := range rec.participants {
		delete(r.participantRooms, p.ConnectionId)
	}
	delete(r.rooms, roomId)

	return true
}

func (r *repo) DeleteRoom(ctx context.Context, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.deleteRoom(roomId) {
		return room.ErrRoomNotFound
	}

	return nil
}

// DeleteExpired removes every room whose expiry has passed and returns their ids.
func (r *repo) DeleteExpired(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var deleted []string
	for roomId, rec := range r.rooms {
		if rec.isExpired(now) {
			r.deleteRoom(roomId)
			deleted = append(deleted, roomId)
		}
	}

	if len(deleted) > 0 {
		r.logger.DebugContext(ctx, "expired rooms deleted", "room_ids", deleted)
	}

	return deleted, nil
}

func (r *repo) ExpireRoom(ctx context.Context, roomId string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(roomId)
	if err != nil {
		return err
	}

	rec.expireAt = r.clock.Now().Add(ttl)
	return nil
}

func (r *repo) PersistRoom(ctx context.Context, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(roomId)
	if err != nil {
		return err
	}

	rec.expireAt = time.Time{}
	return nil
}

func (r *repo) SetVideoState(ctx context.Context, params *room.SetVideoStateParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(params.RoomId)
	if err != nil {
		return err
	}

	rec.videoState = params.VideoState
	return nil
}

func (r *repo) GetVideoState(ctx context.Context, roomId string) (room.VideoState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.getRoom(roomId)
	if err != nil {
		return room.VideoState{}, err
	}

	return rec.videoState, nil
}

func (r *repo) AddParticipant(ctx context.Context, params *room.AddParticipantParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(params.RoomId)
	if err != nil {
		return err
	}

	if _, ok := r.participantRooms[params.Participant.ConnectionId]; ok {
		return room.ErrParticipantAlreadyExists
	}

	rec.participants = append(rec.participants, params.Participant)
	r.participantRooms[params.Participant.ConnectionId] = params.RoomId

	return nil
}

func (r *repo) RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(params.RoomId)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(rec.participants, func(p room.Participant) bool {
		return p.ConnectionId == params.ConnectionId
	})
	if idx == -1 {
		return room.ErrParticipantNotFound
	}

	rec.participants = slices.Delete(rec.participants, idx, idx+1)
	delete(r.participantRooms, params.ConnectionId)

	return nil
}

func (r *repo) GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.getRoom(roomId)
	if err != nil {
		return nil, err
	}

	return slices.Clone(rec.participants), nil
}

func (r *repo) GetParticipantRoomId(ctx context.Context, connectionId string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomId, ok := r.participantRooms[connectionId]
	if !ok {
		return "", room.ErrParticipantNotFound
	}

	if _, err := r.getRoom(roomId); err != nil {
		return "", room.ErrParticipantNotFound
	}

	return roomId, nil
}

func (r *repo) AddVideo(ctx context.Context, params *room.AddVideoParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(params.RoomId)
	if err != nil {
		return err
	}

	if slices.ContainsFunc(rec.playlist, func(v room.Video) bool {
		return v.VideoId == params.Video.VideoId
	}) {
		return room.ErrVideoAlreadyExists
	}

	rec.playlist = append(rec.playlist, params.Video)
	return nil
}

func (r *repo) RemoveVideo(ctx context.Context, params *room.RemoveVideoParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.getRoom(params.RoomId)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(rec.playlist, func(v room.Video) bool {
		return v.VideoId == params.VideoId
	})
	if idx == -1 {
		return room.ErrVideoNotFound
	}

	rec.playlist = slices.Delete(rec.playlist, idx, idx+1)
	return nil
}

func (r *repo) GetPlaylist(ctx context.Context, roomId string) ([]room.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.getRoom(roomId)
	if err != nil {
		return nil, err
	}

	return slices.Clone(rec.playlist), nil
}

// Len counts stored rooms, expired ones not yet deleted included.
func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}
