package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type CreateRoomResponse struct {
	RoomId string
}

// CreateRoom creates an empty room. It is removed after the inactivity window unless someone joins.
func (s *service) CreateRoom(ctx context.Context) (CreateRoomResponse, error) {
	roomId := uuid.NewString()
	created, err := s.roomRepo.CreateRoom(ctx, roomId)
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	if !created {
		return CreateRoomResponse{}, fmt.Errorf("room id collision: %s", roomId)
	}

	if s.cfg.RoomInactivity > 0 {
		if err := s.roomRepo.ExpireRoom(ctx, roomId, s.cfg.RoomInactivity); err != nil {
			return CreateRoomResponse{}, fmt.Errorf("failed to set room expiry: %w", err)
		}
	}

	s.metrics.RecordRoomCreated()
	s.logger.InfoContext(ctx, "room created", "room_id", roomId)

	return CreateRoomResponse{RoomId: roomId}, nil
}

type JoinParams struct {
	RoomId       string
	ConnectionId string
	DisplayName  string
	UserId       string
}

type RoomSnapshot struct {
	RoomId     string
	VideoState protocol.VideoState
	Users      []protocol.Participant
	Playlist   []protocol.VideoItem
}

type JoinResponse struct {
	Snapshot RoomSnapshot
	Created  bool
	Outbound []Outbound
}

// Join attaches the connection to the room, creating the room when absent.
func (s *service) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)
	unlock, err := s.lockRoom(ctx, params.RoomId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to lock room: %w", err)
	}
	defer unlock()

	created, err := s.roomRepo.CreateRoom(ctx, params.RoomId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	if created {
		s.metrics.RecordRoomCreated()
		s.logger.InfoContext(ctx, "room created on join", "room_id", params.RoomId)
	}

	participants, err := s.roomRepo.GetParticipants(ctx, params.RoomId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	if s.cfg.MembersLimit > 0 && len(participants) >= s.cfg.MembersLimit {
		return JoinResponse{}, ErrMembersLimitReached
	}

	if len(participants) == 0 && !created {
		if err := s.roomRepo.PersistRoom(ctx, params.RoomId); err != nil {
			return JoinResponse{}, fmt.Errorf("failed to persist room: %w", err)
		}
	}

	participant := room.Participant{
		ConnectionId: params.ConnectionId,
		DisplayName:  params.DisplayName,
		UserId:       params.UserId,
		JoinedAt:     s.now(),
	}
	if err := s.roomRepo.AddParticipant(ctx, &room.AddParticipantParams{
		RoomId:      params.RoomId,
		Participant: participant,
	}); err != nil {
		if len(participants) == 0 {
			if err := s.retireRoom(ctx, params.RoomId); err != nil {
				s.logger.WarnContext(ctx, "failed to retire room", "room_id", params.RoomId, "error", err)
			}
		}

		if errors.Is(err, room.ErrParticipantAlreadyExists) {
			return JoinResponse{}, ErrAlreadyJoined
		}

		return JoinResponse{}, fmt.Errorf("failed to add participant: %w", err)
	}
	participants = append(participants, participant)

	videoState, err := s.roomRepo.GetVideoState(ctx, params.RoomId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to get video state: %w", err)
	}

	playlist, err := s.roomRepo.GetPlaylist(ctx, params.RoomId)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("failed to get playlist: %w", err)
	}

	s.metrics.RecordParticipantJoined()

	snapshot := RoomSnapshot{
		RoomId:     params.RoomId,
		VideoState: mapVideoState(videoState),
		Users:      mapParticipants(participants),
		Playlist:   mapPlaylist(playlist),
	}

	resp := JoinResponse{
		Snapshot: snapshot,
		Created:  created,
		Outbound: []Outbound{
			toSender(params.ConnectionId, protocol.TypeJoinedRoom, &protocol.JoinedRoomPayload{
				RoomId:       params.RoomId,
				ConnectionId: params.ConnectionId,
				VideoState:   snapshot.VideoState,
				Users:        snapshot.Users,
				Playlist:     snapshot.Playlist,
				ServerTime:   s.now(),
				SyncMode:     s.cfg.SyncMode,
			}),
			toRoom(participants, protocol.TypeUsersUpdated, &protocol.UsersUpdatedPayload{
				Users: snapshot.Users,
			}),
			toRoomExcept(participants, params.ConnectionId, protocol.TypeSystemNotice, &protocol.SystemNoticePayload{
				Text: params.DisplayName + " joined the room",
			}),
		},
	}
	s.deliver(ctx, resp.Outbound)

	return resp, nil
}

type LeaveResponse struct {
	// Left is false when the connection was not in any room.
	Left        bool
	RoomId      string
	RoomEmptied bool
	Outbound    []Outbound
}

// Leave detaches the connection from its room. Calling it again for the same connection is a no-op.
func (s *service) Leave(ctx context.Context, connectionId string) (LeaveResponse, error) {
	s.logger.DebugContext(ctx, "called", "connection_id", connectionId)
	roomId, err := s.roomRepo.GetParticipantRoomId(ctx, connectionId)
	if err != nil {
		if errors.Is(err, room.ErrParticipantNotFound) {
			return LeaveResponse{}, nil
		}

		return LeaveResponse{}, fmt.Errorf("failed to get participant room id: %w", err)
	}

	unlock, err := s.lockRoom(ctx, roomId)
	if err != nil {
		return LeaveResponse{}, fmt.Errorf("failed to lock room: %w", err)
	}
	defer unlock()

	participants, err := s.roomRepo.GetParticipants(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return LeaveResponse{}, nil
		}

		return LeaveResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	var (
		leaving   room.Participant
		remaining = make([]room.Participant, 0, len(participants))
		found     bool
	)
	for _, p := range participants {
		if p.ConnectionId == connectionId {
			leaving, found = p, true
			continue
		}
		remaining = append(remaining, p)
	}

	// lost a race with a concurrent leave for the same connection
	if !found {
		return LeaveResponse{}, nil
	}

	if err := s.roomRepo.RemoveParticipant(ctx, &room.RemoveParticipantParams{
		RoomId:       roomId,
		ConnectionId: connectionId,
	}); err != nil {
		if errors.Is(err, room.ErrParticipantNotFound) {
			return LeaveResponse{}, nil
		}

		return LeaveResponse{}, fmt.Errorf("failed to remove participant: %w", err)
	}

	s.metrics.RecordParticipantLeft()

	if len(remaining) == 0 {
		if err := s.retireRoom(ctx, roomId); err != nil {
			return LeaveResponse{}, err
		}

		return LeaveResponse{
			Left:        true,
			RoomId:      roomId,
			RoomEmptied: true,
		}, nil
	}

	resp := LeaveResponse{
		Left:   true,
		RoomId: roomId,
		Outbound: []Outbound{
			toRoom(remaining, protocol.TypeUsersUpdated, &protocol.UsersUpdatedPayload{
				Users: mapParticipants(remaining),
			}),
			toRoom(remaining, protocol.TypeSystemNotice, &protocol.SystemNoticePayload{
				Text: leaving.DisplayName + " left the room",
			}),
		},
	}
	s.deliver(ctx, resp.Outbound)

	return resp, nil
}

// retireRoom starts the inactivity countdown of an empty room, or deletes it when there is none.
func (s *service) retireRoom(ctx context.Context, roomId string) error {
	if s.cfg.RoomInactivity > 0 {
		if err := s.roomRepo.ExpireRoom(ctx, roomId, s.cfg.RoomInactivity); err != nil {
			return fmt.Errorf("failed to set room expiry: %w", err)
		}

		s.logger.InfoContext(ctx, "room is empty", "room_id", roomId, "expires_in", s.cfg.RoomInactivity)
		return nil
	}

	if err := s.roomRepo.DeleteRoom(ctx, roomId); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if err := s.chatRepo.DeleteMessages(ctx, roomId); err != nil {
		s.logger.WarnContext(ctx, "failed to delete chat history", "room_id", roomId, "error", err)
	}

	s.logger.InfoContext(ctx, "room deleted", "room_id", roomId)
	return nil
}

// GetVideoState returns the stored state as is, without extrapolating playback time.
// ok is false for an unknown room.
func (s *service) GetVideoState(ctx context.Context, roomId string) (state protocol.VideoState, ok bool, err error) {
	videoState, err := s.roomRepo.GetVideoState(ctx, roomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return protocol.VideoState{}, false, nil
		}

		return protocol.VideoState{}, false, fmt.Errorf("failed to get video state: %w", err)
	}

	return mapVideoState(videoState), true, nil
}

// RunJanitor periodically deletes rooms whose inactivity window has passed. It returns when ctx is done.
// Stores that expire rooms on their own make it a no-op.
func (s *service) RunJanitor(ctx context.Context, interval time.Duration) {
	deleter, ok := s.roomRepo.(iExpiredRoomsDeleter)
	if !ok || interval <= 0 {
		return
	}

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.deleteExpiredRooms(ctx, deleter)
		}
	}
}

func (s *service) deleteExpiredRooms(ctx context.Context, deleter iExpiredRoomsDeleter) {
	roomIds, err := deleter.DeleteExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete expired rooms", "error", err)
		return
	}

	for _, roomId := range roomIds {
		if err := s.chatRepo.DeleteMessages(ctx, roomId); err != nil {
			s.logger.WarnContext(ctx, "failed to delete chat history", "room_id", roomId, "error", err)
		}
	}

	if len(roomIds) > 0 {
		s.logger.InfoContext(ctx, "expired rooms deleted", "count", len(roomIds))
	}
}
