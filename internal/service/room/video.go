package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type CommandKind string

const (
	CommandPlay    CommandKind = "play"
	CommandPause   CommandKind = "pause"
	CommandSeek    CommandKind = "seek"
	CommandLoadURL CommandKind = "load_url"
)

func (k CommandKind) messageType() string {
	switch k {
	case CommandPlay:
		return protocol.TypeVideoPlay
	case CommandPause:
		return protocol.TypeVideoPause
	case CommandSeek:
		return protocol.TypeVideoSeek
	default:
		return protocol.TypeVideoURLChange
	}
}

type Command struct {
	Kind        CommandKind
	CurrentTime float64
	URL         string
	// ExecuteAt is the server time (unix ms) the sender asked for. Used in scheduled mode only.
	ExecuteAt int64
}

type ApplyVideoCommandParams struct {
	RoomId   string
	SenderId string
	Command  Command
}

type ApplyVideoCommandResponse struct {
	// Applied is false when the room is unknown or the command is meaningless in the current state.
	Applied    bool
	VideoState protocol.VideoState
	Outbound   []Outbound
}

// nextVideoState applies cmd to state. ok is false when the command is ignored.
//
//	Idle    --LoadURL--> Loaded
//	Loaded  --Play-----> Playing
//	Playing --Pause----> Loaded
//	any     --Seek-----> same state, new position
//	any     --LoadURL--> Loaded at 0
func nextVideoState(state room.VideoState, cmd Command, now int64) (room.VideoState, bool) {
	if cmd.Kind == CommandLoadURL {
		return room.VideoState{
			URL:         cmd.URL,
			IsPlaying:   false,
			CurrentTime: 0,
			LastUpdated: now,
		}, true
	}

	// nothing loaded
	if state.URL == "" {
		return state, false
	}

	switch cmd.Kind {
	case CommandPlay:
		state.IsPlaying = true
	case CommandPause:
		state.IsPlaying = false
	case CommandSeek:
	default:
		return state, false
	}

	state.CurrentTime = cmd.CurrentTime
	state.LastUpdated = now

	return state, true
}

// executeAt picks the server time at which recipients run a scheduled command.
func (s *service) executeAt(requested, now int64) int64 {
	if requested > now {
		return requested
	}

	return now + s.cfg.ScheduleLead.Milliseconds()
}

// ApplyVideoCommand mutates the room's video state. Commands for unknown rooms are ignored.
// Concurrent commands are applied in lock order, the last one wins.
func (s *service) ApplyVideoCommand(ctx context.Context, params *ApplyVideoCommandParams) (ApplyVideoCommandResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)
	resp, err := s.applyVideoCommand(ctx, params)
	if err == nil {
		s.metrics.RecordVideoCommand(string(params.Command.Kind), resp.Applied)
	}

	return resp, err
}

func (s *service) applyVideoCommand(ctx context.Context, params *ApplyVideoCommandParams) (ApplyVideoCommandResponse, error) {
	unlock, err := s.lockRoom(ctx, params.RoomId)
	if err != nil {
		return ApplyVideoCommandResponse{}, fmt.Errorf("failed to lock room: %w", err)
	}
	defer unlock()

	current, err := s.roomRepo.GetVideoState(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			s.logger.DebugContext(ctx, "video command for unknown room ignored", "room_id", params.RoomId)
			return ApplyVideoCommandResponse{}, nil
		}

		return ApplyVideoCommandResponse{}, fmt.Errorf("failed to get video state: %w", err)
	}

	now := s.now()
	next, ok := nextVideoState(current, params.Command, now)
	if !ok {
		s.logger.DebugContext(ctx, "video command ignored", "kind", params.Command.Kind, "url", current.URL)
		return ApplyVideoCommandResponse{VideoState: mapVideoState(current)}, nil
	}

	if err := s.roomRepo.SetVideoState(ctx, &room.SetVideoStateParams{
		RoomId:     params.RoomId,
		VideoState: next,
	}); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return ApplyVideoCommandResponse{}, nil
		}

		return ApplyVideoCommandResponse{}, fmt.Errorf("failed to set video state: %w", err)
	}

	participants, err := s.roomRepo.GetParticipants(ctx, params.RoomId)
	if err != nil {
		return ApplyVideoCommandResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	var payload any
	if params.Command.Kind == CommandLoadURL {
		payload = &protocol.VideoURLChangePayload{
			URL:         next.URL,
			LastUpdated: next.LastUpdated,
		}
	} else {
		p := &protocol.VideoCommandPayload{
			CurrentTime: next.CurrentTime,
			LastUpdated: next.LastUpdated,
		}
		if s.cfg.SyncMode == protocol.SyncModeScheduled {
			p.ExecuteAt = s.executeAt(params.Command.ExecuteAt, now)
		}
		payload = p
	}

	resp := ApplyVideoCommandResponse{
		Applied:    true,
		VideoState: mapVideoState(next),
		Outbound: []Outbound{
			toRoomExcept(participants, params.SenderId, params.Command.Kind.messageType(), payload),
		},
	}
	s.deliver(ctx, resp.Outbound)

	return resp, nil
}
