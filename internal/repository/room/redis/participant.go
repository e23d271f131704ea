package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/room"
)

func (r repo) getParticipantsKey(roomId string) string {
	return "room:" + roomId + ":participants"
}

func (r repo) getParticipantKey(roomId, connectionId string) string {
	return "room:" + roomId + ":participant:" + connectionId
}

func (r repo) getParticipantRoomKey(connectionId string) string {
	return "participant:" + connectionId + ":room"
}

func (r repo) AddParticipant(ctx context.Context, params *room.AddParticipantParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	if err := r.checkRoomExists(ctx, params.RoomId); err != nil {
		return err
	}

	p := params.Participant
	added, err := r.addWithIncrement(ctx, &addWithIncrementParams{
		SetKey:     r.getParticipantsKey(params.RoomId),
		HashKey:    r.getParticipantKey(params.RoomId, p.ConnectionId),
		IndexKey:   r.getParticipantRoomKey(p.ConnectionId),
		Member:     p.ConnectionId,
		IndexValue: params.RoomId,
		Fields: []any{
			"display_name", p.DisplayName,
			"user_id", p.UserId,
			"joined_at", p.JoinedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}

	if !added {
		return room.ErrParticipantAlreadyExists
	}

	return nil
}

func (r repo) RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	if err := r.checkRoomExists(ctx, params.RoomId); err != nil {
		return err
	}

	pipe := r.rc.TxPipeline()
	removed := pipe.ZRem(ctx, r.getParticipantsKey(params.RoomId), params.ConnectionId)
	pipe.Del(ctx, r.getParticipantKey(params.RoomId, params.ConnectionId))
	pipe.Del(ctx, r.getParticipantRoomKey(params.ConnectionId))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	if removed.Val() == 0 {
		return room.ErrParticipantNotFound
	}

	return nil
}

func (r repo) GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error) {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return nil, err
	}

	connectionIds, err := r.rc.ZRange(ctx, r.getParticipantsKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participant ids: %w", err)
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(connectionIds))
	for _, connectionId := range connectionIds {
		cmds = append(cmds, pipe.HGetAll(ctx, r.getParticipantKey(roomId, connectionId)))
	}

	if len(cmds) > 0 {
		if err := r.executePipe(ctx, pipe); err != nil {
			return nil, fmt.Errorf("failed to get participants: %w", err)
		}
	}

	participants := make([]room.Participant, 0, len(connectionIds))
	for i, cmd := range cmds {
		var participant room.Participant
		if err := cmd.Scan(&participant); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		participant.ConnectionId = connectionIds[i]
		participants = append(participants, participant)
	}

	return participants, nil
}

func (r repo) GetParticipantRoomId(ctx context.Context, connectionId string) (string, error) {
	roomId, err := r.rc.Get(ctx, r.getParticipantRoomKey(connectionId)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", room.ErrParticipantNotFound
		}

		return "", fmt.Errorf("failed to get participant room id: %w", err)
	}

	return roomId, nil
}
