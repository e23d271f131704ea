package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/sharetube/watchsync/internal/repository/room"
)

func (r repo) CreateRoom(ctx context.Context, roomId string) (bool, error) {
	created, err := r.rc.HSetNX(ctx, r.getRoomKey(roomId), "created", 1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create room: %w", err)
	}

	return created, nil
}

func (r repo) IsRoomExists(ctx context.Context, roomId string) (bool, error) {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		if err == room.ErrRoomNotFound {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (r repo) DeleteRoom(ctx context.Context, roomId string) error {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return err
	}

	connectionIds, err := r.rc.ZRange(ctx, r.getParticipantsKey(roomId), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}

	videoIds, err := r.rc.ZRange(ctx, r.getPlaylistKey(roomId), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to get playlist: %w", err)
	}

	keys := []string{
		r.getRoomKey(roomId),
		r.getVideoStateKey(roomId),
		r.getParticipantsKey(roomId),
		r.getPlaylistKey(roomId),
		r.getRoomKey(roomId) + ":messages",
	}
	for _, connectionId := range connectionIds {
		keys = append(keys, r.getParticipantKey(roomId, connectionId), r.getParticipantRoomKey(connectionId))
	}
	for _, videoId := range videoIds {
		keys = append(keys, r.getVideoKey(roomId, videoId))
	}

	if err := r.rc.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

func (r repo) ExpireRoom(ctx context.Context, roomId string, ttl time.Duration) error {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return err
	}

	if err := expireRoomScript.Run(ctx, r.rc, nil, ttl.Milliseconds(), r.getRoomKey(roomId)).Err(); err != nil {
		return fmt.Errorf("failed to expire room: %w", err)
	}

	return nil
}

func (r repo) PersistRoom(ctx context.Context, roomId string) error {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return err
	}

	if err := expireRoomScript.Run(ctx, r.rc, nil, -1, r.getRoomKey(roomId)).Err(); err != nil {
		return fmt.Errorf("failed to persist room: %w", err)
	}

	return nil
}
