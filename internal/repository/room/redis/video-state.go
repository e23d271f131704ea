package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/watchsync/internal/repository/room"
)

func (r repo) getVideoStateKey(roomId string) string {
	return "room:" + roomId + ":video-state"
}

func (r repo) SetVideoState(ctx context.Context, params *room.SetVideoStateParams) error {
	if err := r.checkRoomExists(ctx, params.RoomId); err != nil {
		return err
	}

	if err := r.rc.HSet(ctx, r.getVideoStateKey(params.RoomId), params.VideoState).Err(); err != nil {
		return fmt.Errorf("failed to set video state: %w", err)
	}

	return nil
}

func (r repo) GetVideoState(ctx context.Context, roomId string) (room.VideoState, error) {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return room.VideoState{}, err
	}

	var videoState room.VideoState
	if err := r.rc.HGetAll(ctx, r.getVideoStateKey(roomId)).Scan(&videoState); err != nil {
		return room.VideoState{}, fmt.Errorf("failed to get video state: %w", err)
	}

	return videoState, nil
}
