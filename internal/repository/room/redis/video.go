package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/room"
)

func (r repo) getPlaylistKey(roomId string) string {
	return "room:" + roomId + ":playlist"
}

func (r repo) getVideoKey(roomId, videoId string) string {
	return "room:" + roomId + ":video:" + videoId
}

func (r repo) AddVideo(ctx context.Context, params *room.AddVideoParams) error {
	if err := r.checkRoomExists(ctx, params.RoomId); err != nil {
		return err
	}

	v := params.Video
	added, err := r.addWithIncrement(ctx, &addWithIncrementParams{
		SetKey:  r.getPlaylistKey(params.RoomId),
		HashKey: r.getVideoKey(params.RoomId, v.VideoId),
		Member:  v.VideoId,
		Fields: []any{
			"title", v.Title,
			"thumbnail", v.Thumbnail,
			"channel", v.Channel,
			"description", v.Description,
			"publish_date", v.PublishDate,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add video: %w", err)
	}

	if !added {
		return room.ErrVideoAlreadyExists
	}

	return nil
}

func (r repo) RemoveVideo(ctx context.Context, params *room.RemoveVideoParams) error {
	if err := r.checkRoomExists(ctx, params.RoomId); err != nil {
		return err
	}

	res, err := r.rc.ZRem(ctx, r.getPlaylistKey(params.RoomId), params.VideoId).Result()
	if err != nil {
		return fmt.Errorf("failed to remove video from playlist: %w", err)
	}

	if res == 0 {
		return room.ErrVideoNotFound
	}

	if err := r.rc.Del(ctx, r.getVideoKey(params.RoomId, params.VideoId)).Err(); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}

	return nil
}

func (r repo) GetPlaylist(ctx context.Context, roomId string) ([]room.Video, error) {
	if err := r.checkRoomExists(ctx, roomId); err != nil {
		return nil, err
	}

	videoIds, err := r.rc.ZRange(ctx, r.getPlaylistKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get video ids: %w", err)
	}

	pipe := r.rc.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(videoIds))
	for _, videoId := range videoIds {
		cmds = append(cmds, pipe.HGetAll(ctx, r.getVideoKey(roomId, videoId)))
	}

	if len(cmds) > 0 {
		if err := r.executePipe(ctx, pipe); err != nil {
			return nil, fmt.Errorf("failed to get videos: %w", err)
		}
	}

	videos := make([]room.Video, 0, len(videoIds))
	for i, cmd := range cmds {
		var video room.Video
		if err := cmd.Scan(&video); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}

		video.VideoId = videoIds[i]
		videos = append(videos, video)
	}

	return videos, nil
}
