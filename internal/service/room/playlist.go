package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type PlaylistAddParams struct {
	RoomId   string
	SenderId string
	Video    protocol.VideoItem
}

type PlaylistResponse struct {
	// Applied is false for an unknown room, a duplicate add or a missing remove.
	Applied  bool
	Playlist []protocol.VideoItem
	Outbound []Outbound
}

// fillVideoData completes an item the client sent with only its id.
func (s *service) fillVideoData(ctx context.Context, video *protocol.VideoItem) {
	if s.videoData == nil || video.Title != "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.MetadataTimeout)
	defer cancel()

	data, err := s.videoData.Get(ctx, video.VideoId)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get video data", "video_id", video.VideoId, "error", err)
		return
	}

	video.Title = data.Title
	if video.Channel == "" {
		video.Channel = data.AuthorName
	}
	if video.Thumbnail == "" {
		video.Thumbnail = data.ThumbnailURL
	}
}

func (s *service) PlaylistAdd(ctx context.Context, params *PlaylistAddParams) (PlaylistResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)
	video := params.Video
	// outside the room lock, this may hit the network
	s.fillVideoData(ctx, &video)

	unlock, err := s.lockRoom(ctx, params.RoomId)
	if err != nil {
		return PlaylistResponse{}, fmt.Errorf("failed to lock room: %w", err)
	}
	defer unlock()

	playlist, err := s.roomRepo.GetPlaylist(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return PlaylistResponse{}, nil
		}

		return PlaylistResponse{}, fmt.Errorf("failed to get playlist: %w", err)
	}

	for _, v := range playlist {
		if v.VideoId == video.VideoId {
			return PlaylistResponse{Playlist: mapPlaylist(playlist)}, nil
		}
	}

	if s.cfg.PlaylistLimit > 0 && len(playlist) >= s.cfg.PlaylistLimit {
		return PlaylistResponse{}, ErrPlaylistLimitReached
	}

	added := room.Video{
		VideoId:     video.VideoId,
		Title:       video.Title,
		Thumbnail:   video.Thumbnail,
		Channel:     video.Channel,
		Description: video.Description,
		PublishDate: video.PublishDate,
	}
	if err := s.roomRepo.AddVideo(ctx, &room.AddVideoParams{
		RoomId: params.RoomId,
		Video:  added,
	}); err != nil {
		if errors.Is(err, room.ErrVideoAlreadyExists) {
			return PlaylistResponse{Playlist: mapPlaylist(playlist)}, nil
		}

		return PlaylistResponse{}, fmt.Errorf("failed to add video: %w", err)
	}

	return s.playlistUpdated(ctx, params.RoomId, append(playlist, added))
}

type PlaylistRemoveParams struct {
	RoomId   string
	SenderId string
	VideoId  string
}

func (s *service) PlaylistRemove(ctx context.Context, params *PlaylistRemoveParams) (PlaylistResponse, error) {
	s.logger.DebugContext(ctx, "called", "params", params)
	unlock, err := s.lockRoom(ctx, params.RoomId)
	if err != nil {
		return PlaylistResponse{}, fmt.Errorf("failed to lock room: %w", err)
	}
	defer unlock()

	if err := s.roomRepo.RemoveVideo(ctx, &room.RemoveVideoParams{
		RoomId:  params.RoomId,
		VideoId: params.VideoId,
	}); err != nil {
		if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrVideoNotFound) {
			return PlaylistResponse{}, nil
		}

		return PlaylistResponse{}, fmt.Errorf("failed to remove video: %w", err)
	}

	playlist, err := s.roomRepo.GetPlaylist(ctx, params.RoomId)
	if err != nil {
		return PlaylistResponse{}, fmt.Errorf("failed to get playlist: %w", err)
	}

	return s.playlistUpdated(ctx, params.RoomId, playlist)
}

func (s *service) playlistUpdated(ctx context.Context, roomId string, playlist []room.Video) (PlaylistResponse, error) {
	participants, err := s.roomRepo.GetParticipants(ctx, roomId)
	if err != nil {
		return PlaylistResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	items := mapPlaylist(playlist)
	resp := PlaylistResponse{
		Applied:  true,
		Playlist: items,
		Outbound: []Outbound{
			toRoom(participants, protocol.TypePlaylistUpdated, &protocol.PlaylistUpdatedPayload{
				Playlist: items,
			}),
		},
	}
	s.deliver(ctx, resp.Outbound)

	return resp, nil
}
