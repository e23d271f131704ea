package controller

import (
	"context"
	"fmt"

	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type EmptyInput struct{}

func (c controller) handleAlive(_ context.Context, _ EmptyInput) error {
	return nil
}

func (c controller) handleClockSync(ctx context.Context, input protocol.ClockSyncRequest) error {
	if c.metrics != nil {
		c.metrics.RecordClockSync()
	}

	return c.reply(ctx, protocol.TypeClockSync, &protocol.ClockSyncPayload{
		ClientTime: input.ClientTime,
		ServerTime: c.clockService.Now(),
	})
}

// handleLeave leaves the room and closes the socket, which ends the read loop.
func (c controller) handleLeave(ctx context.Context, _ EmptyInput) error {
	c.disconnect(ctx, c.getConnectionIdFromCtx(ctx))
	return nil
}

func (c controller) handleSendMessage(ctx context.Context, input protocol.SendMessageRequest) error {
	if err := c.validate.Struct(input); err != nil {
		return err
	}

	if _, err := c.roomService.SendMessage(ctx, &room.SendMessageParams{
		RoomId:       c.getRoomIdFromCtx(ctx),
		ConnectionId: c.getConnectionIdFromCtx(ctx),
		Text:         input.Text,
	}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (c controller) videoCommandHandler(kind room.CommandKind) func(context.Context, protocol.VideoCommandRequest) error {
	return func(ctx context.Context, input protocol.VideoCommandRequest) error {
		if err := c.validate.Struct(input); err != nil {
			return err
		}

		return c.applyVideoCommand(ctx, room.Command{
			Kind:        kind,
			CurrentTime: input.CurrentTime,
			ExecuteAt:   input.ExecuteAt,
		})
	}
}

func (c controller) handleVideoURLChange(ctx context.Context, input protocol.VideoURLChangeRequest) error {
	if err := c.validate.Struct(input); err != nil {
		return err
	}

	return c.applyVideoCommand(ctx, room.Command{
		Kind: room.CommandLoadURL,
		URL:  input.URL,
	})
}

func (c controller) applyVideoCommand(ctx context.Context, cmd room.Command) error {
	if _, err := c.roomService.ApplyVideoCommand(ctx, &room.ApplyVideoCommandParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		SenderId: c.getConnectionIdFromCtx(ctx),
		Command:  cmd,
	}); err != nil {
		return fmt.Errorf("failed to apply video command: %w", err)
	}

	return nil
}

func (c controller) handleGetVideoState(ctx context.Context, _ EmptyInput) error {
	videoState, ok, err := c.roomService.GetVideoState(ctx, c.getRoomIdFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to get video state: %w", err)
	}

	payload := &protocol.VideoStatePayload{}
	if ok {
		payload.VideoState = &videoState
	}

	return c.reply(ctx, protocol.TypeVideoState, payload)
}

func (c controller) handlePlaylistAdd(ctx context.Context, input protocol.VideoItem) error {
	if err := c.validate.Struct(input); err != nil {
		return err
	}

	if _, err := c.roomService.PlaylistAdd(ctx, &room.PlaylistAddParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		SenderId: c.getConnectionIdFromCtx(ctx),
		Video:    input,
	}); err != nil {
		return fmt.Errorf("failed to add video: %w", err)
	}

	return nil
}

func (c controller) handlePlaylistRemove(ctx context.Context, input protocol.PlaylistRemoveRequest) error {
	if err := c.validate.Struct(input); err != nil {
		return err
	}

	if _, err := c.roomService.PlaylistRemove(ctx, &room.PlaylistRemoveParams{
		RoomId:   c.getRoomIdFromCtx(ctx),
		SenderId: c.getConnectionIdFromCtx(ctx),
		VideoId:  input.VideoId,
	}); err != nil {
		return fmt.Errorf("failed to remove video: %w", err)
	}

	return nil
}
