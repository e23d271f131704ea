package controller

import (
	"context"

	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/sharetube/watchsync/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdWSMw(), c.loggerWSMw(), c.rateLimitWSMw())
	mux.OnError(c.handleWSError)

	// session
	wsrouter.Handle(mux, protocol.TypeAlive, c.handleAlive)
	wsrouter.Handle(mux, protocol.TypeClockSync, c.handleClockSync)
	wsrouter.Handle(mux, protocol.TypeLeave, c.handleLeave)
	wsrouter.Handle(mux, protocol.TypeSendMessage, c.handleSendMessage)

	// video
	wsrouter.Handle(mux, protocol.TypeVideoPlay, c.videoCommandHandler(room.CommandPlay))
	wsrouter.Handle(mux, protocol.TypeVideoPause, c.videoCommandHandler(room.CommandPause))
	wsrouter.Handle(mux, protocol.TypeVideoSeek, c.videoCommandHandler(room.CommandSeek))
	wsrouter.Handle(mux, protocol.TypeVideoURLChange, c.handleVideoURLChange)
	wsrouter.Handle(mux, protocol.TypeGetVideoState, c.handleGetVideoState)

	// playlist
	wsrouter.Handle(mux, protocol.TypePlaylistAdd, c.handlePlaylistAdd)
	wsrouter.Handle(mux, protocol.TypePlaylistRemove, c.handlePlaylistRemove)

	return mux
}

// handleWSError reports the failure to the sender and keeps the connection open.
func (c controller) handleWSError(ctx context.Context, err error) error {
	code := errorCode(err)
	if code == "INTERNAL" {
		c.logger.ErrorContext(ctx, "websocket handler failed", "error", err)
	} else {
		c.logger.InfoContext(ctx, "websocket message rejected", "code", code, "error", err)
	}

	if err := c.reply(ctx, protocol.TypeError, &protocol.ErrorPayload{
		Message: errorMessage(err),
		Code:    code,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to write error", "error", err)
	}

	return nil
}
