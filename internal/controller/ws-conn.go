package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchsync/internal/repository/connection"
	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/ctxlogger"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/sharetube/watchsync/pkg/wsrouter"
)

type joinQuery struct {
	RoomId      string `json:"room-id" validate:"required,max=64"`
	DisplayName string `json:"display-name" validate:"required,max=32"`
}

// deadlineConn pushes the read deadline forward before every read.
type deadlineConn struct {
	*websocket.Conn
	timeout time.Duration
}

func (c deadlineConn) ReadJSON(v any) error {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}

	return c.Conn.ReadJSON(v)
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	query := joinQuery{
		RoomId:      chi.URLParam(r, "room-id"),
		DisplayName: r.URL.Query().Get("display-name"),
	}

	var userId string
	if token := r.URL.Query().Get("token"); token != "" && c.authService != nil {
		identity, err := c.authService.ParseToken(token)
		if err != nil {
			c.logger.InfoContext(r.Context(), "invalid token", "error", err)
			c.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
			return
		}

		userId = identity.UserId
		if query.DisplayName == "" {
			query.DisplayName = identity.DisplayName
		}
	}

	if err := c.validate.Struct(query); err != nil {
		c.logger.InfoContext(r.Context(), "invalid join request", "error", err)
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": err})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}
	conn.SetReadLimit(c.cfg.MaxMessageBytes)

	connectionId := uuid.NewString()
	ctx := context.WithValue(r.Context(), roomIdCtxKey, query.RoomId)
	ctx = context.WithValue(ctx, connectionIdCtxKey, connectionId)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", query.RoomId))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", connectionId))

	sender := connection.NewWSConn(conn, c.cfg.WriteTimeout)
	if err := c.connRepo.Add(ctx, connectionId, sender); err != nil {
		c.logger.ErrorContext(ctx, "failed to register connection", "error", err)
		sender.Close()
		return
	}
	defer c.disconnect(context.WithoutCancel(ctx), connectionId)

	joinResp, err := c.roomService.Join(ctx, &room.JoinParams{
		RoomId:       query.RoomId,
		ConnectionId: connectionId,
		DisplayName:  query.DisplayName,
		UserId:       userId,
	})
	if err != nil {
		c.logger.InfoContext(ctx, "failed to join room", "error", err)
		if err := c.reply(ctx, protocol.TypeError, &protocol.ErrorPayload{
			Message: errorMessage(err),
			Code:    errorCode(err),
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to write error", "error", err)
		}
		return
	}

	c.logger.InfoContext(ctx, "joined room", "created", joinResp.Created)

	ctx = context.WithValue(ctx, limiterCtxKey, c.newLimiter())

	var readConn wsrouter.Conn = conn
	if c.cfg.ReadTimeout > 0 {
		readConn = deadlineConn{Conn: conn, timeout: c.cfg.ReadTimeout}
	}

	if err := c.wsmux.ServeConn(ctx, readConn); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.InfoContext(ctx, "connection closed")
		} else {
			c.logger.InfoContext(ctx, "failed to serve conn", "error", err)
		}
	}
}

// disconnect leaves the room and closes the socket. Safe to call after an explicit leave.
func (c controller) disconnect(ctx context.Context, connectionId string) {
	if _, err := c.roomService.Leave(ctx, connectionId); err != nil {
		c.logger.ErrorContext(ctx, "failed to leave room", "error", err)
	}

	sender, err := c.connRepo.Remove(ctx, connectionId)
	if err != nil {
		if !errors.Is(err, connection.ErrNotFound) {
			c.logger.WarnContext(ctx, "failed to remove connection", "error", err)
		}
		return
	}

	if err := sender.Close(); err != nil {
		c.logger.DebugContext(ctx, "failed to close connection", "error", err)
	}
}
