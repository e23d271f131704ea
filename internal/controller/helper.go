package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sharetube/watchsync/internal/broadcast"
	"github.com/sharetube/watchsync/internal/service/room"
	"github.com/sharetube/watchsync/pkg/validator"
	"github.com/sharetube/watchsync/pkg/wsrouter"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrNotInRoom   = errors.New("connection is not in a room")
)

// generateTimeBasedId returns a sortable id for log correlation.
func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c controller) reply(ctx context.Context, msgType string, payload any) error {
	connectionId := c.getConnectionIdFromCtx(ctx)
	if connectionId == "" {
		return ErrNotInRoom
	}

	return c.broadcaster.Send(ctx, &broadcast.Message{
		Type:       msgType,
		Payload:    payload,
		Recipients: []string{connectionId},
	})
}

func errorCode(err error) string {
	var validationErrors validator.Errors
	switch {
	case errors.As(err, &validationErrors):
		return "VALIDATION_FAILED"
	case errors.Is(err, wsrouter.ErrUnknownMessageType):
		return "UNKNOWN_MESSAGE_TYPE"
	case errors.Is(err, wsrouter.ErrInvalidPayload):
		return "INVALID_PAYLOAD"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, room.ErrPlaylistLimitReached):
		return "PLAYLIST_LIMIT_REACHED"
	case errors.Is(err, room.ErrMembersLimitReached):
		return "MEMBERS_LIMIT_REACHED"
	case errors.Is(err, room.ErrAlreadyJoined):
		return "ALREADY_JOINED"
	default:
		return "INTERNAL"
	}
}

func errorMessage(err error) string {
	if errorCode(err) == "INTERNAL" {
		return "internal error"
	}

	return err.Error()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (c controller) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Info("failed to write response", "error", err)
	}
}
