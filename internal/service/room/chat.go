package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/watchsync/internal/repository/chat"
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type SendMessageParams struct {
	RoomId       string
	ConnectionId string
	Text         string
}

type SendMessageResponse struct {
	Sent     bool
	Message  protocol.ChatMessage
	Outbound []Outbound
}

// SendMessage broadcasts a chat message right away. Persisting it happens in the background
// and its failure does not affect delivery.
func (s *service) SendMessage(ctx context.Context, params *SendMessageParams) (SendMessageResponse, error) {
	participants, err := s.roomRepo.GetParticipants(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return SendMessageResponse{}, nil
		}

		return SendMessageResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	var (
		sender room.Participant
		found  bool
	)
	for _, p := range participants {
		if p.ConnectionId == params.ConnectionId {
			sender, found = p, true
			break
		}
	}

	if !found {
		return SendMessageResponse{}, nil
	}

	msg := protocol.ChatMessage{
		Id:           uuid.NewString(),
		RoomId:       params.RoomId,
		ConnectionId: sender.ConnectionId,
		UserId:       sender.UserId,
		DisplayName:  sender.DisplayName,
		Text:         params.Text,
		SentAt:       s.now(),
	}

	s.persistMessage(ctx, &chat.Message{
		Id:           msg.Id,
		RoomId:       msg.RoomId,
		ConnectionId: msg.ConnectionId,
		UserId:       msg.UserId,
		DisplayName:  msg.DisplayName,
		Text:         msg.Text,
		SentAt:       msg.SentAt,
	})

	resp := SendMessageResponse{
		Sent:    true,
		Message: msg,
		Outbound: []Outbound{
			toRoom(participants, protocol.TypeMessage, &msg),
		},
	}
	s.deliver(ctx, resp.Outbound)

	return resp, nil
}

func (s *service) persistMessage(ctx context.Context, msg *chat.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ChatPersistTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		if err := s.chatRepo.SaveMessage(ctx, msg); err != nil {
			s.metrics.RecordChatPersistFailure()
			s.logger.WarnContext(ctx, "failed to persist chat message", "message_id", msg.Id, "error", err)
		}
	}()
}
