package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/chat"
)

type repo struct {
	rc           *redis.Client
	historyLimit int
	logger       *slog.Logger
}

func NewRepo(rc *redis.Client, historyLimit int, logger *slog.Logger) *repo {
	return &repo{
		rc:           rc,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

func (r repo) getMessagesKey(roomId string) string {
	return "room:" + roomId + ":messages"
}

func (r repo) SaveMessage(ctx context.Context, msg *chat.Message) error {
	r.logger.DebugContext(ctx, "called", "message_id", msg.Id, "room_id", msg.RoomId)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := r.getMessagesKey(msg.RoomId)
	pipe := r.rc.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.historyLimit > 0 {
		pipe.LTrim(ctx, key, int64(-r.historyLimit), -1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

func (r repo) GetMessages(ctx context.Context, roomId string) ([]chat.Message, error) {
	items, err := r.rc.LRange(ctx, r.getMessagesKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]chat.Message, 0, len(items))
	for _, item := range items {
		var msg chat.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}

		messages = append(messages, msg)
	}

	return messages, nil
}

func (r repo) DeleteMessages(ctx context.Context, roomId string) error {
	if err := r.rc.Del(ctx, r.getMessagesKey(roomId)).Err(); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return nil
}
