package inmemory

import (
	"context"
	"sync"

	"github.com/sharetube/watchsync/internal/repository/chat"
)

type repo struct {
	messages map[string][]chat.Message
	// per room, 0 keeps everything
	historyLimit int
	mu           sync.RWMutex
}

func NewRepo(historyLimit int) *repo {
	return &repo{
		messages:     make(map[string][]chat.Message),
		historyLimit: historyLimit,
	}
}

func (r *repo) SaveMessage(ctx context.Context, msg *chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := append(r.messages[msg.RoomId], *msg)
	if r.historyLimit > 0 && len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}

	r.messages[msg.RoomId] = history
	return nil
}

func (r *repo) GetMessages(ctx context.Context, roomId string) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.messages[roomId]
	result := make([]chat.Message, len(history))
	copy(result, history)

	return result, nil
}

func (r *repo) DeleteMessages(ctx context.Context, roomId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.messages, roomId)
	return nil
}
