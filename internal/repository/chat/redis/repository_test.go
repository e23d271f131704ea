package redis

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rc.Close()
	r := NewRepo(rc, 2, slog.Default())

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, r.SaveMessage(ctx, &chat.Message{
			Id:          text,
			RoomId:      "r1",
			DisplayName: "alice",
			Text:        text,
			SentAt:      int64(i),
		}))
	}

	messages, err := r.GetMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []chat.Message{
		{Id: "two", RoomId: "r1", DisplayName: "alice", Text: "two", SentAt: 1},
		{Id: "three", RoomId: "r1", DisplayName: "alice", Text: "three", SentAt: 2},
	}, messages)

	require.NoError(t, r.DeleteMessages(ctx, "r1"))
	assert.False(t, s.Exists("room:r1:messages"))
}
