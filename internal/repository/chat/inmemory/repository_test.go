package inmemory

import (
	"context"
	"testing"

	"github.com/sharetube/watchsync/internal/repository/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoKeepsLastMessages(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(2)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, r.SaveMessage(ctx, &chat.Message{Id: text, RoomId: "r1", Text: text}))
	}
	require.NoError(t, r.SaveMessage(ctx, &chat.Message{Id: "other", RoomId: "r2", Text: "other"}))

	messages, err := r.GetMessages(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Text)
	assert.Equal(t, "three", messages[1].Text)

	require.NoError(t, r.DeleteMessages(ctx, "r1"))
	messages, err = r.GetMessages(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = r.GetMessages(ctx, "r2")
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
