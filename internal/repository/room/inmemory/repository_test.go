package inmemory

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/internal/repository/room/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	clocks := make(map[storetest.Store]*clockwork.FakeClock)

	storetest.Run(t, storetest.Harness{
		New: func(t *testing.T) storetest.Store {
			clock := clockwork.NewFakeClock()
			r := NewRepo(clock, slog.Default())
			clocks[r] = clock
			return r
		},
		Advance: func(t *testing.T, s storetest.Store, d time.Duration) {
			clocks[s].Advance(d)
		},
	})
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	r := NewRepo(clock, slog.Default())

	_, err := r.CreateRoom(ctx, "old")
	require.NoError(t, err)
	_, err = r.CreateRoom(ctx, "live")
	require.NoError(t, err)
	require.NoError(t, r.ExpireRoom(ctx, "old", time.Minute))

	deleted, err := r.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	clock.Advance(time.Minute)
	deleted, err = r.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, deleted)

	assert.ErrorIs(t, r.DeleteRoom(ctx, "old"), room.ErrRoomNotFound)
	assert.Len(t, r.rooms, 1)
}
