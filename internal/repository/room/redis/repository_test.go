package redis

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/sharetube/watchsync/internal/repository/room/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo(t *testing.T) {
	servers := make(map[storetest.Store]*miniredis.Miniredis)

	storetest.Run(t, storetest.Harness{
		New: func(t *testing.T) storetest.Store {
			s := miniredis.RunT(t)
			rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
			t.Cleanup(func() { rc.Close() })
			r := NewRepo(rc, slog.Default())
			servers[r] = s
			return r
		},
		Advance: func(t *testing.T, store storetest.Store, d time.Duration) {
			servers[store].FastForward(d)
		},
	})
}

func TestExpireRoomCoversAllKeys(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rc.Close()
	r := NewRepo(rc, slog.Default())

	_, err := r.CreateRoom(ctx, "r1")
	require.NoError(t, err)
	require.NoError(t, r.SetVideoState(ctx, &room.SetVideoStateParams{RoomId: "r1", VideoState: room.VideoState{URL: "v"}}))
	require.NoError(t, r.AddVideo(ctx, &room.AddVideoParams{RoomId: "r1", Video: room.Video{VideoId: "v1", Title: "t"}}))

	require.NoError(t, r.ExpireRoom(ctx, "r1", 10*time.Minute))
	for _, key := range []string{"room:r1", "room:r1:video-state", "room:r1:playlist", "room:r1:video:v1"} {
		assert.Equal(t, 10*time.Minute, s.TTL(key), key)
	}

	require.NoError(t, r.PersistRoom(ctx, "r1"))
	for _, key := range s.Keys() {
		assert.Zero(t, s.TTL(key), key)
	}
}
