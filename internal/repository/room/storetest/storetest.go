// Package storetest checks that a room store implementation behaves like the others.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/sharetube/watchsync/internal/repository/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Store interface {
	CreateRoom(ctx context.Context, roomId string) (bool, error)
	IsRoomExists(ctx context.Context, roomId string) (bool, error)
	DeleteRoom(ctx context.Context, roomId string) error
	ExpireRoom(ctx context.Context, roomId string, ttl time.Duration) error
	PersistRoom(ctx context.Context, roomId string) error
	SetVideoState(ctx context.Context, params *room.SetVideoStateParams) error
	GetVideoState(ctx context.Context, roomId string) (room.VideoState, error)
	AddParticipant(ctx context.Context, params *room.AddParticipantParams) error
	RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) error
	GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error)
	GetParticipantRoomId(ctx context.Context, connectionId string) (string, error)
	AddVideo(ctx context.Context, params *room.AddVideoParams) error
	RemoveVideo(ctx context.Context, params *room.RemoveVideoParams) error
	GetPlaylist(ctx context.Context, roomId string) ([]room.Video, error)
}

type Harness struct {
	New func(t *testing.T) Store
	// Advance moves the store's notion of time forward and applies expiry.
	Advance func(t *testing.T, store Store, d time.Duration)
}

func Run(t *testing.T, h Harness) {
	t.Run("RoomLifecycle", func(t *testing.T) { testRoomLifecycle(t, h) })
	t.Run("VideoState", func(t *testing.T) { testVideoState(t, h) })
	t.Run("Participants", func(t *testing.T) { testParticipants(t, h) })
	t.Run("Playlist", func(t *testing.T) { testPlaylist(t, h) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, h) })
	t.Run("UnknownRoom", func(t *testing.T) { testUnknownRoom(t, h) })
}

func testRoomLifecycle(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)

	created, err := s.CreateRoom(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateRoom(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, created, "second create must report existing room")

	exists, err := s.IsRoomExists(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.AddParticipant(ctx, &room.AddParticipantParams{
		RoomId:      "r1",
		Participant: room.Participant{ConnectionId: "c1", DisplayName: "alice"},
	}))

	require.NoError(t, s.DeleteRoom(ctx, "r1"))
	exists, err = s.IsRoomExists(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.GetParticipantRoomId(ctx, "c1")
	assert.ErrorIs(t, err, room.ErrParticipantNotFound, "participant index must be dropped with the room")

	assert.ErrorIs(t, s.DeleteRoom(ctx, "r1"), room.ErrRoomNotFound)
}

func testVideoState(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)
	_, err := s.CreateRoom(ctx, "r1")
	require.NoError(t, err)

	state, err := s.GetVideoState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, room.VideoState{}, state, "new room starts idle")

	want := room.VideoState{URL: "v1", IsPlaying: true, CurrentTime: 42.5, LastUpdated: 1700000000123}
	require.NoError(t, s.SetVideoState(ctx, &room.SetVideoStateParams{RoomId: "r1", VideoState: want}))

	state, err = s.GetVideoState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, want, state)
}

func testParticipants(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)
	_, err := s.CreateRoom(ctx, "r1")
	require.NoError(t, err)

	for i, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.AddParticipant(ctx, &room.AddParticipantParams{
			RoomId: "r1",
			Participant: room.Participant{
				ConnectionId: "c" + string(rune('1'+i)),
				DisplayName:  name,
				UserId:       "u-" + name,
				JoinedAt:     int64(i),
			},
		}))
	}

	err = s.AddParticipant(ctx, &room.AddParticipantParams{
		RoomId:      "r1",
		Participant: room.Participant{ConnectionId: "c2", DisplayName: "dup"},
	})
	assert.ErrorIs(t, err, room.ErrParticipantAlreadyExists)

	participants, err := s.GetParticipants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, names(participants), "join order must be kept")
	assert.Equal(t, room.Participant{ConnectionId: "c2", DisplayName: "bob", UserId: "u-bob", JoinedAt: 1}, participants[1])

	roomId, err := s.GetParticipantRoomId(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, "r1", roomId)

	require.NoError(t, s.RemoveParticipant(ctx, &room.RemoveParticipantParams{RoomId: "r1", ConnectionId: "c2"}))
	assert.ErrorIs(t,
		s.RemoveParticipant(ctx, &room.RemoveParticipantParams{RoomId: "r1", ConnectionId: "c2"}),
		room.ErrParticipantNotFound,
	)

	participants, err = s.GetParticipants(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, names(participants))

	_, err = s.GetParticipantRoomId(ctx, "c2")
	assert.ErrorIs(t, err, room.ErrParticipantNotFound)

	// a connection belongs to at most one room
	_, err = s.CreateRoom(ctx, "r2")
	require.NoError(t, err)
	err = s.AddParticipant(ctx, &room.AddParticipantParams{
		RoomId:      "r2",
		Participant: room.Participant{ConnectionId: "c1", DisplayName: "alice"},
	})
	assert.ErrorIs(t, err, room.ErrParticipantAlreadyExists)
}

func testPlaylist(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)
	_, err := s.CreateRoom(ctx, "r1")
	require.NoError(t, err)

	v1 := room.Video{VideoId: "v1", Title: "One", Thumbnail: "t1", Channel: "ch", Description: "d", PublishDate: "2024-01-01"}
	v2 := room.Video{VideoId: "v2", Title: "Two"}
	require.NoError(t, s.AddVideo(ctx, &room.AddVideoParams{RoomId: "r1", Video: v1}))
	require.NoError(t, s.AddVideo(ctx, &room.AddVideoParams{RoomId: "r1", Video: v2}))
	assert.ErrorIs(t,
		s.AddVideo(ctx, &room.AddVideoParams{RoomId: "r1", Video: room.Video{VideoId: "v1", Title: "Other"}}),
		room.ErrVideoAlreadyExists,
	)

	playlist, err := s.GetPlaylist(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []room.Video{v1, v2}, playlist)

	require.NoError(t, s.RemoveVideo(ctx, &room.RemoveVideoParams{RoomId: "r1", VideoId: "v1"}))
	assert.ErrorIs(t, s.RemoveVideo(ctx, &room.RemoveVideoParams{RoomId: "r1", VideoId: "v1"}), room.ErrVideoNotFound)

	playlist, err = s.GetPlaylist(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []room.Video{v2}, playlist)

	// removed video can be added again at the end
	require.NoError(t, s.AddVideo(ctx, &room.AddVideoParams{RoomId: "r1", Video: v1}))
	playlist, err = s.GetPlaylist(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []room.Video{v2, v1}, playlist)
}

func testExpiry(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)
	for _, id := range []string{"expiring", "persisted"} {
		_, err := s.CreateRoom(ctx, id)
		require.NoError(t, err)
		require.NoError(t, s.AddVideo(ctx, &room.AddVideoParams{RoomId: id, Video: room.Video{VideoId: "v1"}}))
		require.NoError(t, s.ExpireRoom(ctx, id, time.Minute))
	}
	require.NoError(t, s.PersistRoom(ctx, "persisted"))

	h.Advance(t, s, 30*time.Second)
	exists, err := s.IsRoomExists(ctx, "expiring")
	require.NoError(t, err)
	assert.True(t, exists, "room must survive until the ttl passes")

	h.Advance(t, s, 31*time.Second)
	exists, err = s.IsRoomExists(ctx, "expiring")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.IsRoomExists(ctx, "persisted")
	require.NoError(t, err)
	assert.True(t, exists)
	playlist, err := s.GetPlaylist(ctx, "persisted")
	require.NoError(t, err)
	assert.Len(t, playlist, 1)

	// an expired room can be created again from scratch
	created, err := s.CreateRoom(ctx, "expiring")
	require.NoError(t, err)
	assert.True(t, created)
	playlist, err = s.GetPlaylist(ctx, "expiring")
	require.NoError(t, err)
	assert.Empty(t, playlist)
}

func testUnknownRoom(t *testing.T, h Harness) {
	ctx := context.Background()
	s := h.New(t)

	_, err := s.GetVideoState(ctx, "nope")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.ErrorIs(t, s.SetVideoState(ctx, &room.SetVideoStateParams{RoomId: "nope"}), room.ErrRoomNotFound)
	assert.ErrorIs(t, s.AddVideo(ctx, &room.AddVideoParams{RoomId: "nope", Video: room.Video{VideoId: "v"}}), room.ErrRoomNotFound)
	assert.ErrorIs(t, s.AddParticipant(ctx, &room.AddParticipantParams{
		RoomId:      "nope",
		Participant: room.Participant{ConnectionId: "c"},
	}), room.ErrRoomNotFound)
	_, err = s.GetParticipants(ctx, "nope")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
	assert.ErrorIs(t, s.ExpireRoom(ctx, "nope", time.Second), room.ErrRoomNotFound)

	exists, err := s.IsRoomExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists, "failed writes must not create the room")
}

func names(participants []room.Participant) []string {
	result := make([]string, 0, len(participants))
	for _, p := range participants {
		result = append(result, p.DisplayName)
	}
	return result
}
