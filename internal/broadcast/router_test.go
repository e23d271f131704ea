package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchsync/internal/repository/connection/inmemory"
	"github.com/sharetube/watchsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	messages []protocol.RawEnvelope
	err      error
}

func (r *recorder) WriteMessage(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	var env protocol.RawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.messages = append(r.messages, env)

	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		result = append(result, m.Type)
	}

	return result
}

type countingMetrics struct {
	mu        sync.Mutex
	delivered int
	dropped   int
}

func (m *countingMetrics) RecordDelivered(string) {
	m.mu.Lock()
	m.delivered++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordDropped(string) {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func TestSendLocal(t *testing.T) {
	ctx := context.Background()
	conns := inmemory.NewRepo(slog.Default())
	alice, bob, broken := &recorder{}, &recorder{}, &recorder{err: errors.New("closed")}
	require.NoError(t, conns.Add(ctx, "alice", alice))
	require.NoError(t, conns.Add(ctx, "bob", bob))
	require.NoError(t, conns.Add(ctx, "broken", broken))

	metrics := &countingMetrics{}
	r := NewRouter(conns, nil, metrics, slog.Default())

	err := r.Send(ctx, &Message{
		Type:       protocol.TypeVideoPlay,
		Payload:    &protocol.VideoCommandPayload{CurrentTime: 12.5, LastUpdated: 1000},
		Recipients: []string{"broken", "alice", "gone"},
	})
	require.NoError(t, err)

	require.Len(t, alice.messages, 1)
	assert.Equal(t, protocol.TypeVideoPlay, alice.messages[0].Type)
	var payload protocol.VideoCommandPayload
	require.NoError(t, json.Unmarshal(alice.messages[0].Payload, &payload))
	assert.Equal(t, protocol.VideoCommandPayload{CurrentTime: 12.5, LastUpdated: 1000}, payload)

	assert.Empty(t, bob.messages, "only recipients receive the message")
	assert.Equal(t, 1, metrics.delivered)
	assert.Equal(t, 2, metrics.dropped)
}

func TestSendKeepsOrderPerConnection(t *testing.T) {
	ctx := context.Background()
	conns := inmemory.NewRepo(slog.Default())
	alice := &recorder{}
	require.NoError(t, conns.Add(ctx, "alice", alice))
	r := NewRouter(conns, nil, nil, slog.Default())

	sequence := []string{protocol.TypeVideoURLChange, protocol.TypeVideoPlay, protocol.TypeVideoSeek, protocol.TypeVideoPause}
	for _, msgType := range sequence {
		require.NoError(t, r.Send(ctx, &Message{Type: msgType, Recipients: []string{"alice"}}))
	}

	assert.Equal(t, sequence, alice.types())
}

func TestSendRelaysToOtherInstances(t *testing.T) {
	s := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func(id string) (*Router, *countingMetrics, func(string) *recorder) {
		rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { rc.Close() })

		conns := inmemory.NewRepo(slog.Default())
		metrics := &countingMetrics{}
		r := NewRouter(conns, NewRedisRelay(rc, id, slog.Default()), metrics, slog.Default())
		require.NoError(t, r.RunRelay(ctx))

		return r, metrics, func(connectionId string) *recorder {
			rec := &recorder{}
			require.NoError(t, conns.Add(ctx, connectionId, rec))
			return rec
		}
	}

	a, aMetrics, connectA := newInstance("a")
	_, _, connectB := newInstance("b")

	alice := connectA("alice")
	bob := connectB("bob")

	require.NoError(t, a.Send(ctx, &Message{
		Type:       protocol.TypeUsersUpdated,
		Payload:    &protocol.UsersUpdatedPayload{},
		Recipients: []string{"alice", "bob"},
	}))

	assert.Equal(t, []string{protocol.TypeUsersUpdated}, alice.types())
	require.Eventually(t, func() bool {
		return len(bob.types()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.TypeUsersUpdated, bob.types()[0])

	// the publishing instance skips its own frame
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, alice.types(), 1)
	assert.Zero(t, aMetrics.dropped)
}
