package syncclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.UnixMilli(1_700_000_000_000)

// latencySource simulates a server whose clock is trueOffset ahead, reached after up
// and answered after down.
type latencySource struct {
	clock      *clockwork.FakeClock
	trueOffset time.Duration
	up         time.Duration
	down       time.Duration
}

func (s *latencySource) ServerTime(context.Context) (int64, error) {
	s.clock.Advance(s.up)
	serverTime := s.clock.Now().Add(s.trueOffset).UnixMilli()
	s.clock.Advance(s.down)

	return serverTime, nil
}

func TestOffsetBound(t *testing.T) {
	tests := []struct {
		name       string
		trueOffset time.Duration
		latency    time.Duration
		upShare    float64
	}{
		{name: "no latency", trueOffset: 250 * time.Millisecond},
		{name: "symmetric", trueOffset: -2 * time.Second, latency: 200 * time.Millisecond, upShare: 0.5},
		{name: "symmetric large", trueOffset: 90 * time.Minute, latency: 3 * time.Second, upShare: 0.5},
		{name: "all upstream", trueOffset: time.Second, latency: 400 * time.Millisecond, upShare: 1},
		{name: "all downstream", trueOffset: time.Second, latency: 400 * time.Millisecond, upShare: 0},
		{name: "skewed", trueOffset: -700 * time.Millisecond, latency: 120 * time.Millisecond, upShare: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(start)
			up := time.Duration(float64(tt.latency) * tt.upShare)
			source := &latencySource{
				clock:      clock,
				trueOffset: tt.trueOffset,
				up:         up,
				down:       tt.latency - up,
			}
			e := NewOffsetEstimator(source, clock, slog.Default())

			offset, err := e.Sync(context.Background())
			require.NoError(t, err)

			diff := (offset - tt.trueOffset).Abs()
			assert.LessOrEqual(t, diff, tt.latency/2)
			if tt.upShare == 0.5 || tt.latency == 0 {
				assert.Equal(t, tt.trueOffset, offset)
			}
			assert.True(t, e.Synced())
		})
	}
}

type sequenceSource struct {
	clock   clockwork.Clock
	offsets []time.Duration
	calls   atomic.Int32
}

func (s *sequenceSource) ServerTime(context.Context) (int64, error) {
	i := int(s.calls.Add(1)) - 1
	if i >= len(s.offsets) {
		return 0, errors.New("unreachable")
	}

	return s.clock.Now().Add(s.offsets[i]).UnixMilli(), nil
}

func TestSampleReplacesOffset(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	e := NewOffsetEstimator(&sequenceSource{
		clock:   clock,
		offsets: []time.Duration{time.Second, -3 * time.Second},
	}, clock, slog.Default())

	_, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Second, e.Offset())

	_, err = e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -3*time.Second, e.Offset())

	// a failed sample keeps the last offset
	_, err = e.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, -3*time.Second, e.Offset())
}

func TestConversions(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	e := NewOffsetEstimator(&sequenceSource{
		clock:   clock,
		offsets: []time.Duration{2 * time.Second},
	}, clock, slog.Default())
	assert.False(t, e.Synced())

	_, err := e.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, start.Add(2*time.Second).UnixMilli(), e.ServerNow())

	serverTime := start.Add(5 * time.Second).UnixMilli()
	assert.True(t, e.ToLocal(serverTime).Equal(start.Add(3*time.Second)))
}

func TestRunRefreshes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClockAt(start)
	source := &sequenceSource{
		clock:   clock,
		offsets: []time.Duration{time.Second, 2 * time.Second},
	}
	e := NewOffsetEstimator(source, clock, slog.Default())

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()

	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, e.Offset())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultSyncInterval)

	require.Eventually(t, func() bool { return source.calls.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return e.Offset() == 2*time.Second }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestHTTPTimeSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/time" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"server_time":1700000000123}`))
	}))
	defer server.Close()

	serverTime, err := NewHTTPTimeSource(server.URL+"/").ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), serverTime)

	_, err = NewHTTPTimeSource(server.URL+"/missing").ServerTime(context.Background())
	assert.Error(t, err)
}
