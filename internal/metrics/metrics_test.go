package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	return rec.Body.String()
}

func TestCollector(t *testing.T) {
	c := New()

	c.RecordRoomCreated()
	c.RecordRoomCreated()
	c.RecordParticipantJoined()
	c.RecordParticipantJoined()
	c.RecordParticipantLeft()
	c.RecordVideoCommand("play", true)
	c.RecordVideoCommand("play", false)
	c.RecordDelivered("video_play")
	c.RecordDropped("video_play")
	c.ObserveHandleDuration("video_play", 0.002)

	body := scrape(t, c)
	assert.Contains(t, body, "watchsync_rooms_created_total 2")
	assert.Contains(t, body, "watchsync_participants_connected 1")
	assert.Contains(t, body, `watchsync_video_commands_total{applied="true",kind="play"} 1`)
	assert.Contains(t, body, `watchsync_video_commands_total{applied="false",kind="play"} 1`)
	assert.Contains(t, body, `watchsync_messages_dropped_total{type="video_play"} 1`)
	assert.Contains(t, body, `watchsync_ws_handle_duration_seconds_count{type="video_play"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordClockSync()

	assert.Contains(t, scrape(t, a), "watchsync_clock_sync_requests_total 1")
	assert.Contains(t, scrape(t, b), "watchsync_clock_sync_requests_total 0")
}
