package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultSyncInterval = 15 * time.Second
	defaultSyncTimeout  = 5 * time.Second
)

// TimeSource reports the server clock in unix milliseconds.
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

// HTTPTimeSource queries GET /api/time.
type HTTPTimeSource struct {
	httpClient *http.Client
	url        string
}

func NewHTTPTimeSource(baseURL string) *HTTPTimeSource {
	return &HTTPTimeSource{
		httpClient: &http.Client{Timeout: defaultSyncTimeout},
		url:        strings.TrimSuffix(baseURL, "/") + "/api/time",
	}
}

func (s *HTTPTimeSource) ServerTime(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body struct {
		ServerTime int64 `json:"server_time"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return body.ServerTime, nil
}

// OffsetEstimator tracks the difference between the server clock and the local clock
// from single round trips. Every sample replaces the previous one.
type OffsetEstimator struct {
	source   TimeSource
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

func NewOffsetEstimator(source TimeSource, clock clockwork.Clock, logger *slog.Logger) *OffsetEstimator {
	return &OffsetEstimator{
		source:   source,
		clock:    clock,
		interval: DefaultSyncInterval,
		logger:   logger,
	}
}

// Sync takes one sample. The server is assumed to have read its clock halfway through the round trip.
func (e *OffsetEstimator) Sync(ctx context.Context) (time.Duration, error) {
	t0 := e.clock.Now()
	serverTime, err := e.source.ServerTime(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}
	t3 := e.clock.Now()

	rtt := t3.Sub(t0)
	offset := time.UnixMilli(serverTime).Sub(t0.Add(rtt / 2))

	e.mu.Lock()
	e.offset = offset
	e.synced = true
	e.mu.Unlock()

	e.logger.DebugContext(ctx, "clock offset updated", "offset_ms", offset.Milliseconds(), "rtt_ms", rtt.Milliseconds())

	return offset, nil
}

// Run samples immediately and then every 15 seconds until ctx is done.
// A failed sample leaves the previous offset in place.
func (e *OffsetEstimator) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		syncCtx, cancel := context.WithTimeout(ctx, defaultSyncTimeout)
		if _, err := e.Sync(syncCtx); err != nil && ctx.Err() == nil {
			e.logger.WarnContext(ctx, "clock sync failed", "error", err)
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (e *OffsetEstimator) Offset() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.offset
}

// Synced reports whether at least one sample succeeded.
func (e *OffsetEstimator) Synced() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.synced
}

// ToLocal converts a server timestamp in unix milliseconds to local time.
func (e *OffsetEstimator) ToLocal(serverTime int64) time.Time {
	return time.UnixMilli(serverTime).Add(-e.Offset())
}

// ServerNow estimates the current server time in unix milliseconds.
func (e *OffsetEstimator) ServerNow() int64 {
	return e.clock.Now().Add(e.Offset()).UnixMilli()
}
