package syncclient

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/sharetube/watchsync/pkg/protocol"
)

const DefaultDriftThreshold = 1.0

// Reconciler corrects the local position only when it is further than the threshold
// from the reported one, so small differences do not cause visible jumps.
type Reconciler struct {
	player    Player
	threshold float64
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. A non-positive threshold means DefaultDriftThreshold.
func NewReconciler(player Player, threshold float64, logger *slog.Logger) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}

	return &Reconciler{
		player:    player,
		threshold: threshold,
		logger:    logger,
	}
}

// Reconcile seeks to reported if the drift exceeds the threshold. It reports whether it seeked.
func (r *Reconciler) Reconcile(reported float64) (bool, error) {
	drift := math.Abs(r.player.Position() - reported)
	if drift <= r.threshold {
		return false, nil
	}

	r.logger.Debug("correcting drift", "drift_seconds", drift, "position", reported)
	if err := r.player.Seek(reported); err != nil {
		return false, fmt.Errorf("failed to seek: %w", err)
	}

	return true, nil
}

// Apply handles an immediate-mode command.
func (r *Reconciler) Apply(action Action, currentTime float64, url string) error {
	switch action {
	case ActionPlay:
		if _, err := r.Reconcile(currentTime); err != nil {
			return err
		}
		return r.player.Play()
	case ActionPause:
		if _, err := r.Reconcile(currentTime); err != nil {
			return err
		}
		return r.player.Pause()
	case ActionSeek:
		// an explicit seek always moves
		return r.player.Seek(currentTime)
	case ActionLoadURL:
		return r.player.Load(url)
	default:
		return fmt.Errorf("unknown action: %q", action)
	}
}

// ApplyState brings the player to a full snapshot. position is the snapshot's current time,
// already advanced by the caller if it chooses to account for time since last_updated.
func (r *Reconciler) ApplyState(state protocol.VideoState, position float64, currentURL string) error {
	if state.URL == "" {
		return nil
	}

	if state.URL != currentURL {
		if err := r.player.Load(state.URL); err != nil {
			return fmt.Errorf("failed to load: %w", err)
		}
	}

	if _, err := r.Reconcile(position); err != nil {
		return err
	}

	switch {
	case state.IsPlaying && !r.player.IsPlaying():
		return r.player.Play()
	case !state.IsPlaying && r.player.IsPlaying():
		return r.player.Pause()
	}

	return nil
}
