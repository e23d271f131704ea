// Package syncclient keeps a local playback engine in step with a watchsync room.
package syncclient

// Player is the local playback engine. Positions are in seconds.
type Player interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(position float64) error
	Position() float64
	IsPlaying() bool
}

type Action string

const (
	ActionPlay    Action = "play"
	ActionPause   Action = "pause"
	ActionSeek    Action = "seek"
	ActionLoadURL Action = "load_url"
)
