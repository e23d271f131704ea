package syncclient

import (
	"errors"
	"sync"
)

type fakePlayer struct {
	mu       sync.Mutex
	url      string
	playing  bool
	position float64
	calls    []Action
	seeks    []float64
	failSeek bool
}

func (p *fakePlayer) Load(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.url = url
	p.playing = false
	p.position = 0
	p.calls = append(p.calls, ActionLoadURL)
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = true
	p.calls = append(p.calls, ActionPlay)
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = false
	p.calls = append(p.calls, ActionPause)
	return nil
}

func (p *fakePlayer) Seek(position float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failSeek {
		return errors.New("decoder error")
	}

	p.position = position
	p.calls = append(p.calls, ActionSeek)
	p.seeks = append(p.seeks, position)
	return nil
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.position
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playing
}

func (p *fakePlayer) snapshot() (url string, playing bool, position float64, calls []Action) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url, p.playing, p.position, append([]Action(nil), p.calls...)
}
