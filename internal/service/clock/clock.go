// Package clock answers "what time is it" for clients synchronizing their offset.
package clock

import (
	"github.com/jonboulle/clockwork"
)

type service struct {
	clock clockwork.Clock
}

func NewService(clock clockwork.Clock) *service {
	return &service{clock: clock}
}

// Now returns the server wall clock in unix milliseconds. Safe for concurrent use.
func (s service) Now() int64 {
	return s.clock.Now().UnixMilli()
}
