package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	fake := clockwork.NewFakeClockAt(start)
	s := NewService(fake)

	assert.Equal(t, int64(1_700_000_000_000), s.Now())

	fake.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1_700_000_001_500), s.Now())
}

func TestNowConcurrent(t *testing.T) {
	s := NewService(clockwork.NewRealClock())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Positive(t, s.Now())
		}()
	}
	wg.Wait()
}
