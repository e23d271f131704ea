package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Instruction is a command to run at a server time.
type Instruction struct {
	Action      Action
	CurrentTime float64
	URL         string
	// ExecuteAt is the server time in unix milliseconds.
	ExecuteAt int64
}

type iLocalTimeConverter interface {
	ToLocal(serverTime int64) time.Time
}

// Task is a scheduled instruction.
type Task struct {
	instruction Instruction
	localAt     time.Time
	timer       clockwork.Timer
	done        chan struct{}
	once        sync.Once
	executed    bool
	err         error
}

func (t *Task) finish(executed bool, err error) {
	t.once.Do(func() {
		t.executed = executed
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task has run or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Executed reports whether the instruction reached the player. Valid after Done is closed.
func (t *Task) Executed() bool {
	<-t.done
	return t.executed
}

// Err returns the player error, if any. Valid after Done is closed.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Scheduler runs at most one pending instruction. A new instruction supersedes the pending one.
type Scheduler struct {
	clock     clockwork.Clock
	converter iLocalTimeConverter
	player    Player
	logger    *slog.Logger

	mu      sync.Mutex
	pending *Task
}

func NewScheduler(clock clockwork.Clock, converter iLocalTimeConverter, player Player, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		clock:     clock,
		converter: converter,
		player:    player,
		logger:    logger,
	}
}

// Schedule arms ins. An instruction whose time has already passed runs right away.
func (s *Scheduler) Schedule(ins Instruction) *Task {
	localAt := s.converter.ToLocal(ins.ExecuteAt)
	delay := max(localAt.Sub(s.clock.Now()), 0)

	task := &Task{
		instruction: ins,
		localAt:     localAt,
		done:        make(chan struct{}),
	}

	s.mu.Lock()
	s.cancelPendingLocked()
	s.pending = task
	if delay > 0 {
		task.timer = s.clock.AfterFunc(delay, func() { s.fire(task) })
		s.mu.Unlock()
		return task
	}
	s.mu.Unlock()

	s.logger.Debug("instruction arrived late, executing now", "action", ins.Action, "late_ms", -localAt.Sub(s.clock.Now()).Milliseconds())
	s.fire(task)

	return task
}

// Cancel drops task if it has not run yet. It reports whether the task was cancelled.
func (s *Scheduler) Cancel(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != task {
		return false
	}

	s.cancelPendingLocked()
	return true
}

// CancelAll drops the pending instruction, if any.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked()
}

func (s *Scheduler) cancelPendingLocked() {
	if s.pending == nil {
		return
	}

	if s.pending.timer != nil {
		s.pending.timer.Stop()
	}
	s.pending.finish(false, nil)
	s.pending = nil
}

func (s *Scheduler) fire(task *Task) {
	s.mu.Lock()
	if s.pending != task {
		s.mu.Unlock()
		return
	}
	s.pending = nil

	err := s.execute(task)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("failed to execute instruction", "action", task.instruction.Action, "error", err)
	}
	task.finish(true, err)
}

// execute runs under s.mu so a superseding instruction waits for the running one.
func (s *Scheduler) execute(task *Task) error {
	ins := task.instruction
	elapsed := max(s.clock.Since(task.localAt), 0).Seconds()

	switch ins.Action {
	case ActionPlay:
		if err := s.player.Seek(ins.CurrentTime + elapsed); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		return s.player.Play()
	case ActionSeek:
		position := ins.CurrentTime
		if s.player.IsPlaying() {
			position += elapsed
		}
		return s.player.Seek(position)
	case ActionPause:
		if err := s.player.Pause(); err != nil {
			return fmt.Errorf("failed to pause: %w", err)
		}
		return s.player.Seek(ins.CurrentTime)
	case ActionLoadURL:
		return s.player.Load(ins.URL)
	default:
		return fmt.Errorf("unknown action: %q", ins.Action)
	}
}

// Wait blocks until task is done or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
