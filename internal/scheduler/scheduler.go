// Package scheduler coalesces matchmaking triggers per room and guarantees
// that at most one pass per room runs at a time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounce is how long a room waits after its first trigger before
// a pass starts. Triggers inside the window join the same pass.
const DefaultDebounce = 250 * time.Millisecond

// RunFunc runs one pass for a room.
type RunFunc func(ctx context.Context, roomCode string) error

// State is the per-room scheduling state. Idle rooms hold no state at all.
type State int

const (
	Idle State = iota
	Debouncing
	Running
	RunningWithRerun
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case Running:
		return "running"
	case RunningWithRerun:
		return "running_with_rerun"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type roomJob struct {
	mu      sync.Mutex
	state   State
	timer   *time.Timer
	removed bool
}

// Scheduler owns the per-room state machines.
type Scheduler struct {
	run      RunFunc
	debounce time.Duration
	logger   *slog.Logger

	rooms  sync.Map // room code -> *roomJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a Scheduler that calls run for each pass. A non-positive
// debounce uses DefaultDebounce.
func New(run RunFunc, debounce time.Duration) *Scheduler {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:      run,
		debounce: debounce,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Trigger requests a pass for the room. It never blocks on a running pass.
func (s *Scheduler) Trigger(roomCode string) {
	for {
		if s.closed.Load() {
			return
		}
		v, _ := s.rooms.LoadOrStore(roomCode, &roomJob{})
		j := v.(*roomJob)

		j.mu.Lock()
		if j.removed {
			// The room went idle between load and lock; retry with a fresh job.
			j.mu.Unlock()
			continue
		}
		if s.closed.Load() {
			if j.state == Idle {
				s.release(roomCode, j)
			}
			j.mu.Unlock()
			return
		}
		switch j.state {
		case Idle:
			j.state = Debouncing
			s.wg.Add(1)
			j.timer = time.AfterFunc(s.debounce, func() { s.drive(roomCode, j) })
		case Running:
			j.state = RunningWithRerun
		case Debouncing, RunningWithRerun:
			// absorbed
		}
		j.mu.Unlock()
		return
	}
}

// drive runs passes for the room until no rerun is pending, then removes
// the room's state.
func (s *Scheduler) drive(roomCode string, j *roomJob) {
	defer s.wg.Done()

	j.mu.Lock()
	if j.removed || s.closed.Load() {
		s.release(roomCode, j)
		j.mu.Unlock()
		return
	}
	j.state = Running
	j.timer = nil
	j.mu.Unlock()

	for {
		s.runPass(roomCode)

		j.mu.Lock()
		if j.state == RunningWithRerun && !s.closed.Load() {
			j.state = Running
			j.mu.Unlock()
			continue
		}
		s.release(roomCode, j)
		j.mu.Unlock()
		return
	}
}

// release must be called with j.mu held.
func (s *Scheduler) release(roomCode string, j *roomJob) {
	j.state = Idle
	j.removed = true
	s.rooms.CompareAndDelete(roomCode, j)
}

func (s *Scheduler) runPass(roomCode string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("matchmaking pass panicked", "room", roomCode, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := s.run(s.ctx, roomCode); err != nil {
		s.logger.Error("matchmaking pass failed", "room", roomCode, "error", err)
	}
}

// State reports the room's current scheduling state.
func (s *Scheduler) State(roomCode string) State {
	v, ok := s.rooms.Load(roomCode)
	if !ok {
		return Idle
	}
	j := v.(*roomJob)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.removed {
		return Idle
	}
	return j.state
}

// Active reports whether the room has a pending or running pass.
func (s *Scheduler) Active(roomCode string) bool {
	return s.State(roomCode) != Idle
}

// Len returns the number of rooms holding scheduling state.
func (s *Scheduler) Len() int {
	n := 0
	s.rooms.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops accepting triggers, drops pending debounces, cancels running
// passes and waits for them to return or for ctx to expire.
func (s *Scheduler) Close(ctx context.Context) error {
	s.closed.Store(true)
	s.rooms.Range(func(key, v any) bool {
		j := v.(*roomJob)
		j.mu.Lock()
		if j.state == Debouncing && j.timer != nil && j.timer.Stop() {
			s.release(key.(string), j)
			s.wg.Done()
		}
		j.mu.Unlock()
		return true
	})
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for matchmaking passes: %w", ctx.Err())
	}
}
