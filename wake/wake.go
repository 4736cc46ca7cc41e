// Package wake implements an in-process wake scheduler.
//
// Each name holds at most one pending registration; scheduling a name again
// replaces it. A registration fires once, at or after its instant, by calling
// the Fire callback from the Run goroutine.
//
// Timers in Go run on the monotonic clock, which on most systems stops while
// the machine is suspended. Run therefore never sleeps longer than
// CheckInterval and compares deadlines against the wall clock, so a wake
// whose instant passed during a suspend fires shortly after resume.
package wake

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckInterval bounds how late a wake can fire after a suspend.
const DefaultCheckInterval = 15 * time.Second

// Options configures a Scheduler.
type Options struct {
	CheckInterval time.Duration
	// Now overrides the wall clock in tests.
	Now func() time.Time
}

// Scheduler keeps named one-shot wakes.
type Scheduler struct {
	fire          func(name string)
	checkInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time
	changed chan struct{}
}

// New returns a Scheduler that calls fire for every expired registration.
// Nothing fires until Run is started.
func New(fire func(name string), opts Options) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		fire:          fire,
		checkInterval: opts.CheckInterval,
		now:           opts.Now,
		pending:       make(map[string]time.Time),
		changed:       make(chan struct{}, 1),
	}
}

// ScheduleWake registers name to fire at at, replacing any pending wake
// under the same name.
func (s *Scheduler) ScheduleWake(_ context.Context, name string, at time.Time) error {
	s.mu.Lock()
	s.pending[name] = at.Round(0)
	s.mu.Unlock()
	s.poke()
	return nil
}

// ClearWake drops the pending wake for name, if any.
func (s *Scheduler) ClearWake(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.pending, name)
	s.mu.Unlock()
	s.poke()
	return nil
}

// Pending reports the instant name is registered for.
func (s *Scheduler) Pending(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.pending[name]
	return at, ok
}

func (s *Scheduler) poke() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Run fires expired wakes until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.checkInterval)
	defer timer.Stop()

	for {
		for _, name := range s.takeDue() {
			if s.fire != nil {
				s.fire(name)
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.nextWait())

		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
		case <-timer.C:
		}
	}
}

// takeDue removes and returns every registration whose instant has passed.
func (s *Scheduler) takeDue() []string {
	now := s.now().Round(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for name, at := range s.pending {
		if !at.After(now) {
			due = append(due, name)
			delete(s.pending, name)
		}
	}
	return due
}

func (s *Scheduler) nextWait() time.Duration {
	now := s.now().Round(0)

	s.mu.Lock()
	defer s.mu.Unlock()

	wait := s.checkInterval
	for _, at := range s.pending {
		if d := at.Sub(now); d < wait {
			wait = d
		}
	}
	return max(wait, 0)
}
