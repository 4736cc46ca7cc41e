package pomodoro

import (
	"context"
	"time"
)

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=pomodoro

// Persisted keys and the wake registration name.
const (
	StateKey    = "pomodoroState"
	SettingsKey = "pomodoroSettings"
	WakeName    = "pomodoro-phase-end"
)

// Store is a durable key-value store that survives process restarts.
// Get returns (nil, nil) for a key that was never written.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Scheduler fires a named wake at or after an absolute instant, at most once
// per registration. Registering a name replaces any pending wake under it.
type Scheduler interface {
	ScheduleWake(ctx context.Context, name string, at time.Time) error
	ClearWake(ctx context.Context, name string) error
}

// Notifier surfaces transition events. It must not block for long; the
// engine ignores its errors.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
