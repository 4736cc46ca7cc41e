// Package notify delivers engine notifications to people and other programs.
//
// All notifiers are best-effort: the engine logs their errors and moves on.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"pomodoro"
)

// Func adapts a function to pomodoro.Notifier.
type Func func(ctx context.Context, n pomodoro.Notification) error

func (f Func) Notify(ctx context.Context, n pomodoro.Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []pomodoro.Notifier

func (m Multi) Notify(ctx context.Context, n pomodoro.Notification) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, n pomodoro.Notification) error {
	if l.Logger == nil {
		return nil
	}
	l.Logger.Info(n.Title,
		"kind", string(n.Kind),
		"message", n.Message,
		"from", n.From.String(),
		"to", n.To.String(),
	)
	return nil
}
