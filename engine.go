package pomodoro

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Config wires an Engine to its collaborators. Store and Scheduler are
// required; a nil Notifier drops notifications, a nil Logger discards logs and
// a nil Now uses time.Now.
type Config struct {
	Store     Store
	Scheduler Scheduler
	Notifier  Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine runs the reconciliation loop against durable collaborators:
// load, reduce, persist, reschedule, notify.
//
// Each handled event holds the engine mutex for the whole sequence, so a wake
// firing while a command is being processed waits its turn.
type Engine struct {
	mu        sync.Mutex
	store     Store
	scheduler Scheduler
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

var (
	errNoStore     = errors.New("pomodoro: nil store")
	errNoScheduler = errors.New("pomodoro: nil scheduler")
)

// New validates cfg and returns an Engine. It performs no I/O.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errNoStore
	}
	if cfg.Scheduler == nil {
		return nil, errNoScheduler
	}
	e := &Engine{
		store:     cfg.Store,
		scheduler: cfg.Scheduler,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Dispatch runs a user command and returns its wire response. It never
// returns a Go error: failures become {ok:false, error}.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) Response {
	st, settings, err := e.Handle(ctx, cmd)
	if err != nil {
		return errorResponse(err)
	}
	return okResponse(st, settings)
}

// Reconcile is the boot-time revival: it catches up at most one overdue phase
// and makes sure exactly one wake is pending for a running timer.
func (e *Engine) Reconcile(ctx context.Context) error {
	_, _, err := e.Handle(ctx, Revive{})
	return err
}

// HandleWake reacts to the wake scheduler firing name and returns the state
// it left behind.
func (e *Engine) HandleWake(ctx context.Context, name string) (State, Settings, error) {
	return e.Handle(ctx, WakeFired{Name: name})
}

// Handle processes one event end to end and returns the resulting state with
// its remaining time computed live.
func (e *Engine) Handle(ctx context.Context, ev Event) (State, Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	st, settings, err := e.load(ctx)
	if err != nil {
		e.logger.Error("load failed", "event", eventName(ev), "error", err)
		return State{}, Settings{}, err
	}

	res := Reduce(st, settings, ev, now)
	if res.Err != nil {
		return State{}, Settings{}, res.Err
	}

	if err := e.apply(ctx, res.Effects); err != nil {
		return State{}, Settings{}, err
	}

	if res.State.LastTransitionAt != st.LastTransitionAt || res.State.Status != st.Status {
		e.logger.Info("state changed",
			"event", eventName(ev),
			"phase", res.State.Phase.String(),
			"status", res.State.Status.String(),
			"stop_reason", res.State.StopReason.String(),
			"sessions", res.State.CompletedFocusSessions,
		)
	}

	return res.State.WithLiveRemaining(now), res.Settings, nil
}

// Snapshot reads the persisted state without reconciling or writing anything.
func (e *Engine) Snapshot(ctx context.Context) (State, Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, settings, err := e.load(ctx)
	if err != nil {
		return State{}, Settings{}, err
	}
	return st.WithLiveRemaining(e.now()), settings, nil
}

func (e *Engine) load(ctx context.Context) (State, Settings, error) {
	raw, err := e.store.Get(ctx, SettingsKey)
	if err != nil {
		return State{}, Settings{}, wrapOpErr("load", SettingsKey, err)
	}
	settings := DecodeSettings(raw)

	raw, err = e.store.Get(ctx, StateKey)
	if err != nil {
		return State{}, Settings{}, wrapOpErr("load", StateKey, err)
	}
	return DecodeState(raw, settings), settings, nil
}

// apply executes effects in order. Store failures abort immediately, so nothing
// is scheduled for a state that was never committed. A scheduling failure is
// reported after the remaining effects ran: the state is already durable and
// the next revival catches up lazily. Notification failures are only logged.
func (e *Engine) apply(ctx context.Context, effects []Effect) error {
	var scheduleErr error

	for _, eff := range effects {
		switch f := eff.(type) {
		case EffSaveSettings:
			if err := e.put(ctx, SettingsKey, f.Settings); err != nil {
				return err
			}

		case EffSaveState:
			if err := e.put(ctx, StateKey, f.State); err != nil {
				return err
			}

		case EffClearWake:
			if err := e.scheduler.ClearWake(ctx, WakeName); err != nil && scheduleErr == nil {
				e.logger.Warn("clear wake failed", "error", err)
				scheduleErr = wrapOpErr("clear wake", WakeName, err)
			}

		case EffScheduleWake:
			if scheduleErr != nil {
				continue
			}
			if err := e.scheduler.ScheduleWake(ctx, WakeName, f.At); err != nil {
				e.logger.Warn("schedule wake failed", "at", f.At, "error", err)
				scheduleErr = wrapOpErr("schedule wake", WakeName, err)
			}

		case EffNotify:
			if e.notifier == nil {
				continue
			}
			if err := e.notifier.Notify(ctx, f.Notification); err != nil {
				e.logger.Warn("notify failed", "kind", string(f.Notification.Kind), "error", err)
			}

		default:
			e.logger.Warn("unknown effect", "effect", eff.String())
		}
	}
	return scheduleErr
}

func (e *Engine) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return wrapOpErr("encode", key, err)
	}
	if err := e.store.Set(ctx, key, data); err != nil {
		e.logger.Error("store write failed", "key", key, "error", err)
		return wrapOpErr("save", key, err)
	}
	return nil
}

func eventName(ev Event) string {
	switch e := ev.(type) {
	case Command:
		return e.CommandType()
	case Revive:
		return "revive"
	case WakeFired:
		return "wake:" + e.Name
	default:
		return "unknown"
	}
}
