package pomodoro

import (
	"fmt"
	"time"
)

// This file holds the pure half of the engine:
//
//   - Effects: persistence, wake and notification requests emitted by Reduce
//   - Reduce(): computes the next state plus effects without doing I/O
//
// The Engine loads state, calls Reduce and then executes the effects in the
// order they were emitted. State is always saved before the wake is touched,
// so a failed schedule never loses a committed transition.

// ==============================
// Effects
// ==============================

// Effect is a side effect requested by Reduce.
type Effect interface {
	effectMarker()
	String() string
}

// EffSaveSettings persists the settings document.
type EffSaveSettings struct {
	Settings Settings
}

// EffSaveState persists the state snapshot.
type EffSaveState struct {
	State State
}

// EffClearWake drops any pending wake registration.
type EffClearWake struct{}

// EffScheduleWake registers the phase-end wake at At.
type EffScheduleWake struct {
	At time.Time
}

// EffNotify hands a notification to the notifier.
type EffNotify struct {
	Notification Notification
}

func (EffSaveSettings) effectMarker() {}
func (EffSaveState) effectMarker()    {}
func (EffClearWake) effectMarker()    {}
func (EffScheduleWake) effectMarker() {}
func (EffNotify) effectMarker()       {}

func (e EffSaveSettings) String() string {
	return fmt.Sprintf("EffSaveSettings(focus=%d run=%d)", e.Settings.FocusMinutes, e.Settings.RunIntervals)
}
func (e EffSaveState) String() string {
	return fmt.Sprintf("EffSaveState(phase=%s status=%s)", e.State.Phase, e.State.Status)
}
func (EffClearWake) String() string { return "EffClearWake()" }
func (e EffScheduleWake) String() string {
	return fmt.Sprintf("EffScheduleWake(at=%d)", e.At.UnixMilli())
}
func (e EffNotify) String() string { return fmt.Sprintf("EffNotify(kind=%s)", e.Notification.Kind) }

// ==============================
// Reducer
// ==============================

// ReduceResult is the output of Reduce: next state and settings plus the
// effects that make them durable. Err is set only for requests the engine
// refuses outright (unknown commands); such results carry no effects.
type ReduceResult struct {
	State    State
	Settings Settings
	Effects  []Effect
	Err      error
}

// Reduce is the pure transition function. It must not perform I/O and must not
// read the clock; now is supplied by the caller.
func Reduce(s State, settings Settings, ev Event, now time.Time) ReduceResult {
	switch e := ev.(type) {
	case Revive, GetState:
		return ReconcileOnRevival(s, settings, now)

	case WakeFired:
		return OnWake(s, settings, e.Name, now)

	case Toggle:
		if s.IsRunning {
			paused := buildPaused(s, RemainingNow(s, now))
			return commit(paused, settings)
		}

		base := s
		if s.Status == StatusStopped {
			base = buildInitial(settings)
			base.StopReason = StopManual
			base.LastTransitionAt = s.LastTransitionAt
		}
		remaining := RemainingNow(base, now)
		if remaining == 0 {
			remaining = DurationOf(base.Phase, settings)
		}
		remaining = max(remaining, minResume)
		return commit(buildRunning(base, base.Phase, base.CompletedFocusSessions, remaining, now), settings)

	case Skip:
		t := NextPhase(s, settings)
		if completesRun(s.Phase, t, settings) {
			return commit(completedState(t, settings, now), settings)
		}

		full := DurationOf(t.Phase, settings)
		var next State
		if s.IsRunning {
			next = buildRunning(s, t.Phase, t.CompletedFocusSessions, full, now)
		} else {
			next = s
			next.Phase = t.Phase
			next.CompletedFocusSessions = t.CompletedFocusSessions
			next.StopReason = StopManual
			next.RemainingMs = full.Milliseconds()
			next.EndTimeMs = 0
		}
		next.LastTransitionAt = now.UnixMilli()
		return commit(next, settings)

	case Reset:
		return commit(buildPaused(buildInitial(settings), DurationOf(PhaseFocus, settings)), settings)

	case Stop:
		return commit(buildStopped(settings, StopManual, now, 0), settings)

	case UpdateSettings:
		next := NormalizeSettings(e.Settings)
		existing := renormalize(s, next)

		var st State
		if existing.IsRunning {
			// Time already spent in this phase is kept; only the deadline is
			// re-anchored.
			remaining := RemainingNow(existing, now)
			st = buildRunning(existing, existing.Phase, existing.CompletedFocusSessions, remaining, now)
		} else {
			st = existing
			if st.CompletedFocusSessions >= next.RunIntervals {
				st.StopReason = StopCompleted
			}
			st.RemainingMs = DurationOf(st.Phase, next).Milliseconds()
			st.EndTimeMs = 0
		}

		res := commit(st, next)
		res.Effects = append([]Effect{EffSaveSettings{Settings: next}}, res.Effects...)
		return res

	case UnknownCommand:
		return ReduceResult{State: s, Settings: settings, Err: ErrUnknownCommand}

	default:
		return ReduceResult{State: s, Settings: settings, Err: fmt.Errorf("%w: %T", ErrUnknownCommand, ev)}
	}
}

// minResume is the shortest countdown a resumed timer starts with.
const minResume = time.Second

// AdvancePhase applies exactly one step of the phase automaton at now. It
// either finishes the run or starts the next phase with a fresh deadline.
func AdvancePhase(s State, settings Settings, now time.Time, notify bool) ReduceResult {
	t := NextPhase(s, settings)

	if completesRun(s.Phase, t, settings) {
		res := commit(completedState(t, settings, now), settings)
		if notify {
			res.Effects = append(res.Effects, EffNotify{Notification: runCompletedNotification(settings, now)})
		}
		return res
	}

	next := buildRunning(s, t.Phase, t.CompletedFocusSessions, DurationOf(t.Phase, settings), now)
	next.LastTransitionAt = now.UnixMilli()
	res := commit(next, settings)
	if notify {
		res.Effects = append(res.Effects, EffNotify{Notification: phaseStartedNotification(s.Phase, t.Phase, settings, now)})
	}
	return res
}

// ReconcileOnRevival brings a loaded snapshot in line with the clock. At most
// one transition is applied per call; a process that slept through several
// deadlines catches up one phase per revival.
func ReconcileOnRevival(s State, settings Settings, now time.Time) ReduceResult {
	switch {
	case !s.IsRunning:
		s.EndTimeMs = 0
		return commit(s, settings)

	case s.NeedsDeadlineRepair():
		repaired := buildRunning(s, s.Phase, s.CompletedFocusSessions, RemainingNow(s, now), now)
		repaired.StopReason = s.StopReason
		return commit(repaired, settings)

	case s.EndTimeMs <= now.UnixMilli():
		return AdvancePhase(s, settings, now, true)

	default:
		return ReduceResult{State: s, Settings: settings, Effects: wakeEffects(s)}
	}
}

// OnWake handles an expired wake registration. Stale or foreign wakes are
// ignored, and an early one is re-armed for the recorded deadline.
func OnWake(s State, settings Settings, name string, now time.Time) ReduceResult {
	if name != WakeName || !s.IsRunning || !s.HasDeadline() {
		return ReduceResult{State: s, Settings: settings}
	}
	if s.EndTimeMs > now.UnixMilli() {
		return ReduceResult{State: s, Settings: settings, Effects: wakeEffects(s)}
	}
	return AdvancePhase(s, settings, now, true)
}

// commit persists s and re-registers (or clears) the wake to match it.
func commit(s State, settings Settings) ReduceResult {
	return ReduceResult{
		State:    s,
		Settings: settings,
		Effects:  append([]Effect{EffSaveState{State: s}}, wakeEffects(s)...),
	}
}

// wakeEffects clears the pending wake and re-creates it if s is running.
func wakeEffects(s State) []Effect {
	effs := []Effect{EffClearWake{}}
	if at, ok := s.Deadline(); ok && s.IsRunning {
		effs = append(effs, EffScheduleWake{At: at})
	}
	return effs
}

// completedState is the terminal idle state after the last focus session.
// The count never exceeds RunIntervals, even when skipping from an already
// completed run.
func completedState(t Transition, settings Settings, now time.Time) State {
	return buildStopped(settings, StopCompleted, now, min(t.CompletedFocusSessions, settings.RunIntervals))
}
