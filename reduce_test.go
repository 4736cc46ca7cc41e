package pomodoro

import (
	"errors"
	"testing"
	"time"
)

func runningFocus(settings Settings, now time.Time, left time.Duration, sessions int) State {
	return buildRunning(buildInitial(settings), PhaseFocus, sessions, left, now)
}

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestReduce_ToggleStartsFromInitial(t *testing.T) {
	settings := DefaultSettings()
	rr := Reduce(buildInitial(settings), settings, Toggle{}, t0)

	s := rr.State
	if !s.IsRunning || s.Status != StatusRunning || s.StopReason != StopManual {
		t.Fatalf("expected running/manual, got %+v", s)
	}
	if want := t0.Add(25 * time.Minute).UnixMilli(); s.EndTimeMs != want {
		t.Fatalf("expected deadline %d, got %d", want, s.EndTimeMs)
	}
	if len(rr.Effects) != 3 {
		t.Fatalf("expected save, clear, schedule; got %v", rr.Effects)
	}
	if _, ok := rr.Effects[0].(EffSaveState); !ok {
		t.Fatalf("expected state to be saved first, got %v", rr.Effects[0])
	}
	if _, ok := rr.Effects[1].(EffClearWake); !ok {
		t.Fatalf("expected wake to be cleared before scheduling, got %v", rr.Effects[1])
	}
	sw, ok := rr.Effects[2].(EffScheduleWake)
	if !ok || !sw.At.Equal(time.UnixMilli(s.EndTimeMs)) {
		t.Fatalf("expected wake at deadline, got %v", rr.Effects[2])
	}
}

func TestReduce_TogglePausesAndResumes(t *testing.T) {
	settings := DefaultSettings()
	s := runningFocus(settings, t0, 10*time.Minute, 1)

	rr := Reduce(s, settings, Toggle{}, t0.Add(4*time.Minute))
	p := rr.State
	if p.IsRunning || p.Status != StatusPaused || p.HasDeadline() {
		t.Fatalf("expected paused without deadline, got %+v", p)
	}
	if p.RemainingMs != (6 * time.Minute).Milliseconds() {
		t.Fatalf("expected 6m frozen, got %d", p.RemainingMs)
	}
	if _, ok := findEffect[EffScheduleWake](rr.Effects); ok {
		t.Fatalf("paused state must not schedule a wake")
	}

	// Resume an hour later: the frozen time is what counts.
	later := t0.Add(time.Hour)
	rr = Reduce(p, settings, Toggle{}, later)
	if !rr.State.IsRunning || rr.State.EndTimeMs != later.Add(6*time.Minute).UnixMilli() {
		t.Fatalf("expected resume with 6m left, got %+v", rr.State)
	}
	if rr.State.CompletedFocusSessions != 1 {
		t.Fatalf("expected session count kept on resume, got %d", rr.State.CompletedFocusSessions)
	}
}

func TestReduce_ToggleResumeUsesMinimumAndFallback(t *testing.T) {
	settings := DefaultSettings()

	tiny := buildPaused(buildInitial(settings), 200*time.Millisecond)
	rr := Reduce(tiny, settings, Toggle{}, t0)
	if rr.State.EndTimeMs != t0.Add(time.Second).UnixMilli() {
		t.Fatalf("expected 1s minimum, got end=%d", rr.State.EndTimeMs)
	}

	empty := buildPaused(buildInitial(settings), 0)
	empty.Phase = PhaseShortBreak
	rr = Reduce(empty, settings, Toggle{}, t0)
	if rr.State.EndTimeMs != t0.Add(5*time.Minute).UnixMilli() {
		t.Fatalf("expected full short break when nothing is left, got end=%d", rr.State.EndTimeMs)
	}
}

func TestReduce_ToggleFromStoppedReseeds(t *testing.T) {
	settings := DefaultSettings()
	done := buildStopped(settings, StopCompleted, t0, 4)
	done.Phase = PhaseLongBreak

	rr := Reduce(done, settings, Toggle{}, t0.Add(time.Minute))
	s := rr.State
	if s.Phase != PhaseFocus || s.CompletedFocusSessions != 0 || !s.IsRunning {
		t.Fatalf("expected a fresh running focus, got %+v", s)
	}
	if s.LastTransitionAt != t0.UnixMilli() {
		t.Fatalf("expected lastTransitionAt preserved, got %d", s.LastTransitionAt)
	}
}

func TestReduce_SkipWhileRunning(t *testing.T) {
	settings := DefaultSettings()
	now := t0.Add(time.Minute)
	rr := Reduce(runningFocus(settings, t0, 25*time.Minute, 0), settings, Skip{}, now)

	s := rr.State
	if s.Phase != PhaseShortBreak || s.CompletedFocusSessions != 1 {
		t.Fatalf("expected short break after 1 session, got %+v", s)
	}
	if !s.IsRunning || s.EndTimeMs != now.Add(5*time.Minute).UnixMilli() {
		t.Fatalf("expected running with fresh deadline, got %+v", s)
	}
	if s.LastTransitionAt != now.UnixMilli() {
		t.Fatalf("expected lastTransitionAt=now, got %d", s.LastTransitionAt)
	}
	if _, ok := findEffect[EffNotify](rr.Effects); ok {
		t.Fatalf("skip must not notify")
	}
}

func TestReduce_SkipWhilePausedKeepsStatus(t *testing.T) {
	settings := DefaultSettings()
	p := buildPaused(buildInitial(settings), 3*time.Minute)
	p.Phase = PhaseLongBreak
	p.CompletedFocusSessions = 2

	rr := Reduce(p, settings, Skip{}, t0)
	s := rr.State
	if s.Phase != PhaseFocus || s.Status != StatusPaused || s.IsRunning || s.HasDeadline() {
		t.Fatalf("expected paused focus, got %+v", s)
	}
	if s.RemainingMs != (25 * time.Minute).Milliseconds() {
		t.Fatalf("expected full focus duration, got %d", s.RemainingMs)
	}
	if s.CompletedFocusSessions != 2 {
		t.Fatalf("expected count unchanged, got %d", s.CompletedFocusSessions)
	}
}

func TestReduce_SkipCompletesRun(t *testing.T) {
	settings := DefaultSettings()
	rr := Reduce(runningFocus(settings, t0, time.Minute, 3), settings, Skip{}, t0)

	s := rr.State
	if s.IsRunning || s.Status != StatusStopped || s.StopReason != StopCompleted || s.CompletedFocusSessions != 4 {
		t.Fatalf("expected completed run, got %+v", s)
	}
	if _, ok := findEffect[EffScheduleWake](rr.Effects); ok {
		t.Fatalf("completed run must not schedule a wake")
	}

	// Skipping again from the terminal state never exceeds runIntervals.
	rr = Reduce(s, settings, Skip{}, t0)
	if rr.State.CompletedFocusSessions != 4 {
		t.Fatalf("expected count capped at 4, got %d", rr.State.CompletedFocusSessions)
	}
	if err := rr.State.Validate(settings); err != nil {
		t.Fatalf("invalid state: %v", err)
	}
}

func TestReduce_ResetAndStop(t *testing.T) {
	settings := DefaultSettings()
	s := runningFocus(settings, t0, time.Minute, 2)

	rr := Reduce(s, settings, Reset{}, t0)
	if rr.State.Status != StatusPaused || rr.State.StopReason != StopManual || rr.State.IsRunning {
		t.Fatalf("expected paused/manual after reset, got %+v", rr.State)
	}
	if rr.State.CompletedFocusSessions != 0 || rr.State.RemainingMs != (25*time.Minute).Milliseconds() {
		t.Fatalf("expected fresh focus after reset, got %+v", rr.State)
	}

	rr = Reduce(s, settings, Stop{}, t0)
	if rr.State.Status != StatusStopped || rr.State.StopReason != StopManual || rr.State.CompletedFocusSessions != 0 {
		t.Fatalf("expected stopped/manual after stop, got %+v", rr.State)
	}
	if rr.State.LastTransitionAt != t0.UnixMilli() {
		t.Fatalf("expected lastTransitionAt=now after stop")
	}
}

func TestReduce_UpdateSettingsReanchorsRunningPhase(t *testing.T) {
	settings := DefaultSettings()
	s := runningFocus(settings, t0, 10*time.Second, 0)
	now := t0.Add(2 * time.Second)

	rr := Reduce(s, settings, UpdateSettings{Settings: map[string]any{"focusMinutes": 50.0}}, now)
	if rr.Settings.FocusMinutes != 50 {
		t.Fatalf("expected new settings returned, got %+v", rr.Settings)
	}
	if got := RemainingNow(rr.State, now); got != 8*time.Second {
		t.Fatalf("expected 8s left after re-anchoring, got %v", got)
	}
	first, ok := rr.Effects[0].(EffSaveSettings)
	if !ok || first.Settings.FocusMinutes != 50 {
		t.Fatalf("expected settings to be saved first, got %v", rr.Effects)
	}
}

func TestReduce_UpdateSettingsIdleRecomputesAndCompletes(t *testing.T) {
	settings := DefaultSettings()
	p := buildPaused(buildInitial(settings), time.Minute)
	p.Phase = PhaseShortBreak
	p.CompletedFocusSessions = 3

	rr := Reduce(p, settings, UpdateSettings{Settings: map[string]any{"shortBreakMinutes": 9.0, "runIntervals": 2.0}}, t0)
	s := rr.State
	if s.RemainingMs != (9 * time.Minute).Milliseconds() {
		t.Fatalf("expected full duration under new settings, got %d", s.RemainingMs)
	}
	if s.CompletedFocusSessions != 2 || s.StopReason != StopCompleted {
		t.Fatalf("expected clamp to 2 and completed, got %+v", s)
	}
	if s.Status != StatusPaused {
		t.Fatalf("expected status untouched, got %s", s.Status)
	}
}

func TestReduce_UnknownCommand(t *testing.T) {
	settings := DefaultSettings()
	rr := Reduce(buildInitial(settings), settings, UnknownCommand{Type: "dance"}, t0)
	if !errors.Is(rr.Err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", rr.Err)
	}
	if len(rr.Effects) != 0 {
		t.Fatalf("expected no effects, got %v", rr.Effects)
	}
}

func TestReconcileOnRevival(t *testing.T) {
	settings := DefaultSettings()

	t.Run("idle clears wake and deadline", func(t *testing.T) {
		rr := ReconcileOnRevival(buildInitial(settings), settings, t0)
		if _, ok := findEffect[EffClearWake](rr.Effects); !ok {
			t.Fatalf("expected wake to be cleared")
		}
		if _, ok := findEffect[EffSaveState](rr.Effects); !ok {
			t.Fatalf("expected state to be persisted")
		}
		if _, first := rr.Effects[0].(EffSaveState); !first {
			t.Fatalf("expected save before wake changes, got %v", rr.Effects)
		}
	})

	t.Run("future deadline reconfirms wake", func(t *testing.T) {
		s := runningFocus(settings, t0, time.Minute, 0)
		rr := ReconcileOnRevival(s, settings, t0.Add(10*time.Second))
		if rr.State != s {
			t.Fatalf("expected state unchanged")
		}
		sw, ok := findEffect[EffScheduleWake](rr.Effects)
		if !ok || sw.At.UnixMilli() != s.EndTimeMs {
			t.Fatalf("expected wake at existing deadline, got %v", rr.Effects)
		}
		if _, ok := findEffect[EffSaveState](rr.Effects); ok {
			t.Fatalf("no write expected for an on-track timer")
		}
	})

	t.Run("missing deadline is repaired", func(t *testing.T) {
		s := runningFocus(settings, t0, time.Minute, 0)
		s.EndTimeMs = 0
		s.RemainingMs = 42_000
		now := t0.Add(time.Hour)
		rr := ReconcileOnRevival(s, settings, now)
		if rr.State.EndTimeMs != now.UnixMilli()+42_000 || rr.State.Status != StatusRunning {
			t.Fatalf("expected deadline now+42s, got %+v", rr.State)
		}
		if err := rr.State.Validate(settings); err != nil {
			t.Fatalf("repaired state invalid: %v", err)
		}
	})

	t.Run("overdue advances exactly one phase", func(t *testing.T) {
		s := runningFocus(settings, t0, time.Minute, 0)
		// Several phases' worth of time have gone by.
		now := t0.Add(3 * time.Hour)
		rr := ReconcileOnRevival(s, settings, now)
		if rr.State.Phase != PhaseShortBreak || rr.State.CompletedFocusSessions != 1 {
			t.Fatalf("expected a single step into short break, got %+v", rr.State)
		}
		if rr.State.EndTimeMs != now.Add(5*time.Minute).UnixMilli() {
			t.Fatalf("expected deadline from now, got %d", rr.State.EndTimeMs)
		}
		n, ok := findEffect[EffNotify](rr.Effects)
		if !ok || n.Notification.Title != "Pomodoro: Short Break" ||
			n.Notification.Message != "Focus session complete. Time for a short break." {
			t.Fatalf("expected phase notification, got %v", rr.Effects)
		}
	})
}

func TestOnWake(t *testing.T) {
	settings := DefaultSettings()
	s := runningFocus(settings, t0, time.Minute, 0)

	if rr := OnWake(s, settings, "something-else", t0.Add(time.Hour)); len(rr.Effects) != 0 {
		t.Fatalf("foreign wake must be ignored, got %v", rr.Effects)
	}
	if rr := OnWake(buildInitial(settings), settings, WakeName, t0); len(rr.Effects) != 0 {
		t.Fatalf("wake on idle timer must be ignored, got %v", rr.Effects)
	}

	rr := OnWake(s, settings, WakeName, t0.Add(30*time.Second))
	if rr.State != s {
		t.Fatalf("early wake must not transition")
	}
	if sw, ok := findEffect[EffScheduleWake](rr.Effects); !ok || sw.At.UnixMilli() != s.EndTimeMs {
		t.Fatalf("early wake must re-arm at the deadline, got %v", rr.Effects)
	}

	rr = OnWake(s, settings, WakeName, t0.Add(time.Minute))
	if rr.State.Phase != PhaseShortBreak {
		t.Fatalf("expected transition at the deadline, got %+v", rr.State)
	}
}

func TestAdvancePhase_Notifications(t *testing.T) {
	settings := DefaultSettings()
	settings.SoundEnabled = false

	br := buildRunning(buildInitial(settings), PhaseLongBreak, 2, time.Minute, t0)
	rr := AdvancePhase(br, settings, t0, true)
	n, ok := findEffect[EffNotify](rr.Effects)
	if !ok {
		t.Fatalf("expected notification")
	}
	if n.Notification.Title != "Pomodoro: Focus" || n.Notification.Message != "Break complete. Back to focus." {
		t.Fatalf("unexpected notification %+v", n.Notification)
	}
	if n.Notification.SoundEnabled {
		t.Fatalf("expected soundEnabled to mirror settings")
	}

	focus := runningFocus(settings, t0, time.Minute, 3)
	rr = AdvancePhase(focus, settings, t0, true)
	n, _ = findEffect[EffNotify](rr.Effects)
	if n.Notification.Kind != NotifyRunCompleted || n.Notification.Title != "Pomodoro complete" {
		t.Fatalf("expected run completed notification, got %+v", n.Notification)
	}

	rr = AdvancePhase(focus, settings, t0, false)
	if _, ok := findEffect[EffNotify](rr.Effects); ok {
		t.Fatalf("expected no notification when disabled")
	}
}
