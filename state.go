package pomodoro

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State is the persisted timer snapshot. Times are Unix milliseconds so the
// document is self-describing on disk; EndTimeMs == 0 means "no deadline".
//
// RemainingMs is authoritative only while the timer is not running; EndTimeMs
// only while it is.
type State struct {
	Phase                  Phase      `json:"phase"`
	IsRunning              bool       `json:"isRunning"`
	Status                 Status     `json:"status"`
	StopReason             StopReason `json:"stopReason"`
	RemainingMs            int64      `json:"remainingMs"`
	EndTimeMs              int64      `json:"endTimeMs,omitempty"`
	CompletedFocusSessions int        `json:"completedFocusSessions"`
	LastTransitionAt       int64      `json:"lastTransitionAt"`
}

// HasDeadline reports whether an absolute deadline is recorded.
func (s State) HasDeadline() bool { return s.EndTimeMs != 0 }

// Deadline returns the absolute end of the running phase.
func (s State) Deadline() (time.Time, bool) {
	if !s.HasDeadline() {
		return time.Time{}, false
	}
	return time.UnixMilli(s.EndTimeMs), true
}

// RemainingNow derives the time left at now. While running it is computed from
// the absolute deadline, so it does not matter how long the process was
// suspended between reads.
func RemainingNow(s State, now time.Time) time.Duration {
	if s.IsRunning && s.HasDeadline() {
		return msDuration(max(0, s.EndTimeMs-now.UnixMilli()))
	}
	return msDuration(max(0, s.RemainingMs))
}

// WithLiveRemaining returns a copy whose RemainingMs is the live value at now.
// Responses always carry this form.
func (s State) WithLiveRemaining(now time.Time) State {
	s.RemainingMs = RemainingNow(s, now).Milliseconds()
	return s
}

var (
	errStatusMismatch   = errors.New("status disagrees with isRunning")
	errMissingDeadline  = errors.New("running without deadline")
	errStrayDeadline    = errors.New("deadline set while not running")
	errNegativeRemain   = errors.New("negative remainingMs")
	errSessionsOutRange = errors.New("completedFocusSessions out of range")
)

// Validate checks the snapshot invariants against settings.
func (s State) Validate(settings Settings) error {
	if s.IsRunning != (s.Status == StatusRunning) {
		return fmt.Errorf("%w: isRunning=%v status=%s", errStatusMismatch, s.IsRunning, s.Status)
	}
	if s.IsRunning && !s.HasDeadline() {
		return errMissingDeadline
	}
	if !s.IsRunning && s.HasDeadline() {
		return errStrayDeadline
	}
	if s.RemainingMs < 0 {
		return errNegativeRemain
	}
	if s.CompletedFocusSessions < 0 || s.CompletedFocusSessions > settings.RunIntervals {
		return fmt.Errorf("%w: %d not in [0,%d]", errSessionsOutRange, s.CompletedFocusSessions, settings.RunIntervals)
	}
	return nil
}

// ============================================================================
// Builders
// ============================================================================
// Each transition constructs its result through one of these so the
// invariants are established in a single place.

// buildInitial is the first-boot snapshot: Focus, stopped, full duration.
func buildInitial(settings Settings) State {
	return State{
		Phase:       PhaseFocus,
		Status:      StatusStopped,
		StopReason:  StopInitial,
		RemainingMs: DurationOf(PhaseFocus, settings).Milliseconds(),
	}
}

// buildStopped is an idle Focus snapshot with the given reason and count.
func buildStopped(settings Settings, reason StopReason, now time.Time, sessions int) State {
	s := buildInitial(settings)
	s.StopReason = reason
	s.CompletedFocusSessions = sessions
	s.LastTransitionAt = now.UnixMilli()
	return s
}

// buildRunning starts (or continues) phase with remaining left on the clock.
func buildRunning(base State, phase Phase, sessions int, remaining time.Duration, now time.Time) State {
	base.Phase = phase
	base.IsRunning = true
	base.Status = StatusRunning
	base.StopReason = StopManual
	base.RemainingMs = remaining.Milliseconds()
	base.EndTimeMs = now.Add(remaining).UnixMilli()
	base.CompletedFocusSessions = sessions
	return base
}

// buildPaused freezes base with remaining on the clock.
func buildPaused(base State, remaining time.Duration) State {
	base.IsRunning = false
	base.Status = StatusPaused
	base.StopReason = StopManual
	base.RemainingMs = remaining.Milliseconds()
	base.EndTimeMs = 0
	return base
}

func msDuration(ms int64) time.Duration {
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}
