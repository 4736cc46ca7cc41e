package pomodoro

import (
	"fmt"
	"time"
)

// Phase is the interval type the timer is currently in.
type Phase uint8

const (
	PhaseFocus Phase = iota
	PhaseShortBreak
	PhaseLongBreak
)

var phaseNames = [...]string{
	PhaseFocus:      "focus",
	PhaseShortBreak: "shortBreak",
	PhaseLongBreak:  "longBreak",
}

// Human-readable phase titles used in notifications.
var phaseLabels = [...]string{
	PhaseFocus:      "Focus",
	PhaseShortBreak: "Short Break",
	PhaseLongBreak:  "Long Break",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// Label returns the display title of the phase.
func (p Phase) Label() string {
	if int(p) < len(phaseLabels) {
		return phaseLabels[p]
	}
	return p.String()
}

func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("invalid phase %d", uint8(p))
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	v, ok := ParsePhase(string(b))
	if !ok {
		return fmt.Errorf("unknown phase %q", b)
	}
	*p = v
	return nil
}

// ParsePhase maps a wire label onto a Phase.
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return PhaseFocus, false
}

// Status is the coarse run state; it always agrees with State.IsRunning.
type Status uint8

const (
	StatusStopped Status = iota
	StatusPaused
	StatusRunning
)

var statusNames = [...]string{
	StatusStopped: "stopped",
	StatusPaused:  "paused",
	StatusRunning: "running",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) {
	if int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown status %q", b)
	}
	*s = v
	return nil
}

// ParseStatus maps a wire label onto a Status.
func ParseStatus(s string) (Status, bool) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), true
		}
	}
	return StatusStopped, false
}

// StopReason records why the engine is idle. It is only meaningful while the
// timer is not running.
type StopReason uint8

const (
	StopInitial StopReason = iota
	StopManual
	StopCompleted
)

var stopReasonNames = [...]string{
	StopInitial:   "initial",
	StopManual:    "manual",
	StopCompleted: "completed",
}

func (r StopReason) String() string {
	if int(r) < len(stopReasonNames) {
		return stopReasonNames[r]
	}
	return fmt.Sprintf("StopReason(%d)", uint8(r))
}

func (r StopReason) MarshalText() ([]byte, error) {
	if int(r) >= len(stopReasonNames) {
		return nil, fmt.Errorf("invalid stop reason %d", uint8(r))
	}
	return []byte(stopReasonNames[r]), nil
}

func (r *StopReason) UnmarshalText(b []byte) error {
	v, ok := ParseStopReason(string(b))
	if !ok {
		return fmt.Errorf("unknown stop reason %q", b)
	}
	*r = v
	return nil
}

// ParseStopReason maps a wire label onto a StopReason.
func ParseStopReason(s string) (StopReason, bool) {
	for i, name := range stopReasonNames {
		if name == s {
			return StopReason(i), true
		}
	}
	return StopManual, false
}

// DurationOf returns the full length of phase under settings.
func DurationOf(phase Phase, settings Settings) time.Duration {
	switch phase {
	case PhaseShortBreak:
		return time.Duration(settings.ShortBreakMinutes) * time.Minute
	case PhaseLongBreak:
		return time.Duration(settings.LongBreakMinutes) * time.Minute
	default:
		return time.Duration(settings.FocusMinutes) * time.Minute
	}
}
