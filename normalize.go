package pomodoro

import (
	"math"
	"time"
)

// NormalizeState repairs a decoded snapshot (possibly partial, stale or
// hand-edited) into a State under settings. A nil map, which is what
// decodeObject yields for a missing or non-object document, produces the
// first-boot state. It never fails.
//
// The one shape it leaves for reconciliation to repair is a running snapshot
// without a deadline: the fix depends on the current instant, which the
// normalizer does not have. See State.NeedsDeadlineRepair.
func NormalizeState(raw map[string]any, settings Settings) State {
	if raw == nil {
		return buildInitial(settings)
	}

	phase := PhaseFocus
	if label, ok := raw["phase"].(string); ok {
		if p, ok := ParsePhase(label); ok {
			phase = p
		}
	}

	remaining := DurationOf(phase, settings).Milliseconds()
	if n, ok := number(raw["remainingMs"]); ok && n > 0 && n <= maxRemainingMs {
		remaining = int64(math.Ceil(n))
	}

	running := truthy(raw["isRunning"])

	status := StatusPaused
	if running {
		status = StatusRunning
	}
	if label, ok := raw["status"].(string); ok {
		if st, ok := ParseStatus(label); ok && (st == StatusRunning) == running {
			status = st
		}
	}

	reason := StopManual
	if label, ok := raw["stopReason"].(string); ok {
		if r, ok := ParseStopReason(label); ok {
			reason = r
		}
	}

	sessions := 0
	if n, ok := number(raw["completedFocusSessions"]); ok && n == math.Trunc(n) && !math.IsInf(n, 0) {
		sessions = int(max(0, min(n, float64(settings.RunIntervals))))
	}

	var endTime int64
	if running {
		endTime = millis(raw["endTimeMs"])
	}

	return State{
		Phase:                  phase,
		IsRunning:              running,
		Status:                 status,
		StopReason:             reason,
		RemainingMs:            remaining,
		EndTimeMs:              endTime,
		CompletedFocusSessions: sessions,
		LastTransitionAt:       millis(raw["lastTransitionAt"]),
	}
}

// DecodeState normalizes a persisted state document. Undecodable bytes are
// treated as a missing snapshot.
func DecodeState(data []byte, settings Settings) State {
	return NormalizeState(decodeObject(data), settings)
}

// NeedsDeadlineRepair reports the legacy "running but no deadline" shape.
func (s State) NeedsDeadlineRepair() bool {
	return s.IsRunning && !s.HasDeadline()
}

// renormalize re-applies the settings-dependent clamps after settings change.
func renormalize(s State, settings Settings) State {
	s.CompletedFocusSessions = max(0, min(s.CompletedFocusSessions, settings.RunIntervals))
	return s
}

// Bounds for persisted millisecond fields. No phase lasts longer than
// maxRemainingMs, and maxTimestampMs is the last instant a time.Duration
// measured from the epoch can hold, so later arithmetic cannot overflow.
const (
	maxRemainingMs = float64(24 * time.Hour / time.Millisecond)
	maxTimestampMs = float64(math.MaxInt64 / int64(time.Millisecond))
)

// millis reads a timestamp field; anything but a number in
// [0, maxTimestampMs] means "unset".
func millis(v any) int64 {
	n, ok := number(v)
	if !ok || math.IsNaN(n) || n < 0 || n > maxTimestampMs {
		return 0
	}
	return int64(n)
}

// number accepts numeric values only; unlike settings, state fields written as
// strings are treated as garbage.
func number(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toFloat(v)
}

// truthy mirrors loose boolean coercion of decoded JSON values.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0 && !math.IsNaN(b)
	case string:
		return b != ""
	default:
		return true
	}
}
