package pomodoro

import "time"

// NotificationKind distinguishes the two events the engine announces.
type NotificationKind string

const (
	NotifyPhaseStarted NotificationKind = "phase_started"
	NotifyRunCompleted NotificationKind = "run_completed"
)

// Notification is handed to the Notifier after a state commit. Delivery is
// best-effort.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	From    Phase            `json:"from"`
	To      Phase            `json:"to"`

	// SoundEnabled mirrors the setting so consumers can decide on audio.
	SoundEnabled bool      `json:"soundEnabled"`
	At           time.Time `json:"at"`
}

func phaseStartedNotification(from, to Phase, settings Settings, now time.Time) Notification {
	msg := "Break complete. Back to focus."
	if from == PhaseFocus {
		if to == PhaseLongBreak {
			msg = "Focus session complete. Time for a long break."
		} else {
			msg = "Focus session complete. Time for a short break."
		}
	}
	return Notification{
		Kind:         NotifyPhaseStarted,
		Title:        "Pomodoro: " + to.Label(),
		Message:      msg,
		From:         from,
		To:           to,
		SoundEnabled: settings.SoundEnabled,
		At:           now,
	}
}

func runCompletedNotification(settings Settings, now time.Time) Notification {
	return Notification{
		Kind:         NotifyRunCompleted,
		Title:        "Pomodoro complete",
		Message:      "All configured focus intervals are done.",
		From:         PhaseFocus,
		To:           PhaseFocus,
		SoundEnabled: settings.SoundEnabled,
		At:           now,
	}
}
