package main

import (
	"fmt"
	"strings"
	"time"

	"pomodoro"
)

func formatState(s pomodoro.State, settings pomodoro.Settings) string {
	remaining := time.Duration(s.RemainingMs) * time.Millisecond
	line := fmt.Sprintf("%-10s %-8s %s  sessions %d/%d",
		s.Phase.String(),
		s.Status.String(),
		formatClock(remaining),
		s.CompletedFocusSessions,
		settings.RunIntervals,
	)
	if s.Status == pomodoro.StatusStopped && s.StopReason == pomodoro.StopCompleted {
		line += "  (run complete)"
	}
	return line
}

// formatClock renders mm:ss, rounding partial seconds up like a countdown.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatSettings(s pomodoro.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "focus          %d min\n", s.FocusMinutes)
	fmt.Fprintf(&b, "short break    %d min\n", s.ShortBreakMinutes)
	fmt.Fprintf(&b, "long break     %d min\n", s.LongBreakMinutes)
	fmt.Fprintf(&b, "long every     %d sessions\n", s.LongBreakEvery)
	fmt.Fprintf(&b, "run intervals  %d\n", s.RunIntervals)
	fmt.Fprintf(&b, "sound          %t", s.SoundEnabled)
	return b.String()
}
