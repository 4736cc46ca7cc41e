package pomodoro

// Transition is the result of one step of the phase automaton.
type Transition struct {
	Phase                  Phase
	CompletedFocusSessions int
}

// NextPhase resolves where the cycle goes after s.Phase ends.
//
// Focus always counts as a completed session and is followed by a long break
// on every LongBreakEvery-th session, else a short break. Breaks lead back to
// Focus without touching the count. Run completion is checked by the caller.
func NextPhase(s State, settings Settings) Transition {
	if s.Phase != PhaseFocus {
		return Transition{Phase: PhaseFocus, CompletedFocusSessions: s.CompletedFocusSessions}
	}
	done := s.CompletedFocusSessions + 1
	next := PhaseShortBreak
	if settings.LongBreakEvery > 0 && done%settings.LongBreakEvery == 0 {
		next = PhaseLongBreak
	}
	return Transition{Phase: next, CompletedFocusSessions: done}
}

// completesRun reports whether the step from -> t finishes the run.
func completesRun(from Phase, t Transition, settings Settings) bool {
	return from == PhaseFocus && t.CompletedFocusSessions >= settings.RunIntervals
}
