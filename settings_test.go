package pomodoro

import (
	"encoding/json"
	"math"
	"testing"
)

func TestNormalizeSettings_Defaults(t *testing.T) {
	got := NormalizeSettings(nil)
	want := Settings{
		FocusMinutes:      25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
		LongBreakEvery:    4,
		RunIntervals:      4,
		SoundEnabled:      true,
	}
	if got != want {
		t.Fatalf("expected defaults %+v, got %+v", want, got)
	}
	if DefaultSettings() != want {
		t.Fatalf("DefaultSettings disagrees with normalized empty input")
	}
}

func TestNormalizeSettings_FieldRules(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want func(Settings) bool
	}{
		{"below range clamps to min", map[string]any{"focusMinutes": -3.0}, func(s Settings) bool { return s.FocusMinutes == 1 }},
		{"above range clamps to max", map[string]any{"focusMinutes": 1000.0}, func(s Settings) bool { return s.FocusMinutes == 180 }},
		{"rounds half up", map[string]any{"shortBreakMinutes": 7.5}, func(s Settings) bool { return s.ShortBreakMinutes == 8 }},
		{"rounds down", map[string]any{"shortBreakMinutes": 7.4}, func(s Settings) bool { return s.ShortBreakMinutes == 7 }},
		{"numeric string", map[string]any{"longBreakMinutes": " 30 "}, func(s Settings) bool { return s.LongBreakMinutes == 30 }},
		{"garbage string", map[string]any{"longBreakMinutes": "soon"}, func(s Settings) bool { return s.LongBreakMinutes == 15 }},
		{"empty string", map[string]any{"longBreakEvery": ""}, func(s Settings) bool { return s.LongBreakEvery == 4 }},
		{"NaN", map[string]any{"runIntervals": math.NaN()}, func(s Settings) bool { return s.RunIntervals == 4 }},
		{"Inf", map[string]any{"runIntervals": math.Inf(1)}, func(s Settings) bool { return s.RunIntervals == 4 }},
		{"bool is not a number", map[string]any{"runIntervals": true}, func(s Settings) bool { return s.RunIntervals == 4 }},
		{"false is not a number", map[string]any{"focusMinutes": false}, func(s Settings) bool { return s.FocusMinutes == 25 }},
		{"null takes default", map[string]any{"shortBreakMinutes": nil}, func(s Settings) bool { return s.ShortBreakMinutes == 5 }},
		{"longBreakEvery min is 2", map[string]any{"longBreakEvery": 1.0}, func(s Settings) bool { return s.LongBreakEvery == 2 }},
		{"go int accepted", map[string]any{"runIntervals": 12}, func(s Settings) bool { return s.RunIntervals == 12 }},
		{"sound false", map[string]any{"soundEnabled": false}, func(s Settings) bool { return !s.SoundEnabled }},
		{"sound string ignored", map[string]any{"soundEnabled": "false"}, func(s Settings) bool { return s.SoundEnabled }},
		{"legacy sound key", map[string]any{"pomodoroSoundEnabled": false}, func(s Settings) bool { return !s.SoundEnabled }},
		{"new key wins over legacy", map[string]any{"soundEnabled": true, "pomodoroSoundEnabled": false}, func(s Settings) bool { return s.SoundEnabled }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSettings(tt.raw)
			if !tt.want(got) {
				t.Fatalf("unexpected result for %v: %+v", tt.raw, got)
			}
		})
	}
}

func TestNormalizeSettings_AlwaysInRange(t *testing.T) {
	values := []any{nil, -1e9, -1.0, 0.0, 0.49, 1.0, 2.5, 59.5, 60.0, 121.0, 1e12, math.NaN(), math.Inf(-1), "x", "12", []any{1.0}, map[string]any{}}
	keys := []string{"focusMinutes", "shortBreakMinutes", "longBreakMinutes", "longBreakEvery", "runIntervals"}

	for _, key := range keys {
		for _, v := range values {
			s := NormalizeSettings(map[string]any{key: v})
			checkSettingsInRange(t, s)
		}
	}
}

func TestNormalizeSettings_IdentityOnValid(t *testing.T) {
	in := Settings{FocusMinutes: 50, ShortBreakMinutes: 10, LongBreakMinutes: 30, LongBreakEvery: 3, RunIntervals: 6, SoundEnabled: false}
	if got := NormalizeSettings(in.Map()); got != in {
		t.Fatalf("expected identity, got %+v", got)
	}

	// Through the persisted JSON form as well.
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := DecodeSettings(data); got != in {
		t.Fatalf("expected identity after decode, got %+v", got)
	}
}

func TestDecodeSettings_Malformed(t *testing.T) {
	for _, data := range []string{"", "null", "[]", "42", `"str"`, "{", `{"focusMinutes":`} {
		if got := DecodeSettings([]byte(data)); got != DefaultSettings() {
			t.Fatalf("expected defaults for %q, got %+v", data, got)
		}
	}
}

func TestDurationOf(t *testing.T) {
	s := Settings{FocusMinutes: 25, ShortBreakMinutes: 5, LongBreakMinutes: 15}
	if got := DurationOf(PhaseFocus, s).Milliseconds(); got != 25*60000 {
		t.Fatalf("focus: got %d", got)
	}
	if got := DurationOf(PhaseShortBreak, s).Milliseconds(); got != 5*60000 {
		t.Fatalf("short break: got %d", got)
	}
	if got := DurationOf(PhaseLongBreak, s).Milliseconds(); got != 15*60000 {
		t.Fatalf("long break: got %d", got)
	}
}

func checkSettingsInRange(t *testing.T, s Settings) {
	t.Helper()
	check := func(name string, v int, r intRange) {
		if v < r.min || v > r.max {
			t.Fatalf("%s=%d outside [%d,%d]", name, v, r.min, r.max)
		}
	}
	check("focusMinutes", s.FocusMinutes, focusRange)
	check("shortBreakMinutes", s.ShortBreakMinutes, shortBreakRange)
	check("longBreakMinutes", s.LongBreakMinutes, longBreakRange)
	check("longBreakEvery", s.LongBreakEvery, longEveryRange)
	check("runIntervals", s.RunIntervals, runRange)
}
