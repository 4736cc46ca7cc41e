package pomodoro

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Settings is the process-wide timer configuration. It is always stored in its
// normalized form and replaced wholesale on update.
type Settings struct {
	FocusMinutes      int  `json:"focusMinutes"`
	ShortBreakMinutes int  `json:"shortBreakMinutes"`
	LongBreakMinutes  int  `json:"longBreakMinutes"`
	LongBreakEvery    int  `json:"longBreakEvery"`
	RunIntervals      int  `json:"runIntervals"`
	SoundEnabled      bool `json:"soundEnabled"`
}

// intRange describes the accepted range and the fallback of one integer setting.
type intRange struct {
	min, max, def int
}

var (
	focusRange      = intRange{min: 1, max: 180, def: 25}
	shortBreakRange = intRange{min: 1, max: 60, def: 5}
	longBreakRange  = intRange{min: 1, max: 120, def: 15}
	longEveryRange  = intRange{min: 2, max: 12, def: 4}
	runRange        = intRange{min: 1, max: 30, def: 4}
)

const defaultSoundEnabled = true

// legacySoundKey is the name older snapshots used for SoundEnabled.
const legacySoundKey = "pomodoroSoundEnabled"

// DefaultSettings returns the documented defaults (25/5/15/4/4/sound on).
func DefaultSettings() Settings {
	return Settings{
		FocusMinutes:      focusRange.def,
		ShortBreakMinutes: shortBreakRange.def,
		LongBreakMinutes:  longBreakRange.def,
		LongBreakEvery:    longEveryRange.def,
		RunIntervals:      runRange.def,
		SoundEnabled:      defaultSoundEnabled,
	}
}

// NormalizeSettings turns an arbitrary decoded JSON object into valid Settings.
//
// Every field is handled on its own: a missing, non-numeric or non-finite value
// falls back to the default, a finite value is rounded and clamped into range.
// It never fails.
func NormalizeSettings(raw map[string]any) Settings {
	sound := defaultSoundEnabled
	if v, ok := raw["soundEnabled"].(bool); ok {
		sound = v
	} else if v, ok := raw[legacySoundKey].(bool); ok {
		sound = v
	}

	return Settings{
		FocusMinutes:      clampInt(raw["focusMinutes"], focusRange),
		ShortBreakMinutes: clampInt(raw["shortBreakMinutes"], shortBreakRange),
		LongBreakMinutes:  clampInt(raw["longBreakMinutes"], longBreakRange),
		LongBreakEvery:    clampInt(raw["longBreakEvery"], longEveryRange),
		RunIntervals:      clampInt(raw["runIntervals"], runRange),
		SoundEnabled:      sound,
	}
}

// DecodeSettings normalizes a persisted settings document. Invalid JSON is
// treated like an absent document.
func DecodeSettings(data []byte) Settings {
	return NormalizeSettings(decodeObject(data))
}

// Map returns s as a raw object accepted by NormalizeSettings and the
// updateSettings command.
func (s Settings) Map() map[string]any {
	return map[string]any{
		"focusMinutes":      s.FocusMinutes,
		"shortBreakMinutes": s.ShortBreakMinutes,
		"longBreakMinutes":  s.LongBreakMinutes,
		"longBreakEvery":    s.LongBreakEvery,
		"runIntervals":      s.RunIntervals,
		"soundEnabled":      s.SoundEnabled,
	}
}

func clampInt(v any, r intRange) int {
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return r.def
	}
	rounded := math.Floor(n + 0.5)
	if rounded < float64(r.min) {
		return r.min
	}
	if rounded > float64(r.max) {
		return r.max
	}
	return int(rounded)
}

// toFloat accepts the numeric shapes produced by encoding/json and by Go
// callers, plus numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// decodeObject returns nil unless data holds a JSON object.
func decodeObject(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}
