package pomodoro

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================================
// Events
// ============================================================================
// Everything that can revive the engine is an Event: user commands arriving
// over some transport, the wake scheduler firing, and the boot-time
// reconciliation. Reduce consumes them.
// ============================================================================

// Event is the input to Reduce.
type Event interface {
	eventMarker()
}

// Command is an Event that carries user intent and produces a Response.
type Command interface {
	Event
	CommandType() string
}

// GetState returns the live state, catching up an overdue deadline first.
type GetState struct{}

// Toggle starts a stopped or paused timer, or pauses a running one.
type Toggle struct{}

// Skip jumps to the next phase regardless of remaining time.
type Skip struct{}

// Reset returns to a paused Focus phase with zero sessions.
type Reset struct{}

// Stop returns to the idle Focus state with zero sessions.
type Stop struct{}

// UpdateSettings replaces the settings with the normalized form of Settings.
type UpdateSettings struct {
	Settings map[string]any `json:"settings"`
}

// UnknownCommand is produced when a request names no known command.
type UnknownCommand struct {
	Type string
}

func (GetState) eventMarker()       {}
func (Toggle) eventMarker()         {}
func (Skip) eventMarker()           {}
func (Reset) eventMarker()          {}
func (Stop) eventMarker()           {}
func (UpdateSettings) eventMarker() {}
func (UnknownCommand) eventMarker() {}

func (GetState) CommandType() string         { return "getState" }
func (Toggle) CommandType() string           { return "toggle" }
func (Skip) CommandType() string             { return "skip" }
func (Reset) CommandType() string            { return "reset" }
func (Stop) CommandType() string             { return "stop" }
func (UpdateSettings) CommandType() string   { return "updateSettings" }
func (c UnknownCommand) CommandType() string { return c.Type }

// Revive is the boot-time reconciliation trigger.
type Revive struct{}

// WakeFired is delivered by the wake scheduler when a registration expires.
type WakeFired struct {
	Name string
}

func (Revive) eventMarker()    {}
func (WakeFired) eventMarker() {}

// ============================================================================
// Wire format
// ============================================================================

// CommandNamespace prefixes command tags sent by older clients
// ("pomodoro:toggle"). Both forms are accepted.
const CommandNamespace = "pomodoro:"

// CommandEnvelope is the JSON request shape: {"type": "...", "settings": {...}}.
type CommandEnvelope struct {
	Type     string          `json:"type"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// ParseCommand maps a tag onto a Command. Unknown tags yield UnknownCommand.
func ParseCommand(tag string) Command {
	switch strings.TrimPrefix(tag, CommandNamespace) {
	case "getState":
		return GetState{}
	case "toggle":
		return Toggle{}
	case "skip":
		return Skip{}
	case "reset":
		return Reset{}
	case "stop":
		return Stop{}
	case "updateSettings":
		return UpdateSettings{}
	default:
		return UnknownCommand{Type: tag}
	}
}

// UnmarshalCommand decodes a request envelope. Only a syntactically broken
// envelope is an error; an unknown tag decodes to UnknownCommand and the
// settings payload is normalized later, so it is never rejected here.
func UnmarshalCommand(data []byte) (Command, error) {
	var env CommandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	cmd := ParseCommand(env.Type)
	if _, ok := cmd.(UpdateSettings); ok {
		return UpdateSettings{Settings: decodeObject(env.Settings)}, nil
	}
	return cmd, nil
}

// MarshalCommand encodes cmd as a request envelope.
func MarshalCommand(cmd Command) ([]byte, error) {
	env := CommandEnvelope{Type: cmd.CommandType()}
	if u, ok := cmd.(UpdateSettings); ok {
		data, err := json.Marshal(u.Settings)
		if err != nil {
			return nil, fmt.Errorf("marshal UpdateSettings: %w", err)
		}
		env.Settings = data
	}
	return json.Marshal(env)
}

// Response is the result of a dispatched command.
type Response struct {
	OK       bool      `json:"ok"`
	State    *State    `json:"state,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// okResponse expects s to already carry the live remaining time.
func okResponse(s State, settings Settings) Response {
	return Response{OK: true, State: &s, Settings: &settings}
}

func errorResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
