package main

import (
	"time"

	"pomodoro"
)

// ============================================================================
// Daemon events
// ============================================================================
// Everything that reaches the daemon loop from another goroutine: commands
// from IPC and HTTP clients, wake fires from the scheduler, and snapshot
// requests from newly connected websocket clients. Requests that expect an
// answer carry a buffered Reply channel.
// ============================================================================

type daemonEvent interface {
	daemonEventMarker()
}

// CommandRequest asks the loop to dispatch Cmd and send the response to Reply.
type CommandRequest struct {
	Cmd   pomodoro.Command
	Reply chan<- pomodoro.Response
}

// WakeRequest is sent by the wake scheduler when a registration expires.
type WakeRequest struct {
	Name string
}

// SnapshotRequest asks for the persisted state without reconciling it.
type SnapshotRequest struct {
	Reply chan<- pomodoro.Response
}

func (CommandRequest) daemonEventMarker()  {}
func (WakeRequest) daemonEventMarker()     {}
func (SnapshotRequest) daemonEventMarker() {}

// ============================================================================
// Broadcasts
// ============================================================================
// Broadcasts flow from the daemon loop to the websocket broadcaster. They are
// values, never pointers into engine state.
// ============================================================================

type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStateChanged is emitted after every successfully handled event.
type BroadcastStateChanged struct {
	Cause    string
	State    pomodoro.State
	Settings pomodoro.Settings
	At       time.Time
}

// BroadcastPhaseTransition is emitted for each engine notification.
type BroadcastPhaseTransition struct {
	Notification pomodoro.Notification
}

func (BroadcastStateChanged) broadcastMarker()    {}
func (BroadcastPhaseTransition) broadcastMarker() {}
