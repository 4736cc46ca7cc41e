package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pomodoro"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// All engine calls happen on this goroutine, in arrival order. Transports
// (IPC, HTTP, websocket) and the wake scheduler only send daemonEvents and
// wait for replies; they never touch the engine directly.
//
// After each handled event the loop publishes a state_changed broadcast, so
// websocket consumers see every transition in the order it was committed.
//
// ============================================================================

// requestTimeout bounds how long a transport waits for the loop to answer.
const requestTimeout = 5 * time.Second

var errDaemonBusy = errors.New("daemon did not answer in time")

// runDaemon consumes events until ctx is canceled or events is closed.
func runDaemon(
	ctx context.Context,
	events <-chan daemonEvent,
	engine *pomodoro.Engine,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if engine == nil {
		logger.Error("daemon engine is nil")
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			handleDaemonEvent(ctx, ev, engine, broadcasts, logger)
		}
	}
}

func handleDaemonEvent(
	ctx context.Context,
	ev daemonEvent,
	engine *pomodoro.Engine,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	switch e := ev.(type) {
	case CommandRequest:
		resp := engine.Dispatch(ctx, e.Cmd)
		observeCommand(e.Cmd, resp)
		reply(e.Reply, resp)

		if resp.OK && resp.State != nil && resp.Settings != nil {
			publish(broadcasts, BroadcastStateChanged{
				Cause:    e.Cmd.CommandType(),
				State:    *resp.State,
				Settings: *resp.Settings,
				At:       time.Now().UTC(),
			}, logger)
		} else if !resp.OK {
			logger.Debug("command failed", "command", e.Cmd.CommandType(), "error", resp.Error)
		}

	case WakeRequest:
		st, settings, err := engine.HandleWake(ctx, e.Name)
		observeWake(err)
		if err != nil {
			logger.Error("wake handling failed", "name", e.Name, "error", err)
			return
		}
		publish(broadcasts, BroadcastStateChanged{
			Cause:    "wake",
			State:    st,
			Settings: settings,
			At:       time.Now().UTC(),
		}, logger)

	case SnapshotRequest:
		st, settings, err := engine.Snapshot(ctx)
		if err != nil {
			reply(e.Reply, pomodoro.Response{OK: false, Error: err.Error()})
			return
		}
		reply(e.Reply, pomodoro.Response{OK: true, State: &st, Settings: &settings})

	default:
		logger.Warn("unknown daemon event", "type", fmt.Sprintf("%T", ev))
	}
}

// reply never blocks; Reply channels are created with capacity 1.
func reply(ch chan<- pomodoro.Response, resp pomodoro.Response) {
	if ch == nil {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// publish never blocks the loop. A full broadcast queue drops the message;
// clients resync from the next state_changed. A nil ch means nobody listens.
func publish(ch chan<- StateBroadcast, b StateBroadcast, logger *slog.Logger) {
	if sc, ok := b.(BroadcastStateChanged); ok {
		observeState(sc.State)
	}
	if ch == nil {
		return
	}
	select {
	case ch <- b:
	default:
		logger.Warn("broadcast queue full, dropping", "type", fmt.Sprintf("%T", b))
	}
}

// submit hands cmd to the daemon loop and waits for its response.
func submit(ctx context.Context, events chan<- daemonEvent, cmd pomodoro.Command) (pomodoro.Response, error) {
	replyCh := make(chan pomodoro.Response, 1)
	return request(ctx, events, CommandRequest{Cmd: cmd, Reply: replyCh}, replyCh)
}

// snapshot asks the daemon loop for the persisted state.
func snapshot(ctx context.Context, events chan<- daemonEvent) (pomodoro.Response, error) {
	replyCh := make(chan pomodoro.Response, 1)
	return request(ctx, events, SnapshotRequest{Reply: replyCh}, replyCh)
}

func request(ctx context.Context, events chan<- daemonEvent, ev daemonEvent, replyCh <-chan pomodoro.Response) (pomodoro.Response, error) {
	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case events <- ev:
	case <-ctx.Done():
		return pomodoro.Response{}, ctx.Err()
	case <-timer.C:
		return pomodoro.Response{}, errDaemonBusy
	}

	select {
	case resp := <-replyCh:
		return resp, nil
	case <-ctx.Done():
		return pomodoro.Response{}, ctx.Err()
	case <-timer.C:
		return pomodoro.Response{}, errDaemonBusy
	}
}
