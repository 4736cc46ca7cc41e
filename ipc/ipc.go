// Package ipc carries timer commands over a Unix domain socket.
//
// Protocol: line-delimited JSON.
//   - Client sends: {"type": "toggle"} or {"type": "updateSettings", "settings": {...}}
//   - Server responds: {"ok": true, "state": {...}, "settings": {...}}
//     or {"ok": false, "error": "msg"}
//
// A connection may carry any number of request/response pairs.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"pomodoro"
)

// maxLineBytes bounds a single request line.
const maxLineBytes = 64 * 1024

// Handler answers one command. It must always return a Response; failures
// are reported as {ok:false}.
type Handler func(ctx context.Context, cmd pomodoro.Command) pomodoro.Response

// Serve listens on socketPath until ctx is canceled, at which point it closes
// the listener and returns nil.
func Serve(ctx context.Context, socketPath string, h Handler, logger *slog.Logger) error {
	// Remove a stale socket left by a crashed daemon.
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Owner only: anyone who can connect can drive the timer.
	if err := os.Chmod(socketPath, 0o600); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleConn(ctx, conn, h, logger)
	}
}

func handleConn(ctx context.Context, conn net.Conn, h Handler, logger *slog.Logger) {
	defer conn.Close()

	// Unblock the scanner when the daemon shuts down.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		var resp pomodoro.Response
		cmd, err := pomodoro.UnmarshalCommand([]byte(line))
		if err != nil {
			resp = pomodoro.Response{OK: false, Error: fmt.Sprintf("parse command: %v", err)}
		} else {
			resp = h(ctx, cmd)
		}

		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.Debug("IPC read error", "error", err)
	}
	logger.Debug("IPC connection closed")
}

// ============================================================================
// Client
// ============================================================================

// DefaultDialTimeout applies when Send is called without a ctx deadline.
const DefaultDialTimeout = 5 * time.Second

// Send delivers cmd to the daemon on socketPath and returns its response.
// A response with OK=false is returned as-is; err is only set for transport
// failures.
func Send(ctx context.Context, socketPath string, cmd pomodoro.Command) (pomodoro.Response, error) {
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return pomodoro.Response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	data, err := pomodoro.MarshalCommand(cmd)
	if err != nil {
		return pomodoro.Response{}, fmt.Errorf("marshal command: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return pomodoro.Response{}, fmt.Errorf("send command: %w", err)
	}

	var resp pomodoro.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return pomodoro.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
