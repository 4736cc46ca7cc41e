package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"pomodoro"
)

// wsEnvelope mirrors the daemon's {type, ts, data} frames.
type wsEnvelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsStateData struct {
	Cause    string            `json:"cause,omitempty"`
	State    pomodoro.State    `json:"state"`
	Settings pomodoro.Settings `json:"settings"`
}

const (
	watchPongWait   = 60 * time.Second
	watchPingPeriod = 30 * time.Second
)

func newWatchCommand(o *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes from the daemon websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), o)
		},
	}
}

func watch(ctx context.Context, w io.Writer, o *globalOptions) error {
	u, err := url.Parse(o.WSURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	d := websocket.Dialer{HandshakeTimeout: o.Timeout}
	conn, _, err := d.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
		return nil
	})

	// Only this goroutine writes after the read loop starts.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(watchPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))

		if o.JSON {
			fmt.Fprintln(w, string(msg))
			continue
		}
		line, ok := formatFrame(msg)
		if ok {
			fmt.Fprintln(w, line)
		}
	}
}

// formatFrame renders one websocket frame as a summary line.
func formatFrame(msg []byte) (string, bool) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return "", false
	}

	ts := ""
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05") + " "
	}

	switch env.Type {
	case "state_init", "state_changed":
		var data wsStateData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", false
		}
		cause := data.Cause
		if env.Type == "state_init" {
			cause = "init"
		}
		return fmt.Sprintf("%s[%s] %s", ts, cause, formatState(data.State, data.Settings)), true

	case "phase_transition":
		var n pomodoro.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return "", false
		}
		return fmt.Sprintf("%s%s: %s", ts, n.Title, n.Message), true

	default:
		return "", false
	}
}
