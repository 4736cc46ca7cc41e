package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pomodoro"
)

// These tests focus on hub behavior (fanout + slow-client disconnection)
// without standing up a real websocket server. Clients carry a nil
// websocket.Conn; the hub guards every Close against nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(quietLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     quietLogger(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"state_changed","data":{"cause":"toggle"}}`)

	// BroadcastBytes may drop under scheduling pressure; go straight to the queue.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, string(got), string(msg))
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for hub to stop")
	}

	// Shutdown closes every client's send queue.
	if _, ok := <-c1.send; ok {
		t.Fatalf("expected c1 send channel to be closed")
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 1, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	// Pre-fill slow client buffer to simulate it being stuck.
	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"phase_transition","data":{"kind":"phase_started"}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", string(got), string(msg))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled message, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}

	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")

	hub.mu.Lock()
	_, stillThere := hub.clients[slow]
	hub.mu.Unlock()
	if stillThere {
		t.Fatalf("slow client still registered")
	}
}

func TestBroadcaster_ConvertsToEnvelopes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newTestHub(t, 4, 8)
	src := make(chan StateBroadcast, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunBroadcaster(ctx, hub, src, quietLogger())
	}()

	at := time.UnixMilli(1_700_000_000_000).UTC()
	st := pomodoro.NormalizeState(nil, pomodoro.DefaultSettings())
	src <- BroadcastStateChanged{Cause: "skip", State: st, Settings: pomodoro.DefaultSettings(), At: at}
	src <- BroadcastPhaseTransition{Notification: pomodoro.Notification{
		Kind: pomodoro.NotifyRunCompleted,
		At:   at,
	}}

	var got []envelope
	for len(got) < 2 {
		select {
		case raw := <-hub.broadcast:
			var env struct {
				Type string          `json:"type"`
				Ts   *time.Time      `json:"ts"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(raw, &env); err != nil {
				t.Fatalf("unmarshal %s: %v", raw, err)
			}
			if env.Ts == nil || !env.Ts.Equal(at) {
				t.Fatalf("%s ts = %v, want %v", env.Type, env.Ts, at)
			}
			got = append(got, envelope{Type: env.Type, Data: env.Data})
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for broadcast %d", len(got)+1)
		}
	}

	if got[0].Type != msgStateChanged {
		t.Fatalf("first type = %q, want %q", got[0].Type, msgStateChanged)
	}
	var data wsStateData
	if err := json.Unmarshal(got[0].Data.(json.RawMessage), &data); err != nil {
		t.Fatalf("unmarshal state data: %v", err)
	}
	if data.Cause != "skip" || data.State.Phase != pomodoro.PhaseFocus || data.Settings.FocusMinutes != 25 {
		t.Fatalf("unexpected state data %+v", data)
	}
	if got[1].Type != msgPhaseTransition {
		t.Fatalf("second type = %q, want %q", got[1].Type, msgPhaseTransition)
	}

	close(src)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcaster did not stop after source closed")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
