package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"pomodoro"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that turns daemon broadcasts into wire frames
//
// Notes:
//   - The engine stays daemon-owned; the initial snapshot on connect goes
//     through the daemon loop like any other request.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The first message on connect is "state_init".
//
// ============================================================================

// Wire message types.
const (
	msgStateInit       = "state_init"
	msgStateChanged    = "state_changed"
	msgPhaseTransition = "phase_transition"
)

// wsStateData is the `data` payload for state_init and state_changed.
type wsStateData struct {
	Cause    string            `json:"cause,omitempty"`
	State    pomodoro.State    `json:"state"`
	Settings pomodoro.Settings `json:"settings"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			wsClientsConnected.Set(float64(n))
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
	wsClientsConnected.Set(0)
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		wsClientsConnected.Set(float64(n))
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		wsBroadcastDroppedTotal.Inc()
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, kind string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+kind+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot on connect (through the daemon loop).
	events chan<- daemonEvent
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server. Mount it with Register, then
// start hub.Run(ctx) and RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- daemonEvent, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register mounts the WS handler on r.
func (s *Server) Register(r chi.Router, path string) {
	if r == nil {
		return
	}
	r.Get(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// The daemon listens on loopback by default; browsers on any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register first so no broadcast between snapshot and registration is lost.
	s.hub.register <- client

	// The pumps must outlive the handler: net/http cancels r.Context() when
	// the handler returns. The hub and socket errors end them.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	resp, err := snapshot(waitCtx, s.events)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}
	if !resp.OK || resp.State == nil || resp.Settings == nil {
		s.logger.Warn("ws snapshot unavailable", "error", resp.Error)
		return
	}

	initMsg, err := marshalEnvelope(wsOutboundEvent{
		Type: msgStateInit,
		Data: wsStateData{State: *resp.State, Settings: *resp.Settings},
	})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}

	// Enqueue init message; if the client is already slow, disconnect.
	select {
	case client.send <- initMsg:
	default:
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster marshals daemon broadcasts and fans them out to all hub
// clients. Run it as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-src:
			if !ok {
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			msg, err := marshalEnvelope(ev)
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastStateChanged:
		return wsOutboundEvent{
			Type: msgStateChanged,
			Data: wsStateData{Cause: ev.Cause, State: ev.State, Settings: ev.Settings},
			At:   ev.At,
		}, true

	case BroadcastPhaseTransition:
		return wsOutboundEvent{
			Type: msgPhaseTransition,
			Data: ev.Notification,
			At:   ev.Notification.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
