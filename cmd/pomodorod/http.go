package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pomodoro"
)

// ============================================================================
// HTTP API
// ============================================================================
//
//   GET  /healthz          liveness
//   GET  /metrics          prometheus
//   GET  /api/v1/state     same as the getState command
//   POST /api/v1/commands  {"type": "...", "settings": {...}} -> Response
//   GET  /ws               state websocket
//
// Commands go through the daemon loop exactly like IPC requests.
// ============================================================================

const maxCommandBody = 64 * 1024

type apiConfig struct {
	Events          chan<- daemonEvent
	WS              *Server
	RateLimitPerMin int
	Logger          *slog.Logger
}

func newRouter(cfg apiConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
			resp, err := submit(req.Context(), cfg.Events, pomodoro.GetState{})
			writeResponse(w, resp, err, http.StatusOK, cfg.Logger)
		})

		r.Group(func(r chi.Router) {
			if cfg.RateLimitPerMin > 0 {
				r.Use(rateLimit(cfg.RateLimitPerMin, time.Minute))
			}
			r.Post("/commands", func(w http.ResponseWriter, req *http.Request) {
				handleCommand(w, req, cfg)
			})
		})
	})

	if cfg.WS != nil {
		cfg.WS.Register(r, "/ws")
	}
	return r
}

func handleCommand(w http.ResponseWriter, req *http.Request, cfg apiConfig) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxCommandBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, pomodoro.Response{Error: "request body too large"}, cfg.Logger)
		return
	}

	cmd, err := pomodoro.UnmarshalCommand(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, pomodoro.Response{Error: fmt.Sprintf("parse command: %v", err)}, cfg.Logger)
		return
	}

	status := http.StatusOK
	if _, unknown := cmd.(pomodoro.UnknownCommand); unknown {
		status = http.StatusBadRequest
	}

	resp, err := submit(req.Context(), cfg.Events, cmd)
	writeResponse(w, resp, err, status, cfg.Logger)
}

// writeResponse maps a dispatched Response onto an HTTP status. okStatus is
// used when the engine accepted the command.
func writeResponse(w http.ResponseWriter, resp pomodoro.Response, err error, okStatus int, logger *slog.Logger) {
	switch {
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, pomodoro.Response{Error: err.Error()}, logger)
	case resp.OK:
		writeJSON(w, okStatus, resp, logger)
	case okStatus != http.StatusOK:
		writeJSON(w, okStatus, resp, logger)
	default:
		writeJSON(w, http.StatusInternalServerError, resp, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("http write failed", "error", err)
	}
}

// rateLimit limits requests per client IP with a sliding window.
func rateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"ok":false,"error":"rate limit exceeded"}`+"\n")
		}),
	)
}

// runHTTPServer serves h on listen and shuts it down gracefully when ctx is
// canceled.
func runHTTPServer(ctx context.Context, listen string, h http.Handler, logger *slog.Logger) error {
	logger.Info("http server listening", "addr", listen)

	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
