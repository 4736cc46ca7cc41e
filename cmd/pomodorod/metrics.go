package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pomodoro"
	"pomodoro/store"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomodoro_commands_total",
		Help: "Commands dispatched to the engine, by command and result.",
	}, []string{"command", "result"})

	wakesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomodoro_wakes_total",
		Help: "Wake fires handled by the engine, by result.",
	}, []string{"result"})

	phaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomodoro_phase_transitions_total",
		Help: "Phase transitions that produced a notification.",
	}, []string{"from", "to"})

	runsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pomodoro_runs_completed_total",
		Help: "Runs that finished all configured focus intervals.",
	})

	currentPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pomodoro_phase",
		Help: "1 for the current phase, 0 otherwise.",
	}, []string{"phase"})

	timerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pomodoro_running",
		Help: "1 while the timer is counting down.",
	})

	storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pomodoro_store_operations_total",
		Help: "Store operations, by op and result.",
	}, []string{"op", "result"})

	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pomodoro_store_operation_duration_seconds",
		Help:    "Store operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	wsClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pomodoro_ws_clients",
		Help: "Connected state websocket clients.",
	})

	wsBroadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pomodoro_ws_broadcast_dropped_total",
		Help: "Websocket frames dropped because the hub queue was full.",
	})
)

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func observeCommand(cmd pomodoro.Command, resp pomodoro.Response) {
	name := cmd.CommandType()
	if _, unknown := cmd.(pomodoro.UnknownCommand); unknown {
		// Client-supplied tags would blow up label cardinality.
		name = "unknown"
	}
	commandsTotal.WithLabelValues(name, result(resp.OK)).Inc()
}

func observeWake(err error) {
	wakesTotal.WithLabelValues(result(err == nil)).Inc()
}

func observeState(s pomodoro.State) {
	for _, p := range []pomodoro.Phase{pomodoro.PhaseFocus, pomodoro.PhaseShortBreak, pomodoro.PhaseLongBreak} {
		v := 0.0
		if p == s.Phase {
			v = 1
		}
		currentPhase.WithLabelValues(p.String()).Set(v)
	}
	if s.IsRunning {
		timerRunning.Set(1)
	} else {
		timerRunning.Set(0)
	}
}

// countNotification is a notifier that only feeds metrics.
func countNotification(_ context.Context, n pomodoro.Notification) error {
	switch n.Kind {
	case pomodoro.NotifyPhaseStarted:
		phaseTransitionsTotal.WithLabelValues(n.From.String(), n.To.String()).Inc()
	case pomodoro.NotifyRunCompleted:
		runsCompletedTotal.Inc()
	}
	return nil
}

// instrumentedStore records latency and outcome of every store call.
type instrumentedStore struct {
	inner store.Store
}

func (s instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.inner.Get(ctx, key)
	storeOpDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	storeOpsTotal.WithLabelValues("get", result(err == nil)).Inc()
	return v, err
}

func (s instrumentedStore) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	storeOpDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	storeOpsTotal.WithLabelValues("set", result(err == nil)).Inc()
	return err
}
