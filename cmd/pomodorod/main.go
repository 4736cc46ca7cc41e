package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pomodoro"
	"pomodoro/ipc"
	"pomodoro/notify"
	"pomodoro/store"
	"pomodoro/wake"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("pomodorod v%s\n", version)
	fmt.Println("Resumable pomodoro timer daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pomodorod [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Keeps a focus/break timer whose state lives in a durable store, so")
	fmt.Println("  the timer survives daemon restarts and machine suspends. Control it")
	fmt.Println("  with pomoctl (unix socket) or the HTTP API; watch it over websocket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (default: none, built-in defaults)")
	fmt.Println()
	fmt.Println("  -store string")
	fmt.Println("        Store backend: memory|file|badger|sqlite|redis|diskv (default \"file\")")
	fmt.Println()
	fmt.Println("  -store-path string")
	fmt.Println("        Store directory (sqlite: database file) (default \"~/.local/state/pomodoro\")")
	fmt.Println()
	fmt.Println("  -redis-addr string")
	fmt.Println("        Redis address for -store redis (default \"127.0.0.1:6379\")")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/pomodorod.sock\")")
	fmt.Println()
	fmt.Println("  -http")
	fmt.Println("        Enable the HTTP API, websocket and metrics (default true)")
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Println("        HTTP listen address (default \"127.0.0.1:3011\")")
	fmt.Println()
	fmt.Println("  -desktop-notify")
	fmt.Println("        Show desktop notifications over D-Bus (default false)")
	fmt.Println()
	fmt.Println("  -webhook-url string")
	fmt.Println("        POST notifications as JSON to this URL")
	fmt.Println()
	fmt.Println("  -wake-check-interval-ms int")
	fmt.Println("        Maximum wake latency after a suspend in ms (default 15000)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (file store under ~/.local/state/pomodoro)")
	fmt.Println("  pomodorod")
	fmt.Println()
	fmt.Println("  # Keep state in sqlite and notify the desktop")
	fmt.Println("  pomodorod -store sqlite -store-path ~/.local/state/pomodoro.db -desktop-notify")
	fmt.Println()
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		storeBack   = flag.String("store", "", "Store backend: memory|file|badger|sqlite|redis|diskv")
		storePath   = flag.String("store-path", "", "Store directory (sqlite: database file)")
		redisAddr   = flag.String("redis-addr", "", "Redis address for -store redis")
		ipcSocket   = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpEnabled = flag.Bool("http", true, "Enable the HTTP API, websocket and metrics")
		httpListen  = flag.String("http-listen", "", "HTTP listen address")
		desktop     = flag.Bool("desktop-notify", false, "Show desktop notifications over D-Bus")
		webhookURL  = flag.String("webhook-url", "", "POST notifications as JSON to this URL")
		wakeCheckMS = flag.Int("wake-check-interval-ms", 0, "Maximum wake latency after a suspend in ms")
		logLevelStr = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags the user actually set override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			o.StoreBackend = storeBack
		case "store-path":
			o.StorePath = storePath
		case "redis-addr":
			o.RedisAddr = redisAddr
		case "ipc-socket":
			o.IPCSocketPath = ipcSocket
		case "http":
			o.HTTPEnabled = httpEnabled
		case "http-listen":
			o.HTTPListen = httpListen
		case "desktop-notify":
			o.NotifyDesktop = desktop
		case "webhook-url":
			o.WebhookURL = webhookURL
		case "wake-check-interval-ms":
			o.WakeCheckIntervalMS = wakeCheckMS
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(os.Stdout, logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting pomodorod", "version", version)
	logger.Debug("configuration",
		"store", cfg.Store.Backend,
		"store_path", cfg.Store.Path,
		"ipc_socket", cfg.IPC.SocketPath,
		"http_enabled", cfg.HTTP.Enabled,
		"http_listen", cfg.HTTP.Listen,
		"notify_desktop", cfg.Notify.Desktop,
		"webhook", cfg.Notify.Webhook.URL != "",
		"wake_check_interval_ms", cfg.Wake.CheckIntervalMS,
	)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pomodorod exiting", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}

// run owns every subsystem and blocks until ctx is canceled or one of them
// fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	lock, err := acquireLock(lockPath(&cfg))
	if err != nil {
		return err
	}
	defer lock.Release()

	backend, err := store.Open(cfg.ToStoreConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	events := make(chan daemonEvent, 64)

	// Without HTTP there is no websocket hub to drain broadcasts.
	var broadcasts chan StateBroadcast
	if cfg.HTTP.Enabled {
		broadcasts = make(chan StateBroadcast, 64)
	}

	sched := wake.New(func(name string) {
		select {
		case events <- WakeRequest{Name: name}:
		case <-ctx.Done():
		}
	}, wake.Options{CheckInterval: cfg.WakeCheckInterval()})

	notifier, webhook, closeNotifiers := buildNotifiers(cfg, broadcasts, logger)
	defer closeNotifiers()

	engine, err := pomodoro.New(pomodoro.Config{
		Store:     instrumentedStore{inner: backend},
		Scheduler: sched,
		Notifier:  notifier,
		Logger:    logger.With("component", "engine"),
	})
	if err != nil {
		return err
	}

	// Boot-time revival: catch up an overdue phase and re-arm the wake before
	// any client can talk to us.
	if err := engine.Reconcile(ctx); err != nil {
		var opErr *pomodoro.OpError
		if errors.As(err, &opErr) && opErr.Op == "load" {
			return fmt.Errorf("boot reconcile: %w", err)
		}
		logger.Warn("boot reconcile incomplete", "error", err)
	}

	g.Go(func() error {
		runDaemon(ctx, events, engine, broadcasts, logger.With("component", "daemon"))
		return nil
	})

	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		return ipc.Serve(ctx, cfg.IPC.SocketPath, func(ctx context.Context, cmd pomodoro.Command) pomodoro.Response {
			resp, err := submit(ctx, events, cmd)
			if err != nil {
				return pomodoro.Response{OK: false, Error: err.Error()}
			}
			return resp
		}, logger.With("component", "ipc"))
	})

	if webhook != nil {
		g.Go(func() error {
			return webhook.Run(ctx)
		})
	}

	if cfg.HTTP.Enabled {
		wsLogger := logger.With("component", "ws")
		ws := NewServer(wsLogger, events, ServerConfig{})

		g.Go(func() error {
			ws.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(ctx, ws.Hub(), broadcasts, wsLogger)
			return nil
		})

		router := newRouter(apiConfig{
			Events:          events,
			WS:              ws,
			RateLimitPerMin: cfg.HTTP.RateLimitPerMin,
			Logger:          logger.With("component", "http"),
		})
		g.Go(func() error {
			return runHTTPServer(ctx, cfg.HTTP.Listen, router, logger.With("component", "http"))
		})
	}

	logger.Info("listening", "ipc", cfg.IPC.SocketPath, "http", cfg.HTTP.Listen, "http_enabled", cfg.HTTP.Enabled, "store", cfg.Store.Backend)

	return g.Wait()
}

// buildNotifiers assembles the notification fan-out. The returned webhook is
// non-nil when its delivery loop must be started.
func buildNotifiers(cfg Config, broadcasts chan<- StateBroadcast, logger *slog.Logger) (pomodoro.Notifier, *notify.Webhook, func()) {
	multi := notify.Multi{
		notify.Func(countNotification),
		notify.Func(func(_ context.Context, n pomodoro.Notification) error {
			publish(broadcasts, BroadcastPhaseTransition{Notification: n}, logger)
			return nil
		}),
	}
	closers := []func(){}

	if cfg.Notify.Log {
		multi = append(multi, notify.Log{Logger: logger.With("component", "notify")})
	}

	if cfg.Notify.Desktop {
		d, err := notify.NewDesktop("pomodoro")
		if err != nil {
			logger.Warn("desktop notifications unavailable", "error", err)
		} else {
			multi = append(multi, d)
			closers = append(closers, func() { _ = d.Close() })
		}
	}

	var webhook *notify.Webhook
	if cfg.Notify.Webhook.URL != "" {
		webhook = notify.NewWebhook(cfg.Notify.Webhook.URL, cfg.WebhookTimeout(), logger.With("component", "webhook"))
		multi = append(multi, webhook)
	}

	return multi, webhook, func() {
		for _, c := range closers {
			c()
		}
	}
}
