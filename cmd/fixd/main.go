// fixd is a FIX protocol engine daemon: it loads a declarative set of
// listeners and connections from configuration, runs the engine's reactor
// loop, and exposes a control HTTP surface plus Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fixdaemon/gofix/internal/config"
	"github.com/fixdaemon/gofix/internal/control"
	"github.com/fixdaemon/gofix/internal/engine"
	"github.com/fixdaemon/gofix/internal/fix/dict"
	fixmetrics "github.com/fixdaemon/gofix/internal/metrics"
	appversion "github.com/fixdaemon/gofix/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("fixd starting",
		slog.String("version", appversion.Version),
		slog.String("control_addr", cfg.Control.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Start flight recorder for post-mortem debugging of session failures.
	fr := startFlightRecorder(logger)

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := fixmetrics.NewCollector(reg)

	// 6. Build the dictionary. DictionaryPath overlays are not yet
	// supported -- see DESIGN.md -- so a configured path only produces a
	// startup warning, not a load failure.
	dictionary := dict.Default()
	if cfg.Engine.DictionaryPath != "" {
		logger.Warn("dictionary_path is configured but overlay loading is not implemented, using built-in dictionary",
			slog.String("path", cfg.Engine.DictionaryPath),
		)
	}

	// 7. Create the engine with metrics wired in.
	eng := engine.New(engine.Config{
		Dictionary: dictionary,
		Metrics:    collector,
		Logger:     logger,
	})

	// 8. Run servers.
	if err := runServers(cfg, eng, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("fixd exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("fixd stopped")
	return 0
}

// runServers sets up and runs the control and metrics HTTP servers, the
// engine's reactor loop, and the configured listeners/connections, using
// an errgroup with signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	eng *engine.Engine,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	controlSrv := newControlServer(cfg.Control, eng, logger)

	// errgroup with signal-aware context.
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eng.Run(gCtx)
		return nil
	})

	startHTTPServers(gCtx, g, cfg, controlSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, eng, logger)

	// Create declarative listeners and connections from config at startup.
	startConfiguredSessions(cfg, eng, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, eng, logger, fr, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the control and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	controlSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("control server listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(ctx, &lc, controlSrv, cfg.Control.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	eng *engine.Engine,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, eng, logger)
		return nil
	})
}

// startConfiguredSessions creates every listener and dials every
// connection named in cfg at startup. Failures are logged but do not
// stop the daemon -- an operator can still add sessions via the control
// surface, and a single misconfigured entry should not take the rest
// down with it.
func startConfiguredSessions(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) {
	for _, lc := range cfg.Listen {
		token, err := eng.AddListener(engine.ListenerConfig{
			SenderCompID: lc.SenderCompID,
			Address:      lc.Address,
		})
		if err != nil {
			logger.Error("failed to add configured listener",
				slog.String("address", lc.Address),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("listener added",
			slog.String("sender_comp_id", lc.SenderCompID),
			slog.String("address", lc.Address),
			slog.Uint64("token", uint64(token)),
		)
	}

	for _, cc := range cfg.Connections {
		fv, err := cc.FIXVersionValue()
		if err != nil {
			logger.Error("failed to add configured connection",
				slog.String("address", cc.Address),
				slog.String("error", err.Error()),
			)
			continue
		}
		mv, err := cc.DefaultMessageVersionValue()
		if err != nil {
			logger.Error("failed to add configured connection",
				slog.String("address", cc.Address),
				slog.String("error", err.Error()),
			)
			continue
		}

		token, err := eng.AddConnection(engine.ConnConfig{
			FIXVersion:            fv,
			DefaultMessageVersion: mv,
			SenderCompID:          cc.SenderCompID,
			TargetCompID:          cc.TargetCompID,
			Address:               cc.Address,
		})
		if err != nil {
			logger.Error("failed to add configured connection",
				slog.String("address", cc.Address),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("connection added",
			slog.String("sender_comp_id", cc.SenderCompID),
			slog.String("target_comp_id", cc.TargetCompID),
			slog.String("address", cc.Address),
			slog.Uint64("token", uint64(token)),
		)
	}
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd documentation.
// If watchdog is not configured, the goroutine exits immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP signals and reloads configuration.
// On reload, the log level is updated dynamically via the shared LevelVar.
// Unlike the declarative session set, already-running sessions are not
// torn down or recreated on reload -- an operator manages the live
// session set through the control surface instead.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	eng *engine.Engine,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, eng, logger)
		}
	}
}

// reloadConfig loads a fresh configuration from the given path and
// updates the dynamic log level. Errors during reload are logged but do
// not stop the daemon -- the previous configuration remains in effect.
func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	eng *engine.Engine,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	// Add any newly declared listeners/connections. Entries already
	// running are left alone: eng.AddListener/AddConnection have no way
	// to tell "already running" from "should be recreated", and tearing
	// down live FIX sessions on a log-level reload would surprise an
	// operator far more than a config add quietly being missed.
	startConfiguredSessions(newCfg, eng, logger)
}

func gracefulShutdown(
	ctx context.Context,
	eng *engine.Engine,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	eng.Shutdown()

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	// Derive a fresh shutdown context from the parent (which is cancelled)
	// so the HTTP servers get their own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder
// -------------------------------------------------------------------------

// startFlightRecorder initializes and starts a runtime/trace.FlightRecorder
// for post-mortem debugging of session failures. The recorder maintains a
// rolling window of execution trace data that can be dumped on demand.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newControlServer creates an HTTP server for the control + health surface.
func newControlServer(cfg config.ControlConfig, eng *engine.Engine, logger *slog.Logger) *http.Server {
	c := control.New(eng, logger)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
