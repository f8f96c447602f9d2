// Package main provides the playback-sentinel daemon entry point.
//
// playback-sentinel is the playback resilience engine for the household
// media hub kiosk: it watches the playback surface, recovers stalled
// streams, coordinates seeks, and decides what the renderer's overlay
// shows. The renderer consumes decisions over the websocket feed and never
// computes any of this itself.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/config"
	"github.com/hearthward/playback-sentinel/internal/feed"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/metrics"
	"github.com/hearthward/playback-sentinel/internal/prefs"
	"github.com/hearthward/playback-sentinel/internal/session"
	"github.com/hearthward/playback-sentinel/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/playback-sentinel
var version = "dev"

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("playback-sentinel %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, "json", "info")
	} else {
		logger = logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
	}
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"metrics_addr", cfg.MetricsAddr,
		"feed_addr", cfg.FeedAddr,
		"prefs_path", cfg.PrefsPath,
		"stall_threshold", cfg.StallThreshold,
		"max_recovery_attempts", cfg.MaxRecoveryAttempts,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Preference store
	store, err := prefs.Open(cfg.PrefsPath, prefs.Options{})
	if err != nil {
		logger.Error("prefs_open_failed", "path", cfg.PrefsPath, "error", err)
		return 1
	}
	defer store.Close()

	// Event sink
	events := logging.NewSink(logger)
	defer events.Close()

	collector := metrics.NewCollector(metrics.CollectorConfig{Version: version})

	// Engine and decision feed. The feed server is assigned after the
	// engine is built; the snapshot callback reads the variable, which is
	// set before any session starts.
	var feedServer *feed.Server
	engine := session.NewEngine(session.EngineOptions{
		Config:    cfg,
		Clock:     clock.NewReal(),
		Logger:    logger,
		Events:    events,
		Collector: collector,
		Prefs:     store,
		OnSnapshot: func(snap session.Snapshot) {
			if feedServer != nil {
				feedServer.Publish(snap)
			}
		},
	})
	defer engine.Close()

	feedServer = feed.NewServer(feed.Config{
		Addr:     cfg.FeedAddr,
		Logger:   logger,
		Events:   events,
		Sessions: engine,
		Controller: func() feed.Controller {
			if s := engine.Active(); s != nil {
				return s
			}
			return nil
		},
	})
	if err := feedServer.Start(); err != nil {
		logger.Error("feed_server_start_failed", "error", err)
		return 1
	}

	metricsServer := metrics.NewServer(metrics.ServerConfig{
		Addr:   cfg.MetricsAddr,
		Logger: logger,
		Status: func() any { return engine.Aggregate() },
	})
	if err := metricsServer.Start(); err != nil {
		logger.Error("metrics_server_start_failed", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TUIEnabled {
		runTUI(ctx, cfg, engine)
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := feedServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("feed_server_shutdown_failed", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics_server_shutdown_failed", "error", err)
	}

	return 0
}

// runTUI blocks on the operator dashboard until the user quits or the
// context is cancelled.
func runTUI(ctx context.Context, cfg *config.Config, engine *session.Engine) {
	model := tui.New(tui.Config{
		MetricsAddr:    cfg.MetricsAddr,
		FeedAddr:       cfg.FeedAddr,
		MaxAttempts:    cfg.MaxRecoveryAttempts,
		SnapshotSource: engineSnapshots{engine},
		StatsSource:    engine,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
	}
}

// engineSnapshots adapts the engine's active session to the TUI's pull
// interface.
type engineSnapshots struct {
	engine *session.Engine
}

func (e engineSnapshots) Snapshot() (session.Snapshot, bool) {
	active := e.engine.Active()
	if active == nil {
		return session.Snapshot{}, false
	}
	return active.Snapshot(), true
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        playback-sentinel                          ║")
	fmt.Println("║        Playback Resilience Engine for the Household Hub           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	fmt.Printf("  Feed:        ws://%s/ws\n", cfg.FeedAddr)
	fmt.Printf("  Preferences: %s\n", cfg.PrefsPath)
	fmt.Printf("  Stall:       %s (+%s to hard recovery, %d attempts)\n",
		cfg.StallThreshold, cfg.HardRecoverAfterStalled, cfg.MaxRecoveryAttempts)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
