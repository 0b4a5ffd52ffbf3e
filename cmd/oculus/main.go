// Command oculus is a voice-driven assistant that answers spoken questions
// about what the webcam sees.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/oculus/internal/app"
	"github.com/MrWong99/oculus/internal/config"
	"github.com/MrWong99/oculus/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config; missing files are ignored")
	logPath := flag.String("log", "", "log file (default: stderr, or oculus.log with the terminal display)")
	check := flag.Bool("check", false, "test the camera and microphone, then exit")
	watch := flag.Bool("watch", true, "reload the assistant persona and log level when the config file changes")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "oculus: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oculus: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logOut, closeLog, err := openLog(*logPath, cfg.Display.Mode == config.DisplayTerminal && !*check)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oculus: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	slog.Info("oculus starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Provider registry ─────────────────────────────────────────────────────
	var owned closerList
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, &owned)
	defer owned.closeAll()

	if *check {
		return runCheck(ctx, cfg, reg)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, telemetryConfig(cfg, version))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = providers.Audio.Close()
		return 1
	}

	// ── Diagnostics server (optional) ─────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newServer(cfg.Server, metrics, application.HealthCheckers())
		go func() {
			if err := serve(srv, cfg.Server.TLS); err != nil {
				slog.Error("diagnostics server stopped", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	if cfg.Display.Mode != config.DisplayTerminal {
		printStartupSummary(os.Stdout, cfg)
	}
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	return cfg, nil
}

// openLog picks the log destination. The terminal display owns stdout and
// stderr, so logs go to a file unless one was named explicitly.
func openLog(path string, terminal bool) (io.Writer, func(), error) {
	if path == "" && terminal {
		path = "oculus.log"
	}
	if path == "" || path == "-" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// closerList collects resources created by provider factories that outlive
// the providers' own lifecycle, such as loaded speech models.
type closerList []io.Closer

func (l *closerList) add(c io.Closer) { *l = append(*l, c) }

func (l *closerList) closeAll() {
	list := *l
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].Close(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         oculus  startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printRow(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printRow(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow(w, "Voice", cfg.Assistant.Voice.ID, "")
	printRow(w, "Camera", cfg.Capture.Backend, cfg.Capture.Device)
	printRow(w, "Audio", cfg.Audio.Backend, "")
	printRow(w, "VAD", cfg.Listener.VAD, "")
	printRow(w, "Queue", string(cfg.Conversation.QueuePolicy), "")
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr, "")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
