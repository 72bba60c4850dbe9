// Command slackfm is the main entrypoint for the Last.fm to Slack presence
// bridge. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the encrypted credential store and restarts mirroring workers
//     for every account that survives startup reconciliation.
//   - Exposes the HTTP server with the slash command, the OAuth callback,
//     health probes, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Suyashtnt/slackfm/config"
	"github.com/Suyashtnt/slackfm/lastfm"
	"github.com/Suyashtnt/slackfm/presence"
	"github.com/Suyashtnt/slackfm/server"
	"github.com/Suyashtnt/slackfm/slackapi"
	"github.com/Suyashtnt/slackfm/store"
	"github.com/Suyashtnt/slackfm/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("slackfm", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Credential store. A decrypt failure is fatal: better to stop than to
	// silently start over with an empty store and orphan every linked account.
	st, err := store.Open(cfg.StorePath, cfg.StorePassphrase)
	if err != nil {
		slog.Error("failed to open credential store", slog.String("path", cfg.StorePath), slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("credential store opened", slog.String("path", cfg.StorePath), slog.Int("records", st.Len()))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := presence.Deps{
		LastFM: &lastfm.Client{APIKey: cfg.LastFMAPIKey},
		Slack: &slackapi.App{
			ClientID:     cfg.SlackClientID,
			ClientSecret: cfg.SlackClientSecret,
			RedirectURI:  cfg.SlackRedirectURI,
		},
		Interval: cfg.PollInterval,
	}
	sup := presence.NewSupervisor(ctx)

	// Validate stored accounts and restart their workers.
	presence.Reconcile(ctx, st, sup, deps)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (slash command, OAuth callback, health, metrics). A bind
	// failure is fatal: without the HTTP boundary there is no way to receive
	// commands, so running on would leave the process headless.
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx, server.Deps{Cfg: cfg, Store: st, Sup: sup, Worker: deps}, cfg.HTTPAddr); err != nil {
			serverErr <- err
		}
	}()
	slog.Info("slackfm up", slog.String("addr", cfg.HTTPAddr), slog.Duration("poll_interval", cfg.PollInterval))

	// Block until shutdown signal or server failure
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		slog.Error("http server failed", slog.Any("err", err))
		stop()
		os.Exit(1)
	}

	// Workers share the root context, so they are already stopping; give
	// them a bounded window to finish before the process exits.
	sup.CancelAll()
	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		slog.Warn("workers did not stop in time")
	}
}
