package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freightdesk/convoy/internal/agent"
	"github.com/freightdesk/convoy/internal/backend"
	"github.com/freightdesk/convoy/internal/config"
	"github.com/freightdesk/convoy/internal/coordinator"
	"github.com/freightdesk/convoy/internal/debounce"
	"github.com/freightdesk/convoy/internal/dispatch"
	"github.com/freightdesk/convoy/internal/gateway"
	"github.com/freightdesk/convoy/internal/history"
	"github.com/freightdesk/convoy/internal/httpapi"
	"github.com/freightdesk/convoy/internal/lifecycle"
	"github.com/freightdesk/convoy/internal/maintenance"
	"github.com/freightdesk/convoy/internal/media"
	"github.com/freightdesk/convoy/internal/store"
	"github.com/freightdesk/convoy/internal/store/pg"
	"github.com/freightdesk/convoy/internal/store/sqlite"
	"github.com/freightdesk/convoy/internal/telemetry"
)

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("storage setup failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	// Backend credentials: fetched lazily, cached with a TTL, refetched
	// after a 401. The token itself lives in the environment.
	backendCreds := backend.NewCachedCredentialProvider(func(context.Context) (string, error) {
		token := os.Getenv("CONVOY_BACKEND_TOKEN")
		if token == "" {
			return "", fmt.Errorf("CONVOY_BACKEND_TOKEN environment variable is not set")
		}
		return token, nil
	}, cfg.Backend.CredentialTTL())

	backendClient := backend.NewClient(cfg.Backend.BaseURL, backendCreds, cfg.Backend.Timeout())
	chatClient := backend.NewChatClient(cfg.Chat.BaseURL,
		backend.StaticCredentialProvider(cfg.Chat.Token), cfg.Chat.Timeout())

	converters := media.NewHTTPConverters(
		cfg.Media.TranscribeURL, cfg.Media.OCRURL, cfg.Media.SynthesizeURL, cfg.Media.GeocodeURL,
		cfg.Media.Timeout())
	renderer := media.NewRenderer(converters, converters, converters)

	agentClient := agent.NewClient(cfg.Agent.BaseURL, cfg.Agent.Token,
		cfg.Agent.Timeout(), cfg.Agent.RateLimitRPM, cfg.Agent.MaxRetries)

	sender := gateway.NewClient(gateway.StaticResolver(cfg.Gateway.BaseURL),
		cfg.Gateway.BaseURL, cfg.Gateway.Timeout())

	lc := lifecycle.NewManager(stores.Ledger, cfg.Session.Window(), cfg.Session.MemoryWindow())
	hist := history.NewService(stores.History, cfg.History.Limit())
	dispatcher := dispatch.NewDispatcher(lc, hist, stores.Ledger,
		backendClient, backendClient, agentClient, sender, converters)

	// The scheduler fires back into the pipeline, which does not exist yet
	// when the scheduler is built; the closure covers the cycle.
	var pipeline *coordinator.Pipeline
	sched := debounce.NewTimerScheduler(func(ctx context.Context, contact string, fencing float64) {
		if err := pipeline.HandleWakeup(ctx, contact, fencing); err != nil {
			slog.Error("wakeup processing failed", "contact", contact, "error", err)
		}
	})
	defer sched.Close()

	coord := debounce.NewCoordinator(stores.Debounce, sched,
		cfg.Debounce.InitialDelay(), cfg.Debounce.ExtensionDelay())
	pipeline = coordinator.NewPipeline(coord, renderer, dispatcher, hist, chatClient)

	maint := maintenance.NewJob(stores, cfg.Maintenance.BatchStaleAfter(), cfg.Session.MemoryWindow())
	if err := maint.Start(cfg.Maintenance.CronSpec); err != nil {
		slog.Error("maintenance setup failed", "error", err)
		os.Exit(1)
	}
	defer maint.Stop()

	mux := http.NewServeMux()
	httpapi.NewHandler(pipeline, cfg.Server).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("convoy listening", "addr", srv.Addr, "mode", cfg.Database.Mode, "version", Version)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		slog.Warn("telemetry flush failed", "error", err)
	}
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	switch {
	case cfg.IsManagedMode():
		slog.Info("storage: postgres (managed mode)")
		return pg.NewPGStores(store.Config{Backend: "postgres", DSN: cfg.Database.PostgresDSN})
	case cfg.Database.Mode == "memory":
		slog.Warn("storage: in-memory, nothing survives a restart")
		return store.NewMemoryStores(), nil
	default:
		slog.Info("storage: sqlite (standalone mode)", "path", cfg.Database.SQLitePath)
		return sqlite.NewSQLiteStores(store.Config{Backend: "sqlite", Path: cfg.Database.SQLitePath})
	}
}
