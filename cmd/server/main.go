package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pauljones0/production-scout/internal/ai"
	"github.com/pauljones0/production-scout/internal/api"
	"github.com/pauljones0/production-scout/internal/catalog"
	"github.com/pauljones0/production-scout/internal/config"
	"github.com/pauljones0/production-scout/internal/metrics"
	"github.com/pauljones0/production-scout/internal/notifier"
	"github.com/pauljones0/production-scout/internal/processor"
	"github.com/pauljones0/production-scout/internal/scheduler"
	"github.com/pauljones0/production-scout/internal/sources"
	"github.com/pauljones0/production-scout/internal/status"
	"github.com/pauljones0/production-scout/internal/storage"
)

func main() {
	slog.Info("Starting production scout server...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	blobs, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize %s storage: %w", cfg.StorageBackend, err)
	}
	defer blobs.Close()
	state := storage.NewState(blobs)

	defs, err := sources.LoadDefinitions(cfg.SourcesConfigPath)
	if err != nil {
		return fmt.Errorf("load source definitions: %w", err)
	}

	browser := sources.NewPlaywrightFetcher()
	defer func() {
		if err := browser.Close(); err != nil {
			slog.Warn("Failed to close playwright browser", "error", err)
		}
	}()
	registry, err := sources.NewRegistry(defs, map[sources.FetchMode]sources.Fetcher{
		sources.FetchHTTP:       sources.NewHTTPFetcher(),
		sources.FetchChromedp:   sources.NewChromedpFetcher(),
		sources.FetchPlaywright: browser,
	})
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}

	// Persisted state is best-effort: a failed load starts empty.
	saved, err := state.LoadCatalog(ctx)
	if err != nil {
		slog.Warn("Failed to load catalog, starting empty", "error", err)
	}
	cat := catalog.New(saved)

	tracker := status.NewTracker(registry.IDs())
	statuses, err := state.LoadStatuses(ctx)
	if err != nil {
		slog.Warn("Failed to load source statuses, starting idle", "error", err)
	}
	tracker.Restore(statuses)
	slog.Info("State restored", "postings", cat.Len(), "sources", len(registry.IDs()))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(promRegistry)

	opts := []processor.Option{
		processor.WithMetrics(m),
		processor.WithRetrieveTimeout(cfg.ScrapeTimeout),
	}

	gemini, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Warn("Failed to initialize Gemini client, AI summaries disabled", "error", err)
	} else if gemini != nil {
		opts = append(opts, processor.WithEnricher(gemini))
	}

	discord := notifier.New(cfg.DiscordWebhookURL, notifier.WithThresholds(cfg.NotifyMinTier, cfg.NotifyMinVfx))
	if discord.Enabled() {
		opts = append(opts, processor.WithNotifier(discord))
	}

	pipeline := processor.New(registry, cat, tracker, state, opts...)

	var sched *scheduler.Scheduler
	if cfg.ScrapeSchedule != "" {
		sched = scheduler.New(cfg.ScrapeSchedule, func(ctx context.Context) {
			for _, res := range pipeline.ScrapeAll(ctx) {
				if !res.Success {
					slog.Warn("Scheduled scrape failed", "source", res.Source, "error", res.Error)
				}
			}
		}, cfg.ScrapeOnStart)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		slog.Info("SCRAPE_SCHEDULE empty, periodic scraping disabled")
	}

	handler := api.NewHandler(cat, pipeline, promRegistry)
	srv := api.NewServer(api.ServerConfig{
		Port:  cfg.Port,
		Debug: cfg.LogLevel <= slog.LevelDebug,
	}, func(r *gin.Engine) { handler.Register(r) })

	errCh := srv.StartAsync()
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		slog.Info("Received signal, shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		return storage.NewFirestoreStore(ctx, cfg.ProjectID, cfg.FirestoreCredentialsFile)
	case config.StorageRedis:
		return storage.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return storage.NewFileStore(cfg.DataDir)
	}
}
