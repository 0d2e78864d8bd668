package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lanternweb/download_manager/internal/cleanup"
	"github.com/lanternweb/download_manager/internal/config"
	"github.com/lanternweb/download_manager/internal/engine"
	"github.com/lanternweb/download_manager/internal/http/rest"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/lanternweb/download_manager/internal/notifier"
	"github.com/lanternweb/download_manager/internal/savepath"
	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/lanternweb/download_manager/internal/telemetry"
	"github.com/lanternweb/download_manager/internal/transfer"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download manager service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cfg, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("download manager starting...",
		"log_level", cfg.LogLevel,
		"download_dir", cfg.DownloadDir,
		"history_backend", cfg.HistoryBackend,
	)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start History
	history, closeHistory, err := openHistory(cfg, tel)
	if err != nil {
		return err
	}
	defer closeHistory()

	// =========================================================================
	// Start Registry
	resolver := savepath.NewResolver()
	notif := notifier.NewEventNotifier(cfg.EventBuffer, history, tel)
	registry := transfer.NewRegistry(cfg.DownloadDir, resolver, notif, transfer.WithTelemetry(tel))
	stream := rest.NewEventStream()

	sinks := []notifier.Sink{stream}
	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, notifier.NewCompletionSink(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL), tel))
	}

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, cfg, tel, rest.DownloadHandlerConfig{
		Username:     cfg.Web.Username,
		Password:     cfg.Web.Password,
		Manager:      transfer.NewManager(registry),
		Registry:     registry,
		Dispatcher:   transfer.NewDispatcher(registry, tel),
		Resolver:     resolver,
		History:      history,
		Stream:       stream,
		Telemetry:    tel,
		EngineClient: engine.NewHTTPClient(),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return notif.Run(ctx, sinks...)
	})

	g.Go(func() error {
		return cleanup.Run(ctx, history, cfg.CleanupInterval, cfg.KeepHistoryFor)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		resolver.Flush()

		return nil
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, hc rest.DownloadHandlerConfig) *http.Server {
	dHandler := rest.NewDownloadHandler(hc)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", tel.Handler())
	r.Mount("/", dHandler.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "download_manager"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

// openHistory builds the configured history store, wrapped with telemetry.
func openHistory(cfg *config.Config, tel *telemetry.Telemetry) (storage.HistoryRepository, func(), error) {
	repo, closeFn, err := openRawHistory(cfg)
	if err != nil {
		return nil, nil, err
	}

	return storage.NewInstrumentedHistoryRepository(repo, tel), closeFn, nil
}
