package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lanternweb/download_manager/internal/config"
	"github.com/lanternweb/download_manager/internal/logctx"
	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "download_manager",
	Short:         "Tracks browser-engine downloads from first byte to history",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "err", err)
		stop()
		os.Exit(1)
	}
}

// setup loads the configuration and installs the JSON logger used by every
// command.
func setup(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return ctx, nil, err
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	return logctx.WithLogger(ctx, logger), cfg, nil
}
