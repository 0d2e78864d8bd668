package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lanternweb/download_manager/internal/config"
	"github.com/lanternweb/download_manager/internal/storage"
	"github.com/lanternweb/download_manager/internal/storage/jsonfile"
	"github.com/lanternweb/download_manager/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or edit the download history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finished downloads, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cfg, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		repo, closeFn, err := openRawHistory(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		records, err := repo.List(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSIZE\tENDED\tPATH")

		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				rec.ID, rec.State, humanize.Bytes(uint64(max(rec.TotalBytes, 0))), humanize.Time(rec.EndTime), rec.Path)
		}

		return w.Flush()
	},
}

var historyRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove history entries by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cfg, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		repo, closeFn, err := openRawHistory(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		for _, id := range args {
			if err := repo.Remove(ctx, id); err != nil {
				return err
			}
		}

		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cfg, err := setup(cmd.Context())
		if err != nil {
			return err
		}

		olderThan, _ := cmd.Flags().GetDuration("older-than")

		scope := storage.ClearAll()
		if olderThan > 0 {
			scope = storage.ClearOlderThan(time.Now().Add(-olderThan))
		}

		repo, closeFn, err := openRawHistory(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		removed, err := repo.Clear(ctx, scope)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)

		return nil
	},
}

func init() {
	historyClearCmd.Flags().Duration("older-than", 0, "only remove entries that ended longer ago than this")

	historyCmd.AddCommand(historyListCmd, historyRemoveCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// openRawHistory opens the configured backend without instrumentation.
func openRawHistory(cfg *config.Config) (storage.HistoryRepository, func(), error) {
	switch cfg.HistoryBackend {
	case config.HistoryBackendSQLite:
		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}

		return sqlite.NewHistoryRepository(db, cfg.HistoryLimit), func() { _ = db.Close() }, nil
	case config.HistoryBackendJSON:
		return jsonfile.NewHistoryRepository(cfg.HistoryPath, cfg.HistoryLimit), func() {}, nil
	}

	return nil, nil, fmt.Errorf("invalid history backend: %s", cfg.HistoryBackend)
}
