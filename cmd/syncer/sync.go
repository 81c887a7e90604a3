package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"wpsync/internal/domain"
)

var previewSync bool

var syncCmd = &cobra.Command{
	Use:   "sync <type> <id>",
	Short: "Fetch one item and create or update its record",
	Example: `  syncer sync post 42
  syncer sync page 7 --preview`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			outcome, err := a.reconciler.SyncOne(ctx, args[0], args[1], previewSync)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], outcome)
			return nil
		})
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "sync-all [type]",
	Short: "Reconcile every item of a content type, or of all types",
	Long: `Fetch the full collection of a content type and reconcile it with the
local records. Records missing from the fetched set are deleted. Without a
type every collection and the options record are synced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if len(args) == 1 {
				stats, err := a.reconciler.SyncAll(ctx, args[0])
				if stats != nil {
					printStats(cmd.OutOrStdout(), stats)
				}
				return err
			}

			all, err := a.reconciler.SyncEverything(ctx)
			for _, stats := range all {
				printStats(cmd.OutOrStdout(), stats)
			}
			return err
		})
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Sync the site options record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			outcome, err := a.reconciler.SyncOptions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "options: %s\n", outcome)
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge <type> <id>",
	Short: "Delete one local record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			outcome, err := a.reconciler.Purge(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], outcome)
			return nil
		})
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish <type> <id>",
	Short: "Mark one local record as draft",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			outcome, err := a.reconciler.Unpublish(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], outcome)
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Print a local record as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			rec, err := a.records.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%s %s: no local record", args[0], args[1])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		})
	},
}

func init() {
	syncCmd.Flags().BoolVar(&previewSync, "preview", false, "fetch the preview revision")

	rootCmd.AddCommand(syncCmd, syncAllCmd, optionsCmd, purgeCmd, unpublishCmd, showCmd)
}

// withApp runs fn with a wired app and a context bounded by the job timeout.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := a.cfg.Scheduler.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return fn(ctx, a)
}

func printStats(w io.Writer, stats *domain.SyncStats) {
	fmt.Fprintf(w, "%s: pages=%d fetched=%d created=%d updated=%d deleted=%d errors=%d truncated=%t duration=%s\n",
		stats.ContentType,
		stats.Pages,
		stats.Fetched,
		stats.Created,
		stats.Updated,
		stats.Deleted,
		stats.Errors,
		stats.Truncated,
		stats.Duration.Round(time.Millisecond),
	)
}
