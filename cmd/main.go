package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"merge-notifier/internal/config"
	"merge-notifier/internal/github"
	"merge-notifier/internal/logger"
	"merge-notifier/internal/notifier"
	"merge-notifier/internal/report"
	"merge-notifier/pkg/models"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	envFile    string
	dryRun     bool
	hours      int
	force      bool
	noColor    bool
}

func main() {
	opts := &options{}
	rootCmd := newRootCmd(opts, os.Stdout)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		slog.Info("Shutting down gracefully...")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		report.New(os.Stderr, opts.noColor).Failed(err)
		os.Exit(1)
	}
}

func newRootCmd(opts *options, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-notifier",
		Short: "Celebrate pull requests merged in the last hours",
		Long: "merge-notifier collects the pull requests merged across a set of GitHub repositories\n" +
			"within a trailing time window and posts a summary to Slack, Teams or email.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, out)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML or TOML configuration file")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Fetch and report merged PRs without sending notifications")
	cmd.Flags().IntVar(&opts.hours, "hours", 0, "Override the merge window in hours")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Notify even if the notification interval has not elapsed")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable coloured output")

	return cmd
}

// run performs one fetch-and-notify cycle
func run(ctx context.Context, opts *options, out io.Writer) error {
	if opts.envFile != "" {
		if err := config.LoadDotEnv(opts.envFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.hours != 0 {
		cfg.PRFilter.MergeWindowHours = config.Hours(opts.hours)
	}
	if err := cfg.Validate(!opts.dryRun); err != nil {
		return err
	}

	logger.Init(cfg)
	logger.StartRun()

	repos, err := cfg.RepositoryRefs()
	if err != nil {
		return err
	}
	hoursBack := int(cfg.PRFilter.MergeWindowHours)

	slog.Info("Merge notifier started",
		"repositories", len(repos),
		"merge_window_hours", hoursBack,
		"dry_run", opts.dryRun,
		"log_file", cfg.Log.File,
		"log_level", cfg.Log.Level,
	)

	client := github.NewClient(cfg)
	if err := client.TestConnection(ctx); err != nil {
		slog.Error("GitHub connection test failed", "error", err)
		return err
	}
	slog.Info("GitHub connection test succeeded")

	printer := report.New(out, opts.noColor)
	printer.Start(repos, hoursBack)

	fetcher := github.NewFetcher(client,
		github.WithMaxPerRepo(cfg.GitHub.MaxPRsPerRepo),
		github.WithWorkers(cfg.GitHub.Concurrency),
	)
	result := fetcher.Fetch(ctx, repos, hoursBack)
	if err := ctx.Err(); err != nil {
		return err
	}

	prs := github.FilterPRs(result.PullRequests, cfg.PRFilter.IgnoreKeywords)
	slog.Info("Total merged PRs found", "total", len(result.PullRequests), "after_keyword_filter", len(prs))
	printer.Result(result, prs)

	if opts.dryRun {
		printer.Skipped("dry run")
		printer.Done()
		return nil
	}

	store := &models.FileNotificationStateStore{Path: cfg.Notification.StateFile}
	if reason, err := intervalPending(cfg, store, opts.force, time.Now()); err != nil {
		return err
	} else if reason != "" {
		slog.Info("No notification sent (interval not reached)", "reason", reason)
		printer.Skipped(reason)
		printer.Done()
		return nil
	}

	if err := notify(ctx, notifier.FromConfig(cfg), prs, hoursBack); err != nil {
		return err
	}

	if len(prs) > 0 && cfg.Notification.StateFile != "" {
		if err := store.SetLastNotificationTime(time.Now()); err != nil {
			slog.Error("Error updating last notification time", "error", err)
		}
	}

	printer.Done()
	return nil
}

// intervalPending returns a non-empty reason when the last delivery is more
// recent than the configured notification interval.
func intervalPending(cfg *config.Config, store *models.FileNotificationStateStore, force bool, now time.Time) (string, error) {
	if force || cfg.Notification.IntervalHours <= 0 || cfg.Notification.StateFile == "" {
		return "", nil
	}

	lastNotified, err := store.GetLastNotificationTime()
	if err != nil {
		return "", err
	}
	if lastNotified.IsZero() {
		return "", nil
	}

	interval := cfg.Notification.IntervalHours.Duration()
	if elapsed := now.Sub(lastNotified); elapsed < interval {
		return fmt.Sprintf("last notification sent %s ago, interval is %s",
			elapsed.Truncate(time.Minute), interval), nil
	}
	return "", nil
}

// notify delivers to every notifier; one failing destination does not stop
// the others.
func notify(ctx context.Context, notifiers []notifier.Notifier, prs []models.MergedPullRequest, hoursBack int) error {
	var errs []error
	for _, n := range notifiers {
		if err := n.Notify(ctx, prs, hoursBack); err != nil {
			slog.Error("Error notifying", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
