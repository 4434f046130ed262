package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinitshetty/phototagger/internal/config"
	"github.com/vinitshetty/phototagger/internal/watch"
)

var (
	watchDebounce time.Duration
	watchInterval time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run batches whenever new photos arrive",
	Long: `Watch the photo root and run a batch when images are added or changed.

A batch also runs at start and every --interval, so a backlog larger than
batch_limit keeps draining one batch per interval. Runs never overlap.
Provider settings in the config file are reloaded while watching.

Examples:
  phototagger watch                       # Daily batches plus new arrivals
  phototagger watch --interval 1h --debounce 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, registry, err := a.newRunner(true)
		if err != nil {
			a.logger.Error("cannot start watch", "error", err)
			return err
		}
		defer r.Close()

		a.manager.OnChange(func(cfg *config.Config) {
			registry.Reload(cfg.ProviderConfigs())
			a.logger.Info("config reloaded", "providers", registry.List())
		})
		a.manager.WatchConfig()

		w, err := watch.New(r.Root(), func(ctx context.Context) error {
			_, err := r.Run(ctx)
			return err
		}, watch.Config{
			Debounce:   watchDebounce,
			Interval:   watchInterval,
			RunOnStart: true,
			Exclude:    a.cfg.Exclude,
			Known:      r.Known,
			Logger:     a.logger,
		})
		if err != nil {
			return err
		}
		return w.Run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 5*time.Second, "quiet period after changes before a run")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 24*time.Hour, "periodic run interval (0 disables)")

	rootCmd.AddCommand(watchCmd)
}
