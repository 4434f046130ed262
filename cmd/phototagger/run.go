package main

import (
	"github.com/spf13/cobra"

	"github.com/vinitshetty/phototagger/internal/output"
)

var (
	runLimit    int
	runMode     string
	runProvider string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tag one bounded batch of pending photos",
	Long: `Run one bounded batch.

The work catalog and completion ledger are reconciled first. An empty catalog
triggers a full scan; a fully completed catalog triggers one rescan to pick
up new photos. Then up to batch_limit pending photos are classified, tagged
and recorded, pausing after every rate_limit requests.

Examples:
  phototagger run                         # Use config.yaml settings
  phototagger run --limit 50              # Smaller batch
  phototagger run --provider mistral      # Override the provider
  phototagger run --mode incremental -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := applyRunOverrides(a, cmd); err != nil {
			return err
		}

		r, _, err := a.newRunner(true)
		if err != nil {
			a.logger.Error("cannot start run", "error", err)
			return err
		}
		defer r.Close()

		report, err := r.Run(cmd.Context())
		if report != nil {
			if outErr := output.Print(report); outErr != nil {
				return outErr
			}
		}
		return err
	},
}

func applyRunOverrides(a *app, cmd *cobra.Command) error {
	overrides := map[string]any{}
	if cmd.Flags().Changed("limit") {
		overrides["batch_limit"] = runLimit
	}
	if cmd.Flags().Changed("mode") {
		overrides["scan_mode"] = runMode
	}
	if cmd.Flags().Changed("provider") {
		overrides["provider"] = runProvider
	}
	for k, v := range overrides {
		if err := a.manager.Set(k, v); err != nil {
			return err
		}
	}
	a.cfg = a.manager.Get()
	return nil
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "items per run (overrides batch_limit)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "scan mode: backlog or incremental (overrides scan_mode)")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "provider name from the providers section")

	rootCmd.AddCommand(runCmd)
}
