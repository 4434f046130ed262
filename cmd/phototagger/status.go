package main

import (
	"github.com/spf13/cobra"

	"github.com/vinitshetty/phototagger/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalog, ledger and pending counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		r, _, err := a.newRunner(false)
		if err != nil {
			return err
		}
		defer r.Close()

		return output.Print(r.Status(cmd.Context()))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
