package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateLedgerCmd = &cobra.Command{
	Use:   "migrate-ledger FILE",
	Short: "Import a legacy completed-files log into the ledger",
	Long: `Import a legacy completion log holding one absolute path per line.

Paths are normalized to identities relative to the anchor segment, so a log
written on another machine or OS still matches. Identities already in the
ledger are left alone.

Example:
  phototagger migrate-ledger ./completed_files.log`,
	Args: cobra.ExactArgs(1),
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

		added, err := r.ImportLegacy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d completed photos\n", added)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateLedgerCmd)
}
