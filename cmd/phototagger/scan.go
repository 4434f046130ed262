package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinitshetty/phototagger/internal/output"
)

var scanRebuild bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Refresh the work catalog without tagging",
	Long: `Walk the photo tree and merge newly found photos into the work catalog.

With --rebuild the catalog is replaced by a full backlog walk, dropping
entries whose files no longer exist. The completion ledger is never touched.`,
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

		n, err := r.Scan(cmd.Context(), scanRebuild)
		if err != nil {
			return err
		}

		key := "added"
		if scanRebuild {
			key = "catalog"
		}
		if !output.IsStructured() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", key, n)
			return nil
		}
		return output.Print(map[string]int{key: n})
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanRebuild, "rebuild", false, "replace the catalog with a fresh full walk")

	rootCmd.AddCommand(scanCmd)
}
