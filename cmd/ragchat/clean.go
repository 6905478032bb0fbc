package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCache bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove transient downloads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		n, err := a.Service.CleanupTemp()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %d temp entries from %s\n", n, a.Config.TempDir)
		if cleanCache && a.Cache != nil {
			purged, err := a.Cache.Purge()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "purged %d cached sources\n", purged)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanCache, "cache", false, "also purge the ingest cache")
	rootCmd.AddCommand(cleanCmd)
}
