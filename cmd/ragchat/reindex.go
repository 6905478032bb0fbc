package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragchat/internal/service"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Reload every source and rebuild the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Service.Initialize(cmd.Context(), true)
		out := cmd.OutOrStdout()
		for _, o := range a.Service.LastOutcomes() {
			fmt.Fprintln(out, service.OutcomeStatus(o))
		}
		fmt.Fprintln(out, service.Status("Index rebuilt.", err))
		if err != nil {
			return err
		}
		if s := a.Service.Summary(); s != "" {
			fmt.Fprintln(out, s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
