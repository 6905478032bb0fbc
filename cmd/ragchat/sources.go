package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragchat/internal/domain"
	"ragchat/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the sources directory as the loader classifies it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		srcs, err := a.Service.Sources()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(srcs) == 0 {
			fmt.Fprintln(out, "no sources in", a.Config.SourcesDir)
			return nil
		}
		for _, d := range srcs {
			loc := d.Location
			if d.Kind != domain.KindPDF {
				if u, err := source.ReadPointer(d.Location); err == nil {
					loc = u
				}
			}
			fmt.Fprintf(out, "%-8s %s\n", d.Kind, loc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
