package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ragchat/internal/chain"
	"ragchat/internal/service"
)

var askOnce bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question from the indexed sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.Service.Start(ctx); err != nil {
			return err
		}

		question := strings.Join(args, " ")
		var ans chain.Answer
		if askOnce {
			ans, err = a.Service.AskOnce(ctx, question)
		} else {
			ans, err = a.Service.Ask(ctx, service.NewSession(), question)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ans.Text)
		for _, src := range ans.SourceNames() {
			fmt.Fprintln(out, "  source:", src)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askOnce, "once", false, "single-shot QA without conversational memory")
	rootCmd.AddCommand(askCmd)
}
