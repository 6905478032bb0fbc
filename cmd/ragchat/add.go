package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

var addCmd = &cobra.Command{
	Use:   "add <kind> <location>",
	Short: "Add a source and update the index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseSourceKind(args[0])
		if err != nil {
			return err
		}
		if kind == domain.KindPDF {
			return addPDFCmd.RunE(cmd, args[1:])
		}
		return runAdd(cmd, func(svc *service.Service) (service.AddResult, error) {
			return svc.AddURL(cmd.Context(), args[1], kind)
		})
	},
}

var addPDFCmd = &cobra.Command{
	Use:   "pdf <path>",
	Short: "Copy a PDF into the sources directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		return runAdd(cmd, func(svc *service.Service) (service.AddResult, error) {
			return svc.UploadPDF(cmd.Context(), data, filepath.Base(args[0]))
		})
	},
}

var addYouTubeCmd = &cobra.Command{
	Use:   "youtube <url>",
	Short: "Transcribe a YouTube video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdd(cmd, func(svc *service.Service) (service.AddResult, error) {
			return svc.AddURL(cmd.Context(), args[0], domain.KindYouTube)
		})
	},
}

var addURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Fetch a web page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAdd(cmd, func(svc *service.Service) (service.AddResult, error) {
			return svc.AddURL(cmd.Context(), args[0], domain.KindURL)
		})
	},
}

func runAdd(cmd *cobra.Command, add func(*service.Service) (service.AddResult, error)) error {
	a, err := setup(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := start(cmd.Context(), a); err != nil {
		return err
	}
	res, err := add(a.Service)
	fmt.Fprintln(cmd.OutOrStdout(), service.AddStatus(res, err))
	return err
}

func init() {
	addCmd.AddCommand(addPDFCmd, addYouTubeCmd, addURLCmd)
	rootCmd.AddCommand(addCmd)
}
