package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragchat/internal/app"
	"ragchat/internal/config"
	"ragchat/internal/domain"
	"ragchat/internal/env"
	"ragchat/internal/logging"
	"ragchat/internal/tui"
)

var (
	cfgPath string
	verbose bool
	watch   bool
)

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with your PDFs, YouTube videos and web pages",
	Long: `ragchat indexes the documents in the sources directory and answers
questions about them with a chat model. Without a subcommand it opens the
interactive chat.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/ragchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "rebuild the index when files in the sources directory change")
}

// setup loads .env and config and wires the application. The TUI owns the
// terminal, so it logs to a file.
func setup(ctx context.Context, logToFile bool) (*app.App, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if _, err := env.Load(wd); err != nil {
		return nil, err
	}
	var cfg *config.AppConfig
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if logToFile && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "ragchat.log")
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger)
}

// start brings the service up, tolerating an empty sources directory.
func start(ctx context.Context, a *app.App) error {
	err := a.Service.Start(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoDocuments) {
		return err
	}
	return nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := setup(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if n, err := a.Service.CleanupTemp(); err != nil {
		a.Logger.Warn("temp cleanup", zap.Error(err))
	} else if n > 0 {
		a.Logger.Info("removed stale temp files", zap.Int("count", n))
	}
	if err := start(ctx, a); err != nil {
		// The shell still opens so sources can be added.
		a.Logger.Error("initialize", zap.Error(err))
	}

	var changes <-chan struct{}
	if watch {
		changes, err = tui.Watch(ctx, a.Config.SourcesDir, 750*time.Millisecond, a.Logger.Named("watch"))
		if err != nil {
			return fmt.Errorf("watch %s: %w", a.Config.SourcesDir, err)
		}
	}

	_, err = tea.NewProgram(tui.New(ctx, a.Service, changes), tea.WithAltScreen()).Run()
	return err
}
