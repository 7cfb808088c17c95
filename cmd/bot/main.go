package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pavelc4/aether-fetch/config"
	"github.com/pavelc4/aether-fetch/internal/app"
	"github.com/pavelc4/aether-fetch/pkg/logger"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:], os.Stderr))
}

// execute runs the CLI and returns the process exit code. Errors are
// printed here since the root command silences cobra's own output.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aether",
		Short:         "Telegram media download bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Start the Telegram bot",
			Args:  cobra.NoArgs,
			RunE:  runBot,
		},
		newFetchCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "aether", version)
			},
		},
	)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Setup(cfg.LogLevel, cfg.LogFile)
	return cfg, nil
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}

	logger.Info("Starting bot", "version", version)
	if err := a.Start(cmd.Context()); err != nil {
		logger.Error("Bot stopped with error", "error", err)
		return err
	}
	logger.Info("Shutting down...")
	return nil
}
