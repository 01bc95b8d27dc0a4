package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatnest-server/internal/app"
	"github.com/vovakirdan/chatnest-server/internal/config"
	"github.com/vovakirdan/chatnest-server/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, overrides)
		},
	}
	flags := serve.Flags()
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.Log.Level, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&overrides.Store.Driver, "store", "", "message store driver (sqlite, mongo)")
	flags.StringVar(&overrides.Uploads.Dir, "uploads-dir", "", "directory for uploaded files")

	root := &cobra.Command{
		Use:           "chatnest",
		Short:         "Real-time one-to-one messaging server",
		SilenceUsage:  true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	root.Flags().AddFlagSet(flags)

	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func runServe(parent context.Context, configPath string, overrides config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.New("info", "console")
	cfg, resolvedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info().Str("config", resolvedPath).Str("version", version).Msg("configuration loaded")

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting chatnest server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
