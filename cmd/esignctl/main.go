package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"esign-orchestrator/config"
	"esign-orchestrator/core/environment"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg        *config.Config
	logger     *zap.Logger
	store      environment.PreferenceStore
	closeStore func() error
	resolver   *environment.Resolver
)

var rootCmd = &cobra.Command{
	Use:           "esignctl",
	Short:         "Sign and stamp documents through the e-sign provider",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if logger, err = config.NewLogger(cfg.LogLevel); err != nil {
			return err
		}
		if store, closeStore, err = cfg.OpenPreferenceStore(); err != nil {
			return fmt.Errorf("open preferences: %w", err)
		}
		resolver = environment.NewResolver(store, cfg.Endpoints(), cfg.Overrides(), logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeStore != nil {
			closeStore()
		}
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(signCmd, envCmd, documentsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
