package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/agri-weather-service/internal/config"
	"github.com/kjstillabower/agri-weather-service/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliEnv carries the logger and config loaded once in PersistentPreRunE.
type cliEnv struct {
	logger *zap.Logger
	cfg    *config.Config
}

func newRootCommand() *cobra.Command {
	env := &cliEnv{}
	root := &cobra.Command{
		Use:           "agri-weather",
		Short:         "Weather forecasts and farming alerts for farmers",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			env.logger, env.cfg = logger, cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
		},
	}
	root.AddCommand(
		newServeCommand(env),
		newForecastCommand(env),
		newInvalidateCommand(env),
		newAlertsCommand(env),
	)
	return root
}
