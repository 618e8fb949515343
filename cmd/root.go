// Package cmd defines and implements the CLI commands for the scqc executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/api"
	"github.com/JakeFAU/scqc/internal/app"
	"github.com/JakeFAU/scqc/internal/config"
	"github.com/JakeFAU/scqc/internal/logging"
	"github.com/JakeFAU/scqc/internal/stage"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. It lets tests
// inject a fake container.
type App interface {
	Close(ctx context.Context)
	Logger() *zap.Logger
	Config() config.Config
	Engine(kind stage.Kind) (*stage.Engine, error)
	Search(ctx context.Context, term string, maxResults int, out string) (int, int, error)
	Server(engines ...*stage.Engine) *api.Server
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type rootFlags struct {
	cfgFile string
	debug   bool
	verbose bool
	ncycles int
	setup   bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "scqc",
		Short: "Single-cell RNA-seq metadata and data pipeline.",
		Long: `scqc drives the staged single-cell pipeline: query pulls experiment
metadata from the sequence read archive, impute labels each project's library
technology, download prefetches every run, and analysis/statistics follow.
Each stage loops over the difference between its todo and done lists.`,
		SilenceUsage: true,

		// Build the application once the flags are parsed and before the
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.cfgFile)
			if err != nil {
				return err
			}
			cfg = cfg.WithCycleLimit(flags.ncycles)
			level := logging.LevelFromFlags(flags.debug, flags.verbose, cfg.Logging.Level)
			logger, err := logging.New(cfg.Logging.Development, level)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
				_ = appInstance.Logger().Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.cfgFile, "config", "c", "", "config file (yaml, toml or json)")
	pf.BoolVarP(&flags.debug, "debug", "d", false, "debug logging")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "info logging")
	pf.IntVarP(&flags.ncycles, "ncycles", "n", -1, "stop every stage after n cycles (0 = run forever)")
	pf.BoolVar(&flags.setup, "setup", false, "create the stage's working directories and exit")

	for _, kind := range stage.Kinds() {
		cmd.AddCommand(newStageCmd(kind, flags))
	}
	cmd.AddCommand(newSearchCmd())
	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM stop the running stage
// after its in-flight batch.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
