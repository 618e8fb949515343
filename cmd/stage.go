package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scqc/internal/stage"
)

var stageShort = map[stage.Kind]string{
	stage.KindQuery:      "Fetch and classify experiment metadata for queued catalog UIDs",
	stage.KindImpute:     "Re-derive technology labels for queued projects",
	stage.KindDownload:   "Prefetch every run of queued projects",
	stage.KindAnalysis:   "Run the analysis stage",
	stage.KindStatistics: "Run the statistics stage",
}

// newStageCmd creates the subcommand that runs one stage's engine loop.
func newStageCmd(kind stage.Kind, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   kind.String(),
		Short: stageShort[kind],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd.Context(), kind, flags.setup)
		},
	}
}

func runStage(ctx context.Context, kind stage.Kind, setupOnly bool) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	engine, err := appInstance.Engine(kind)
	if err != nil {
		return err
	}
	if setupOnly {
		if err := engine.Stage().RunSetup(ctx); err != nil {
			return err
		}
		logger.Info("setup complete", zap.String("stage", kind.String()))
		return nil
	}

	cfg := appInstance.Config()
	if !cfg.Server.Enabled {
		return engine.Run(ctx)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(srvCtx)
	g.Go(func() error {
		err := appInstance.Server(engine).Serve(gctx, fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			engine.Stop()
		}
		return err
	})
	g.Go(func() error {
		// The server follows the engine: when the loop ends, shut it down.
		defer cancel()
		return engine.Run(ctx)
	})
	return g.Wait()
}
