package stage

import (
	"context"

	"go.uber.org/zap"
)

// NewPlaceholder builds a stage that schedules normally but finishes nothing.
// Analysis and statistics use it until their executors exist; their setup
// still creates the configured directories.
func NewPlaceholder(name string, kind Kind, cfg Config, dirs []string, logger *zap.Logger) Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(name)
	return Stage{
		Name:   name,
		Kind:   kind,
		Config: cfg,
		Execute: func(_ context.Context, batch []string) []string {
			if len(batch) > 0 {
				logger.Debug("no executor for stage", zap.Int("batch", len(batch)))
			}
			return nil
		},
		Setup: func(context.Context) error {
			return mkdirs(dirs...)
		},
	}
}
