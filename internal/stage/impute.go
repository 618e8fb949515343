package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/classify"
	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/storage/tsv"
)

// ImputeDeps wires the impute stage.
type ImputeDeps struct {
	Classifier *classify.Classifier
	Metadata   *tsv.Store
	Logger     *zap.Logger
}

// NewImpute builds the stage that re-derives each project's technology labels
// from its stored metadata and writes the per-project impute table.
func NewImpute(name string, cfg Config, deps ImputeDeps) (Stage, error) {
	if deps.Classifier == nil || deps.Metadata == nil {
		return Stage{}, fmt.Errorf("impute stage requires classifier and metadata store")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(name)
	execute := func(ctx context.Context, batch []string) []string {
		return ForEach(ctx, batch, logger, func(_ context.Context, project string) error {
			records, err := deps.Metadata.ReadProject(project)
			if err != nil {
				return fmt.Errorf("read project %s: %w", project, err)
			}
			deps.Classifier.ClassifyRecords(records)
			for i := range records {
				records[i].Status = pipeline.StatusImputed
			}
			if err := deps.Metadata.WriteImpute(project, records); err != nil {
				return fmt.Errorf("write impute %s: %w", project, err)
			}
			logger.Debug("project imputed", zap.String("id", project), zap.Int("records", len(records)))
			return nil
		})
	}
	return Stage{
		Name:    name,
		Kind:    KindImpute,
		Config:  cfg,
		Execute: execute,
		Setup: func(context.Context) error {
			return mkdirs(deps.Metadata.Dir())
		},
	}, nil
}
