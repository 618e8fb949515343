package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/dispatcher"
	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/runner"
	"github.com/JakeFAU/scqc/internal/storage/tsv"
)

// RunLister returns the run accessions recorded for a project.
type RunLister interface {
	Runs(project string) ([]string, error)
}

// DownloadDeps wires the download stage.
type DownloadDeps struct {
	Runs   RunLister
	Runner runner.Runner
	// MaxDownloads is the worker count of the pool.
	MaxDownloads int
	Prefetch     runner.PrefetchOptions
	// Fasterq is used only when ConvertFastq is set.
	Fasterq      runner.FasterqOptions
	ConvertFastq bool
	Logger       *zap.Logger
}

type downloadStage struct {
	deps   DownloadDeps
	logger *zap.Logger
}

// NewDownload builds the stage that prefetches every run of a project through
// the worker pool. A project finishes only when all its run jobs succeed.
func NewDownload(name string, cfg Config, deps DownloadDeps) (Stage, error) {
	if deps.Runs == nil || deps.Runner == nil {
		return Stage{}, fmt.Errorf("download stage requires run lister and runner")
	}
	if deps.MaxDownloads < 1 {
		deps.MaxDownloads = 1
	}
	if deps.Prefetch.Program == "" {
		deps.Prefetch.Program = "prefetch"
	}
	if deps.Fasterq.Program == "" {
		deps.Fasterq.Program = "fasterq-dump"
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	d := &downloadStage{deps: deps, logger: deps.Logger.Named(name)}
	return Stage{
		Name:    name,
		Kind:    KindDownload,
		Config:  cfg,
		Execute: d.execute,
		Setup: func(context.Context) error {
			return mkdirs(deps.Prefetch.OutDir, deps.Fasterq.OutDir)
		},
	}, nil
}

func (d *downloadStage) execute(ctx context.Context, batch []string) []string {
	pool := dispatcher.New(d.logger)
	defer pool.Close()

	expected := make(map[string]int, len(batch))
	var ready []string
	for _, project := range batch {
		runs, err := d.deps.Runs.Runs(project)
		if err != nil {
			d.logger.Warn("run lookup failed", zap.String("id", project), zap.Error(err))
			continue
		}
		if len(runs) == 0 {
			d.logger.Info("project has no runs", zap.String("id", project))
			ready = append(ready, project)
			continue
		}
		expected[project] = len(runs)
		for _, run := range runs {
			if err := pool.Submit(ctx, d.job(project, run)); err != nil {
				d.logger.Warn("submit failed", zap.String("id", project), zap.Error(err))
			}
		}
	}
	if len(expected) == 0 {
		return ready
	}

	pool.Run(ctx, d.deps.MaxDownloads)
	succeeded := make(map[string]int, len(expected))
	for _, id := range pool.Join() {
		project, _, ok := strings.Cut(id, "/")
		if ok {
			succeeded[project]++
		}
	}
	for _, project := range batch {
		want, ok := expected[project]
		if !ok {
			continue
		}
		if succeeded[project] == want {
			ready = append(ready, project)
			continue
		}
		d.logger.Warn("project incomplete",
			zap.String("id", project),
			zap.Int("runs", want),
			zap.Int("succeeded", succeeded[project]),
		)
	}
	return ready
}

func (d *downloadStage) job(project, run string) pipeline.Job {
	return &runJob{
		id:     project + "/" + run,
		run:    run,
		deps:   &d.deps,
		logger: d.logger,
	}
}

// runJob prefetches one run and optionally converts it to FASTQ.
type runJob struct {
	id     string
	run    string
	deps   *DownloadDeps
	logger *zap.Logger
}

func (j *runJob) ID() string {
	return j.id
}

func (j *runJob) Execute(ctx context.Context) error {
	prefetch := j.deps.Prefetch
	if err := j.deps.Runner.Run(ctx, prefetch.Program, runner.PrefetchArgs(prefetch, j.run)); err != nil {
		return fmt.Errorf("prefetch %s: %w", j.run, err)
	}
	if !j.deps.ConvertFastq {
		return nil
	}
	fq := j.deps.Fasterq
	if err := j.deps.Runner.Run(ctx, fq.Program, runner.FasterqDumpArgs(fq, prefetch.OutDir, j.run)); err != nil {
		return fmt.Errorf("fasterq-dump %s: %w", j.run, err)
	}
	j.logger.Debug("run converted", zap.String("id", j.run))
	return nil
}

var _ RunLister = (*tsv.Store)(nil)
