// Package app initializes and holds long-lived pipeline services, acting as a
// dependency injection container for the stage engines.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/scqc/internal/api"
	"github.com/JakeFAU/scqc/internal/classify"
	"github.com/JakeFAU/scqc/internal/clock/system"
	"github.com/JakeFAU/scqc/internal/config"
	collyfetcher "github.com/JakeFAU/scqc/internal/fetcher/colly"
	"github.com/JakeFAU/scqc/internal/hash/sha256"
	idgen "github.com/JakeFAU/scqc/internal/id/uuid"
	"github.com/JakeFAU/scqc/internal/idlist"
	"github.com/JakeFAU/scqc/internal/metrics"
	"github.com/JakeFAU/scqc/internal/pipeline"
	"github.com/JakeFAU/scqc/internal/policy/ratelimit"
	"github.com/JakeFAU/scqc/internal/progress"
	"github.com/JakeFAU/scqc/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/scqc/internal/publisher/pubsub"
	"github.com/JakeFAU/scqc/internal/runner"
	"github.com/JakeFAU/scqc/internal/sra"
	"github.com/JakeFAU/scqc/internal/stage"
	"github.com/JakeFAU/scqc/internal/storage/gcs"
	"github.com/JakeFAU/scqc/internal/storage/local"
	"github.com/JakeFAU/scqc/internal/storage/memory"
	"github.com/JakeFAU/scqc/internal/storage/postgres"
	"github.com/JakeFAU/scqc/internal/storage/tsv"
	"github.com/JakeFAU/scqc/internal/store"
)

// App holds the shared, long-lived services. It is built once per command
// and closed by the CLI after the command finishes.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	catalog    *sra.Client
	classifier *classify.Classifier
	runner     runner.Runner
	cache      pipeline.BlobStore
	records    pipeline.RecordStore
	repo       store.ProgressRepository
	publisher  pipeline.Publisher
	hub        *progress.Hub
	pool       *pgxpool.Pool
	closers    []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	registerer    prometheus.Registerer
	pubsubOptions []option.ClientOption
	runner        runner.Runner
}

// WithRegisterer registers the progress collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPubSubOptions passes client options to the Pub/Sub client.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.pubsubOptions = append(o.pubsubOptions, opts...) }
}

// WithRunner replaces the process runner used by the download stage.
func WithRunner(r runner.Runner) Option {
	return func(o *options) { o.runner = r }
}

// New builds every service the configuration enables. It fails fast when a
// configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()
	logger.Debug("configuration loaded", zap.Any("config", cfg.Redacted()))

	a := &App{
		cfg:        cfg,
		logger:     logger,
		classifier: classify.New(),
		runner:     o.runner,
	}
	if err := a.init(ctx, o); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	cfg, logger := a.cfg, a.logger
	if a.runner == nil {
		a.runner = runner.NewExec(logger)
	}

	initial, maximum := cfg.SRA.Backoff()
	a.catalog = sra.NewClient(
		sra.Config{
			ESearchURL: cfg.SRA.ESearchURL,
			EFetchURL:  cfg.SRA.EFetchURL,
			Database:   cfg.SRA.Database,
			APIKey:     cfg.SRA.APIKey,
			Tool:       cfg.SRA.Tool,
			Email:      cfg.SRA.Email,
		},
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.SRA.UserAgent,
			Timeout:   cfg.SRA.Timeout(),
		}),
		ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.SRA.RequestsPerSec,
			DefaultBurst: cfg.SRA.Burst,
		}),
		sra.NewRetryPolicy(cfg.SRA.MaxRetries, initial, maximum),
		logger,
	)

	var err error
	if a.cache, err = a.openCache(ctx); err != nil {
		return err
	}
	if err = a.openDatabase(ctx); err != nil {
		return err
	}
	if cfg.PubSub.ProjectID != "" {
		pub, perr := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, o.pubsubOptions...)
		if perr != nil {
			return fmt.Errorf("initialize pubsub: %w", perr)
		}
		logger.Info("publishing batch notifications", zap.String("topic", cfg.PubSub.TopicName))
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return err
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		FlushInterval:  time.Duration(cfg.Progress.FlushIntervalMs) * time.Millisecond,
		SinkTimeout:    time.Duration(cfg.Progress.SinkTimeoutSeconds) * time.Second,
		Logger:         logger.Named("progress"),
	},
		sinks.NewLogSink(logger.Named("cycles")),
		promSink,
		sinks.NewStoreSink(a.repo, logger.Named("cycle_store")),
	)
	return nil
}

func (a *App) openCache(ctx context.Context) (pipeline.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs cache: %w", err)
		}
		a.logger.Info("caching documents in gcs", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case "local":
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Query.CacheDir})
		if err != nil {
			return nil, fmt.Errorf("initialize local cache: %w", err)
		}
		return blobs, nil
	case "memory":
		return memory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) openDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.repo = memory.NewCycleStore()
		return nil
	}
	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	a.pool = pool
	records, err := postgres.NewMetadataStore(pool, a.cfg.DB.MetadataTable)
	if err != nil {
		return fmt.Errorf("initialize metadata store: %w", err)
	}
	a.records = records
	a.repo = postgres.NewProgressStore(pool)
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Progress returns the cycle history repository.
func (a *App) Progress() store.ProgressRepository {
	return a.repo
}

// Stage builds the stage of the given kind from configuration.
func (a *App) Stage(kind stage.Kind) (stage.Stage, error) {
	cfg := a.cfg
	sched := cfg.Stage(kind).Schedule()
	name := kind.String()
	switch kind {
	case stage.KindQuery:
		return stage.NewQuery(name, sched, stage.QueryDeps{
			Catalog:     a.catalog,
			Classifier:  a.classifier,
			Metadata:    tsv.New(cfg.Query.MetaDir),
			Records:     a.records,
			Cache:       a.cache,
			CachePrefix: cfg.Storage.Prefix,
			Hasher:      sha256.New(),
			Projects:    idlist.NewStore(cfg.Query.ProjectFile),
			Logger:      a.logger,
		})
	case stage.KindImpute:
		return stage.NewImpute(name, sched, stage.ImputeDeps{
			Classifier: a.classifier,
			Metadata:   tsv.New(cfg.Impute.MetaDir),
			Logger:     a.logger,
		})
	case stage.KindDownload:
		d := cfg.Download
		return stage.NewDownload(name, sched, stage.DownloadDeps{
			Runs:         tsv.New(d.MetaDir),
			Runner:       a.runner,
			MaxDownloads: d.MaxDownloads,
			Prefetch: runner.PrefetchOptions{
				Program:  d.PrefetchBin,
				OutDir:   d.OutDir,
				MaxSize:  d.MaxSize,
				LogLevel: d.LogLevel,
			},
			Fasterq: runner.FasterqOptions{
				Program:    d.FasterqBin,
				OutDir:     d.FastqDir,
				Threads:    d.NumStreams,
				SplitFiles: true,
				LogLevel:   d.LogLevel,
			},
			ConvertFastq: d.ConvertFastq,
			Logger:       a.logger,
		})
	case stage.KindAnalysis:
		return stage.NewPlaceholder(name, kind, sched, cfg.Analysis.Dirs, a.logger), nil
	case stage.KindStatistics:
		return stage.NewPlaceholder(name, kind, sched, cfg.Statistics.Dirs, a.logger), nil
	default:
		return stage.Stage{}, fmt.Errorf("build stage: %w: %d", stage.ErrUnknownKind, int(kind))
	}
}

// Engine builds the stage of the given kind and binds it to the shared
// progress hub and publisher.
func (a *App) Engine(kind stage.Kind) (*stage.Engine, error) {
	st, err := a.Stage(kind)
	if err != nil {
		return nil, err
	}
	deps := stage.Deps{
		Clock:     system.New(),
		IDs:       idgen.New(),
		Progress:  a.hub,
		Publisher: a.publisher,
		Topic:     a.cfg.PubSub.TopicName,
		Logger:    a.logger,
	}
	return stage.NewEngine(st, deps)
}

// Search runs the catalog search and merges the discovered UIDs into the list
// at out, or the query todo list when out is empty. It returns the number of
// UIDs found and the number newly added.
func (a *App) Search(ctx context.Context, term string, maxResults int, out string) (found, added int, err error) {
	if term == "" {
		term = a.cfg.Search.Term
	}
	if maxResults <= 0 {
		maxResults = a.cfg.Search.MaxResults
	}
	if out == "" {
		out = a.cfg.Query.TodoFile
	}
	list := idlist.NewStore(out)
	if !list.Enabled() {
		return 0, 0, errors.New("search output list is disabled")
	}
	uids, err := a.catalog.Search(ctx, term, maxResults)
	if err != nil {
		return 0, 0, fmt.Errorf("search catalog: %w", err)
	}
	added, err = list.Add(uids...)
	if err != nil {
		return len(uids), 0, fmt.Errorf("update %s: %w", list.Path(), err)
	}
	a.logger.Info("search complete",
		zap.Int("found", len(uids)),
		zap.Int("added", added),
		zap.String("list", list.Path()),
	)
	return len(uids), added, nil
}

// Server builds the status/metrics HTTP server for the given engines.
func (a *App) Server(engines ...*stage.Engine) *api.Server {
	sources := make([]api.StatusSource, 0, len(engines))
	for _, e := range engines {
		sources = append(sources, e)
	}
	checks := map[string]api.ReadyCheck{}
	if a.pool != nil {
		checks["postgres"] = a.pool.Ping
	}
	return api.NewServer(sources, a.repo, checks, a.logger.Named("api"))
}

// Close drains the progress hub and shuts down every client. It is safe to
// call on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.hub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
