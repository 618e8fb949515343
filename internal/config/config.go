// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scqc/internal/stage"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig  `mapstructure:"logging"`
	Server     ServerConfig   `mapstructure:"server"`
	SRA        SRAConfig      `mapstructure:"sra"`
	Search     SearchConfig   `mapstructure:"search"`
	Query      QueryConfig    `mapstructure:"query"`
	Impute     ImputeConfig   `mapstructure:"impute"`
	Download   DownloadConfig `mapstructure:"download"`
	Analysis   AnalysisConfig `mapstructure:"analysis"`
	Statistics AnalysisConfig `mapstructure:"statistics"`
	Storage    StorageConfig  `mapstructure:"storage"`
	DB         DBConfig       `mapstructure:"db"`
	PubSub     PubSubConfig   `mapstructure:"pubsub"`
	Progress   ProgressConfig `mapstructure:"progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the status/metrics HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SRAConfig describes the catalog endpoints and client behavior.
type SRAConfig struct {
	ESearchURL       string  `mapstructure:"sra_esearch"`
	EFetchURL        string  `mapstructure:"sra_efetch"`
	Database         string  `mapstructure:"database"`
	APIKey           string  `mapstructure:"api_key"`
	Tool             string  `mapstructure:"tool"`
	Email            string  `mapstructure:"email"`
	UserAgent        string  `mapstructure:"user_agent"`
	RequestsPerSec   float64 `mapstructure:"requests_per_second"`
	Burst            int     `mapstructure:"burst"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
}

// SearchConfig drives the esearch step that seeds the query todo list.
type SearchConfig struct {
	Term       string `mapstructure:"search_term"`
	MaxResults int    `mapstructure:"query_max"`
}

// StageConfig holds the scheduling keys every stage section carries.
type StageConfig struct {
	TodoFile   string  `mapstructure:"todofile"`
	DoneFile   string  `mapstructure:"donefile"`
	Sleep      int     `mapstructure:"sleep"`
	BatchSize  int     `mapstructure:"batchsize"`
	BatchSleep float64 `mapstructure:"batchsleep"`
	NCycles    int     `mapstructure:"ncycles"`
}

// Schedule converts the section into the engine's scheduling config.
func (s StageConfig) Schedule() stage.Config {
	return stage.Config{
		TodoFile:   s.TodoFile,
		DoneFile:   s.DoneFile,
		Sleep:      time.Duration(s.Sleep) * time.Second,
		BatchSize:  s.BatchSize,
		BatchSleep: time.Duration(s.BatchSleep * float64(time.Second)),
		Cycles:     s.NCycles,
	}
}

func (s StageConfig) validate(name string) error {
	if s.BatchSize < 1 {
		return fmt.Errorf("%s.batchsize must be >= 1", name)
	}
	if s.Sleep < 0 || s.BatchSleep < 0 {
		return fmt.Errorf("%s.sleep and %s.batchsleep must be >= 0", name, name)
	}
	if s.NCycles < 0 {
		return fmt.Errorf("%s.ncycles must be >= 0", name)
	}
	return nil
}

// QueryConfig configures the metadata query stage.
type QueryConfig struct {
	StageConfig `mapstructure:",squash"`
	MetaDir     string `mapstructure:"metadir"`
	CacheDir    string `mapstructure:"cachedir"`
	ProjectFile string `mapstructure:"projectfile"`
}

// ImputeConfig configures the technology impute stage.
type ImputeConfig struct {
	StageConfig `mapstructure:",squash"`
	MetaDir     string `mapstructure:"metadir"`
}

// DownloadConfig configures the run download stage.
type DownloadConfig struct {
	StageConfig  `mapstructure:",squash"`
	MetaDir      string `mapstructure:"metadir"`
	MaxDownloads int    `mapstructure:"max_downloads"`
	NumStreams   int    `mapstructure:"num_streams"`
	MaxSize      string `mapstructure:"max_size"`
	OutDir       string `mapstructure:"outdir"`
	FastqDir     string `mapstructure:"fastqdir"`
	ConvertFastq bool   `mapstructure:"convert_fastq"`
	LogLevel     string `mapstructure:"loglevel"`
	PrefetchBin  string `mapstructure:"prefetch_bin"`
	FasterqBin   string `mapstructure:"fasterq_bin"`
}

// AnalysisConfig configures the analysis and statistics stages.
type AnalysisConfig struct {
	StageConfig `mapstructure:",squash"`
	Dirs        []string `mapstructure:"dirs"`
}

// StorageConfig selects the raw document cache backend.
type StorageConfig struct {
	// Backend is one of local, gcs, memory or none.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database. An empty DSN disables it.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	MetadataTable          string `mapstructure:"metadata_table"`
}

// PubSubConfig holds metadata for batch notifications. An empty project disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize         int `mapstructure:"buffer_size"`
	MaxBatchEvents     int `mapstructure:"max_batch_events"`
	FlushIntervalMs    int `mapstructure:"flush_interval_ms"`
	SinkTimeoutSeconds int `mapstructure:"sink_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCQC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.expandDirs()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// expandDirs resolves a leading "~" in directory settings. List files are
// resolved by the idlist package.
func (c *Config) expandDirs() {
	for _, p := range []*string{
		&c.Query.MetaDir, &c.Query.CacheDir,
		&c.Impute.MetaDir,
		&c.Download.MetaDir, &c.Download.OutDir, &c.Download.FastqDir,
	} {
		*p = expandHome(*p)
	}
	for i := range c.Analysis.Dirs {
		c.Analysis.Dirs[i] = expandHome(c.Analysis.Dirs[i])
	}
	for i := range c.Statistics.Dirs {
		c.Statistics.Dirs[i] = expandHome(c.Statistics.Dirs[i])
	}
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9464)

	v.SetDefault("sra.sra_esearch", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi")
	v.SetDefault("sra.sra_efetch", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/efetch.fcgi")
	v.SetDefault("sra.database", "sra")
	v.SetDefault("sra.tool", "scqc")
	v.SetDefault("sra.user_agent", "scqc/0.1")
	v.SetDefault("sra.requests_per_second", 3)
	v.SetDefault("sra.burst", 1)
	v.SetDefault("sra.timeout_seconds", 30)
	v.SetDefault("sra.max_retries", 3)
	v.SetDefault("sra.backoff_initial_ms", 500)
	v.SetDefault("sra.backoff_max_ms", 10000)

	v.SetDefault("search.search_term",
		`"rna seq"[Strategy] AND "single cell"[Text Word] AND "transcriptomic"[Source] AND "public"[Access]`)
	v.SetDefault("search.query_max", 1000)

	stageDefaults(v, "query", "~/scqc/metadata/uids.txt", "~/scqc/metadata/uids_done.txt", 10)
	v.SetDefault("query.metadir", "~/scqc/metadata")
	v.SetDefault("query.cachedir", "~/scqc/cache")
	v.SetDefault("query.projectfile", "~/scqc/metadata/projects.txt")

	stageDefaults(v, "impute", "~/scqc/metadata/projects.txt", "~/scqc/metadata/impute_done.txt", 20)
	v.SetDefault("impute.metadir", "~/scqc/metadata")

	stageDefaults(v, "download", "~/scqc/metadata/projects.txt", "~/scqc/metadata/download_done.txt", 2)
	v.SetDefault("download.metadir", "~/scqc/metadata")
	v.SetDefault("download.max_downloads", 4)
	v.SetDefault("download.num_streams", 4)
	v.SetDefault("download.max_size", "200G")
	v.SetDefault("download.outdir", "~/scqc/sra")
	v.SetDefault("download.fastqdir", "~/scqc/fastq")
	v.SetDefault("download.convert_fastq", false)
	v.SetDefault("download.loglevel", "warn")
	v.SetDefault("download.prefetch_bin", "prefetch")
	v.SetDefault("download.fasterq_bin", "fasterq-dump")

	stageDefaults(v, "analysis", "~/scqc/metadata/download_done.txt", "~/scqc/metadata/analysis_done.txt", 1)
	v.SetDefault("analysis.dirs", []string{"~/scqc/analysis", "~/scqc/resources"})
	stageDefaults(v, "statistics", "~/scqc/metadata/analysis_done.txt", "~/scqc/metadata/statistics_done.txt", 1)
	v.SetDefault("statistics.dirs", []string{"~/scqc/statistics"})

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.prefix", "efetch")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("db.metadata_table", "sra_metadata")
	v.SetDefault("pubsub.topic_name", "scqc-batches")

	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.flush_interval_ms", 1000)
	v.SetDefault("progress.sink_timeout_seconds", 10)
}

func stageDefaults(v *viper.Viper, name, todo, done string, batch int) {
	v.SetDefault(name+".todofile", todo)
	v.SetDefault(name+".donefile", done)
	v.SetDefault(name+".sleep", 60)
	v.SetDefault(name+".batchsize", batch)
	v.SetDefault(name+".batchsleep", 1.0)
	v.SetDefault(name+".ncycles", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.SRA.ESearchURL == "" || c.SRA.EFetchURL == "" {
		return fmt.Errorf("sra.sra_esearch and sra.sra_efetch are required")
	}
	if c.SRA.TimeoutSeconds <= 0 {
		return fmt.Errorf("sra.timeout_seconds must be > 0")
	}
	if c.SRA.MaxRetries < 1 {
		return fmt.Errorf("sra.max_retries must be >= 1")
	}
	for _, kind := range stage.Kinds() {
		if err := c.Stage(kind).validate(kind.String()); err != nil {
			return err
		}
	}
	if c.Download.MaxDownloads < 1 {
		return fmt.Errorf("download.max_downloads must be >= 1")
	}
	switch c.Storage.Backend {
	case "local", "memory", "none":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of local, gcs, memory, none", c.Storage.Backend)
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// Stage returns the scheduling section of the stage kind.
func (c Config) Stage(kind stage.Kind) StageConfig {
	switch kind {
	case stage.KindQuery:
		return c.Query.StageConfig
	case stage.KindImpute:
		return c.Impute.StageConfig
	case stage.KindDownload:
		return c.Download.StageConfig
	case stage.KindAnalysis:
		return c.Analysis.StageConfig
	case stage.KindStatistics:
		return c.Statistics.StageConfig
	default:
		return StageConfig{}
	}
}

// WithCycleLimit returns a copy whose stages all stop after n cycles. A
// negative n leaves the configured limits untouched.
func (c Config) WithCycleLimit(n int) Config {
	if n < 0 {
		return c
	}
	c.Query.NCycles = n
	c.Impute.NCycles = n
	c.Download.NCycles = n
	c.Analysis.NCycles = n
	c.Statistics.NCycles = n
	return c
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.SRA.APIKey != "" {
		c.SRA.APIKey = "REDACTED"
	}
	if c.DB.DSN != "" {
		c.DB.DSN = "REDACTED"
	}
	return c
}

// Timeout returns the catalog request timeout.
func (c SRAConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c SRAConfig) Backoff() (initial, maximum time.Duration) {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.BackoffMaxMs) * time.Millisecond
}
