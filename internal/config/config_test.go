package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scqc/internal/stage"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
logging:
  development: false
  level: info
sra:
  api_key: secret
  requests_per_second: 10
query:
  todofile: /work/uids.txt
  donefile: none
  sleep: 30
  batchsize: 25
  batchsleep: 0.5
  ncycles: 3
  metadir: /work/meta
download:
  max_downloads: 8
  num_streams: 6
  convert_fastq: true
analysis:
  dirs: [/work/star]
storage:
  backend: gcs
  gcs_bucket: scqc-cache
db:
  dsn: postgres://user:pw@localhost/scqc
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10.0, cfg.SRA.RequestsPerSec)
	assert.Equal(t, "sra", cfg.SRA.Database)

	sched := cfg.Stage(stage.KindQuery).Schedule()
	assert.Equal(t, stage.Config{
		TodoFile:   "/work/uids.txt",
		DoneFile:   "none",
		Sleep:      30 * time.Second,
		BatchSize:  25,
		BatchSleep: 500 * time.Millisecond,
		Cycles:     3,
	}, sched)
	assert.Equal(t, "/work/meta", cfg.Query.MetaDir)

	assert.Equal(t, 8, cfg.Download.MaxDownloads)
	assert.Equal(t, 6, cfg.Download.NumStreams)
	assert.True(t, cfg.Download.ConvertFastq)
	assert.Equal(t, []string{"/work/star"}, cfg.Analysis.Dirs)
	assert.Equal(t, "scqc-cache", cfg.Storage.GCSBucket)

	redacted := cfg.Redacted()
	assert.Equal(t, "REDACTED", redacted.SRA.APIKey)
	assert.Equal(t, "REDACTED", redacted.DB.DSN)
	assert.Equal(t, "secret", cfg.SRA.APIKey)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "scqc/metadata"), cfg.Query.MetaDir)
	assert.Equal(t, "~/scqc/metadata/uids.txt", cfg.Query.TodoFile)
	for _, kind := range stage.Kinds() {
		s := cfg.Stage(kind)
		assert.Positive(t, s.BatchSize, kind.String())
		assert.Zero(t, s.NCycles, kind.String())
	}
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, 4, cfg.Download.MaxDownloads)
	initial, maximum := cfg.SRA.Backoff()
	assert.Equal(t, 500*time.Millisecond, initial)
	assert.Equal(t, 10*time.Second, maximum)
	assert.Equal(t, 30*time.Second, cfg.SRA.Timeout())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCQC_QUERY_BATCHSIZE", "7")
	t.Setenv("SCQC_SRA_EMAIL", "ops@example.org")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Query.BatchSize)
	assert.Equal(t, "ops@example.org", cfg.SRA.Email)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"batchsize":      func(c *Config) { c.Impute.BatchSize = 0 },
		"negative sleep": func(c *Config) { c.Download.Sleep = -1 },
		"ncycles":        func(c *Config) { c.Statistics.NCycles = -2 },
		"max downloads":  func(c *Config) { c.Download.MaxDownloads = 0 },
		"backend":        func(c *Config) { c.Storage.Backend = "s3" },
		"bucket":         func(c *Config) { c.Storage.Backend = "gcs" },
		"server port":    func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 },
		"topic":          func(c *Config) { c.PubSub.ProjectID = "p"; c.PubSub.TopicName = "" },
		"efetch":         func(c *Config) { c.SRA.EFetchURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Analysis.Dirs = nil
			cfg.Statistics.Dirs = nil
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestWithCycleLimit(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	limited := cfg.WithCycleLimit(2)
	for _, kind := range stage.Kinds() {
		assert.Equal(t, 2, limited.Stage(kind).NCycles, kind.String())
		assert.Zero(t, cfg.Stage(kind).NCycles, kind.String())
	}
	assert.Equal(t, cfg, cfg.WithCycleLimit(-1))
}
