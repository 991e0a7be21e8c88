package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, SourceHTTP, cfg.Source.Kind)
	assert.Equal(t, 1000, cfg.Engine.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Engine.FlushInterval)
	assert.Equal(t, "127.0.0.1:8765", cfg.API.Addr())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  kind: s3
  s3:
    bucket: exports
    prefix: events/
engine:
  threads: 2
  flush_interval: 500ms
sync:
  concurrency: 0
`), 0o644))
	t.Setenv("QUACK_SYNC_EVENT_TYPE", "signup")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SourceS3, cfg.Source.Kind)
	assert.Equal(t, "exports", cfg.Source.S3.Bucket)
	assert.Equal(t, "events/", cfg.Source.S3.Prefix)
	assert.Equal(t, 2, cfg.Engine.Threads)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.FlushInterval)
	assert.Equal(t, 0, cfg.Sync.Concurrency)
	assert.Equal(t, "signup", cfg.Sync.EventType)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quack.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"source": {"kind": "dir", "dir": "./partitions"}, "cache": {"path": ""}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./partitions", cfg.Source.Dir)
	assert.Empty(t, cfg.Cache.Path)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Source.Kind = "ftp"
	cfg.Engine.BatchSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source.kind "ftp"`)
	assert.Contains(t, err.Error(), "engine.batch_size")

	cfg = Default()
	cfg.Live.Enabled = true
	cfg.Source.Kind = SourceDir
	cfg.Source.Dir = "x"
	assert.ErrorContains(t, cfg.Validate(), "live polling")
}
