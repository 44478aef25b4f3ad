package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Pipeline.Branch)
	assert.Equal(t, time.Duration(0), cfg.Pipeline.Timeout)
	assert.Equal(t, "ghcr.io", cfg.Registry.Host)
	assert.Equal(t, "Dockerfile", cfg.Publish.Dockerfile)
	assert.True(t, cfg.Publish.Push)
	assert.False(t, cfg.Publish.Verify)
	assert.Equal(t, "https://github.com", cfg.Git.ServerURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/runs.db", cfg.Database.Path)
	assert.Equal(t, "runs", cfg.Redis.Queue)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollTimeout)
	assert.Equal(t, "image-publisher", cfg.Tracing.ServiceName)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIPELINE_BRANCH", "release")
	t.Setenv("REGISTRY_HOST", "registry.example.com")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("PIPELINE_TIMEOUT", "30m")
	t.Setenv("SERVER_WEBHOOK_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Pipeline.Branch)
	assert.Equal(t, "registry.example.com", cfg.Registry.Host)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, "s3cret", cfg.Server.WebhookSecret)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publisher.yaml")
	content := `
pipeline:
  branch: trunk
  keep_workspace: true
registry:
  host: quay.io
publish:
  verify: true
  labels:
    - org.opencontainers.image.vendor=acme
    - team=platform
database:
  driver: postgres
  host: db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trunk", cfg.Pipeline.Branch)
	assert.True(t, cfg.Pipeline.KeepWorkspace)
	assert.Equal(t, "quay.io", cfg.Registry.Host)
	assert.True(t, cfg.Publish.Verify)
	assert.Equal(t, map[string]string{
		"org.opencontainers.image.vendor": "acme",
		"team":                            "platform",
	}, cfg.Publish.LabelMap())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Host)
	// untouched keys keep their defaults
	assert.Equal(t, "Dockerfile", cfg.Publish.Dockerfile)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Pipeline: PipelineConfig{Branch: "main"},
			Registry: RegistryConfig{Host: "ghcr.io"},
			Database: DatabaseConfig{Driver: "sqlite"},
			Worker:   WorkerConfig{Concurrency: 1},
		}
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Pipeline.Branch = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Registry.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Worker.Concurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestPublishConfig_LabelMap(t *testing.T) {
	cfg := PublishConfig{Labels: []string{"a=1", "b=x=y", "=skipped", "flag"}}

	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "flag": ""}, cfg.LabelMap())
}
