package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	assert.NoError(t, cfg.Validate())
}

func TestResolveDerivesPipelinePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/tl"
	cfg.Resolve()

	assert.Equal(t, filepath.Join("/tmp/tl", "merged.log"), cfg.Merge.Output)
	assert.Equal(t, cfg.Merge.Output, cfg.Validation.Input)
	assert.Equal(t, cfg.Merge.Output, cfg.Rowclone.Input)
	assert.Equal(t, cfg.Rowclone.Output, cfg.Cachesim.Input)
	assert.Equal(t, filepath.Join("/tmp/tl", "catalog.db"), cfg.Validation.CatalogPath)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mode: validate
data_dir: /data/traces
validate:
  batch_records: 512
  format: json
storage:
  type: s3
  s3:
    bucket: trace-archives
    region: eu-west-1
`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, ModeValidate, cfg.Mode)
	assert.Equal(t, "/data/traces", cfg.DataDir)
	assert.Equal(t, 512, cfg.Validation.BatchRecords)
	assert.Equal(t, "json", cfg.Validation.Format)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "trace-archives", cfg.Storage.S3.Bucket)

	// Unset fields keep their defaults.
	assert.Equal(t, 8, cfg.Merge.CPUs)
}

func TestLoadFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"mode": "merge", "merge": {"cpus": 4}}`
	assert.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	assert.NoError(t, err)
	assert.Equal(t, ModeMerge, cfg.Mode)
	assert.Equal(t, 4, cfg.Merge.CPUs)
}

func TestLoadFromFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NoError(t, os.WriteFile(path, []byte("mode = 'all'"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("TRACELENS_MODE", "cachesim")
	t.Setenv("TRACELENS_DATA_DIR", "/env/data")
	t.Setenv("TRACELENS_VALIDATE_BATCH_RECORDS", "128")
	t.Setenv("TRACELENS_S3_BUCKET", "env-bucket")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, ModeCachesim, cfg.Mode)
	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, 128, cfg.Validation.BatchRecords)
	assert.Equal(t, "env-bucket", cfg.Storage.S3.Bucket)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "bogus" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero cpus", func(c *Config) { c.Merge.CPUs = 0 }},
		{"zero batch", func(c *Config) { c.Validation.BatchRecords = 0 }},
		{"bad storage type", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"zero block size", func(c *Config) { c.Cachesim.BlockSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "pipeline")
	cfg.Resolve()

	assert.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DataDir, cfg.Merge.InputDir, cfg.Storage.Path} {
		info, err := os.Stat(dir)
		assert.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
