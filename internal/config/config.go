// Package config provides unified configuration for the trace analysis
// pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode represents which pipeline stages to run.
type Mode string

const (
	ModeAll      Mode = "all"
	ModeMerge    Mode = "merge"
	ModeValidate Mode = "validate"
	ModeRowclone Mode = "rowclone"
	ModeCachesim Mode = "cachesim"
)

// Config holds the unified configuration for the trace pipeline.
type Config struct {
	// Mode specifies which stages to run: all, merge, validate,
	// rowclone, cachesim
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for pipeline outputs
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Merge stage configuration
	Merge MergeConfig `json:"merge" yaml:"merge"`

	// Validate stage configuration
	Validation ValidateConfig `json:"validate" yaml:"validate"`

	// Rowclone stage configuration
	Rowclone RowcloneConfig `json:"rowclone" yaml:"rowclone"`

	// Cachesim stage configuration
	Cachesim CachesimConfig `json:"cachesim" yaml:"cachesim"`

	// Storage configuration for remote trace archives
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// MergeConfig holds merge stage configuration.
type MergeConfig struct {
	// InputDir is the directory holding the per-CPU logs
	InputDir string `json:"input_dir" yaml:"input_dir"`

	// InputBase is the per-CPU log base name; logs are <base>.<cpu>
	InputBase string `json:"input_base" yaml:"input_base"`

	// CPUs is the number of per-CPU logs to merge
	CPUs int `json:"cpus" yaml:"cpus"`

	// Output is the merged log path
	Output string `json:"output" yaml:"output"`
}

// ValidateConfig holds validate stage configuration.
type ValidateConfig struct {
	// Input is the trace to scan; defaults to the merge output
	Input string `json:"input" yaml:"input"`

	// Remote is an optional archive path; when set the input is fetched
	// from storage before scanning
	Remote string `json:"remote" yaml:"remote"`

	// Output is the anomaly report path; empty means stdout
	Output string `json:"output" yaml:"output"`

	// BatchRecords is the number of records read per batch
	BatchRecords int `json:"batch_records" yaml:"batch_records"`

	// Format is the anomaly report format: text, csv, json
	Format string `json:"format" yaml:"format"`

	// CatalogPath is the run catalog database path
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
}

// RowcloneConfig holds rowclone stage configuration.
type RowcloneConfig struct {
	// Input is the trace to annotate; defaults to the merge output
	Input string `json:"input" yaml:"input"`

	// KernelLog is the kernel copy log path
	KernelLog string `json:"kernel_log" yaml:"kernel_log"`

	// Output is the annotated CSV trace path
	Output string `json:"output" yaml:"output"`
}

// CachesimConfig holds cache simulation configuration.
type CachesimConfig struct {
	// Input is the CSV trace to filter; defaults to the rowclone output
	Input string `json:"input" yaml:"input"`

	// Output is the filtered CSV trace path
	Output string `json:"output" yaml:"output"`

	// SizeBytes is the total cache size in bytes
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`

	// BlockSize is the cache block size in bytes
	BlockSize int64 `json:"block_size" yaml:"block_size"`

	// Associativity is the number of ways per set
	Associativity int `json:"associativity" yaml:"associativity"`

	// Publish is an optional archive path the filtered trace is
	// uploaded to after the stage completes
	Publish string `json:"publish" yaml:"publish"`
}

// StorageConfig holds trace archive storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local archive path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 archive storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/tracelens",
		Merge: MergeConfig{
			InputBase: "trace.log",
			CPUs:      8,
		},
		Validation: ValidateConfig{
			BatchRecords: 4096,
			Format:       "text",
		},
		Cachesim: CachesimConfig{
			SizeBytes:     8 * 1024 * 1024,
			BlockSize:     64,
			Associativity: 8,
		},
		Storage: StorageConfig{
			Type: "local",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tracelens"
	}

	if c.Merge.InputDir == "" {
		c.Merge.InputDir = filepath.Join(c.DataDir, "raw")
	}
	if c.Merge.Output == "" {
		c.Merge.Output = filepath.Join(c.DataDir, "merged.log")
	}

	if c.Validation.Input == "" {
		c.Validation.Input = c.Merge.Output
	}
	if c.Validation.CatalogPath == "" {
		c.Validation.CatalogPath = filepath.Join(c.DataDir, "catalog.db")
	}

	if c.Rowclone.Input == "" {
		c.Rowclone.Input = c.Merge.Output
	}
	if c.Rowclone.KernelLog == "" {
		c.Rowclone.KernelLog = filepath.Join(c.DataDir, "kernel.log")
	}
	if c.Rowclone.Output == "" {
		c.Rowclone.Output = filepath.Join(c.DataDir, "rowclone.log")
	}

	if c.Cachesim.Input == "" {
		c.Cachesim.Input = c.Rowclone.Output
	}
	if c.Cachesim.Output == "" {
		c.Cachesim.Output = filepath.Join(c.DataDir, "filtered.log")
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archives")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeMerge, ModeValidate, ModeRowclone, ModeCachesim:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, merge, validate, rowclone, or cachesim)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Merge.CPUs <= 0 {
		return fmt.Errorf("merge.cpus must be positive, got %d", c.Merge.CPUs)
	}

	if c.Validation.BatchRecords <= 0 {
		return fmt.Errorf("validate.batch_records must be positive, got %d", c.Validation.BatchRecords)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Cachesim.SizeBytes <= 0 || c.Cachesim.BlockSize <= 0 || c.Cachesim.Associativity <= 0 {
		return fmt.Errorf("cachesim geometry must be positive")
	}

	return nil
}

// ShouldRunMerge returns true if the merge stage should run.
func (c *Config) ShouldRunMerge() bool {
	return c.Mode == ModeAll || c.Mode == ModeMerge
}

// ShouldRunValidate returns true if the validate stage should run.
func (c *Config) ShouldRunValidate() bool {
	return c.Mode == ModeAll || c.Mode == ModeValidate
}

// ShouldRunRowclone returns true if the rowclone stage should run.
func (c *Config) ShouldRunRowclone() bool {
	return c.Mode == ModeAll || c.Mode == ModeRowclone
}

// ShouldRunCachesim returns true if the cachesim stage should run.
func (c *Config) ShouldRunCachesim() bool {
	return c.Mode == ModeAll || c.Mode == ModeCachesim
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TRACELENS_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TRACELENS_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("TRACELENS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Merge configuration
	if v := os.Getenv("TRACELENS_MERGE_INPUT_DIR"); v != "" {
		cfg.Merge.InputDir = v
	}
	if v := os.Getenv("TRACELENS_MERGE_CPUS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Merge.CPUs)
	}
	if v := os.Getenv("TRACELENS_MERGE_OUTPUT"); v != "" {
		cfg.Merge.Output = v
	}

	// Validate configuration
	if v := os.Getenv("TRACELENS_VALIDATE_INPUT"); v != "" {
		cfg.Validation.Input = v
	}
	if v := os.Getenv("TRACELENS_VALIDATE_BATCH_RECORDS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Validation.BatchRecords)
	}
	if v := os.Getenv("TRACELENS_VALIDATE_FORMAT"); v != "" {
		cfg.Validation.Format = v
	}

	// Rowclone configuration
	if v := os.Getenv("TRACELENS_ROWCLONE_KERNEL_LOG"); v != "" {
		cfg.Rowclone.KernelLog = v
	}

	// Cachesim configuration
	if v := os.Getenv("TRACELENS_CACHESIM_SIZE_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cachesim.SizeBytes)
	}
	if v := os.Getenv("TRACELENS_CACHESIM_BLOCK_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cachesim.BlockSize)
	}
	if v := os.Getenv("TRACELENS_CACHESIM_ASSOCIATIVITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Cachesim.Associativity)
	}

	// Storage configuration
	if v := os.Getenv("TRACELENS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TRACELENS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TRACELENS_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("TRACELENS_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("TRACELENS_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Merge.InputDir,
		c.Storage.Path,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
