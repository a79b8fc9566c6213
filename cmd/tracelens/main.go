// Package main implements the unified tracelens binary.
// It runs the whole trace analysis pipeline (merge, validate, rowclone,
// cachesim) or individual stages based on the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tracelens/tracelens/internal/app"
	"github.com/tracelens/tracelens/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		inputDir    string
		cpus        int
		kernelLog   string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for pipeline outputs")
	flag.StringVar(&mode, "mode", "all", "Pipeline mode: all, merge, validate, rowclone, cachesim")
	flag.StringVar(&inputDir, "input-dir", "", "Directory holding the per-CPU logs")
	flag.IntVar(&cpus, "cpus", 0, "Number of per-CPU logs to merge")
	flag.StringVar(&kernelLog, "kernel-log", "", "Kernel copy log path")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Tracelens - QEMU trace analysis pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tracelens [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tracelens --data-dir /data/traces --input-dir /data/raw\n")
		fmt.Fprintf(os.Stderr, "  tracelens --mode validate --data-dir /data/traces\n")
		fmt.Fprintf(os.Stderr, "  tracelens --config /etc/tracelens/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TRACELENS_MODE          Pipeline mode (all, merge, validate, rowclone, cachesim)\n")
		fmt.Fprintf(os.Stderr, "  TRACELENS_DATA_DIR      Base directory for pipeline outputs\n")
		fmt.Fprintf(os.Stderr, "  TRACELENS_MERGE_CPUS    Number of per-CPU logs\n")
		fmt.Fprintf(os.Stderr, "  TRACELENS_STORAGE_TYPE  Archive storage type (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("tracelens version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, mode, inputDir, kernelLog, cpus)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, inputDir, kernelLog string, cpus int) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if inputDir != "" {
		cfg.Merge.InputDir = inputDir
	}
	if kernelLog != "" {
		cfg.Rowclone.KernelLog = kernelLog
	}
	if cpus > 0 {
		cfg.Merge.CPUs = cpus
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("Tracelens - QEMU trace analysis pipeline")
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Storage:  %s", cfg.Storage.Type)

	if cfg.ShouldRunMerge() {
		log.Printf("Merge: %d per-CPU logs from %s", cfg.Merge.CPUs, cfg.Merge.InputDir)
	}
	if cfg.ShouldRunValidate() {
		log.Printf("Validate: batch=%d format=%s", cfg.Validation.BatchRecords, cfg.Validation.Format)
	}
	if cfg.ShouldRunRowclone() {
		log.Printf("Rowclone: kernel log %s", cfg.Rowclone.KernelLog)
	}
	if cfg.ShouldRunCachesim() {
		log.Printf("Cachesim: %dKB cache, %dB blocks, %d-way",
			cfg.Cachesim.SizeBytes/1024, cfg.Cachesim.BlockSize, cfg.Cachesim.Associativity)
	}
}
