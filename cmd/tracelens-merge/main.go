// Package main implements the tracelens-merge binary.
// It merges per-CPU trace logs into a single log ordered by
// instruction count.
package main

import (
	"flag"
	"log"

	"github.com/tracelens/tracelens/internal/merge"
	"github.com/tracelens/tracelens/internal/trace"
)

// Config holds the merger configuration.
type Config struct {
	InputDir  string
	InputBase string
	CPUs      int
	Output    string
	Batch     int
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.InputDir, "input-dir", "", "Directory holding the per-CPU logs (required)")
	flag.StringVar(&cfg.InputBase, "input-base", "trace.log", "Per-CPU log base name; logs are <base>.<cpu>")
	flag.IntVar(&cfg.CPUs, "cpus", 8, "Number of per-CPU logs to merge")
	flag.StringVar(&cfg.Output, "output", "", "Merged log path (required; .sz suffix enables snappy)")
	flag.IntVar(&cfg.Batch, "batch", trace.DefaultBatchRecords, "Records read per batch per source")
	flag.Parse()

	if cfg.InputDir == "" || cfg.Output == "" {
		log.Fatalf("-input-dir and -output are required")
	}
	if cfg.CPUs <= 0 {
		log.Fatalf("-cpus must be positive")
	}
	return cfg
}

func main() {
	cfg := parseFlags()

	inputs := merge.PerCPUInputs(cfg.InputDir, cfg.InputBase, cfg.CPUs)
	log.Printf("Merging %d per-CPU logs into %s", len(inputs), cfg.Output)

	res, err := merge.Merge(inputs, cfg.Output, cfg.Batch)
	if err != nil {
		log.Fatalf("Merge failed: %v", err)
	}

	log.Printf("Merged %d records", res.Records)
	if res.OutOfOrder > 0 {
		log.Printf("Warning: %d records arrived out of order within their source", res.OutOfOrder)
	}
}
