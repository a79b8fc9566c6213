// Package main implements the tracelens-rowclone binary.
// It matches kernel copy log entries against a merged trace and emits
// an annotated CSV access trace with copies collapsed into rowclone
// records.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/tracelens/tracelens/internal/rowclone"
	"github.com/tracelens/tracelens/internal/trace"
)

// Config holds the annotator configuration.
type Config struct {
	Input     string
	KernelLog string
	Output    string
	Batch     int
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Input, "input", "", "Merged trace log to annotate (required)")
	flag.StringVar(&cfg.KernelLog, "kernel-log", "", "Kernel copy log path (required)")
	flag.StringVar(&cfg.Output, "output", "", "Annotated CSV trace path (required)")
	flag.IntVar(&cfg.Batch, "batch", trace.DefaultBatchRecords, "Records read per batch")
	flag.Parse()

	if cfg.Input == "" || cfg.KernelLog == "" || cfg.Output == "" {
		log.Fatalf("-input, -kernel-log and -output are required")
	}
	return cfg
}

func main() {
	cfg := parseFlags()

	src, err := trace.OpenReader(cfg.Input, cfg.Batch)
	if err != nil {
		log.Fatalf("Failed to open trace: %v", err)
	}
	defer src.Close()

	kernelLog, err := os.Open(cfg.KernelLog)
	if err != nil {
		log.Fatalf("Failed to open kernel log: %v", err)
	}
	defer kernelLog.Close()

	out, err := os.Create(cfg.Output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer out.Close()

	res, err := rowclone.NewMatcher(kernelLog).Annotate(src, out)
	if err != nil {
		log.Fatalf("Annotation failed: %v", err)
	}

	log.Printf("Processed %d records: %d rowclones, %d regular accesses",
		res.Records, res.Rowclones, res.Regular)
	if res.UnmatchedCopies > 0 {
		log.Printf("Warning: %d kernel copies never matched", res.UnmatchedCopies)
	}
}
