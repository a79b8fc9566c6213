// Package main implements the tracelens-validate binary.
// It scans a binary trace log for instruction counter regressions,
// writes an anomaly report and optionally records the run in a catalog.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/tracelens/tracelens/internal/catalog"
	"github.com/tracelens/tracelens/internal/observability"
	"github.com/tracelens/tracelens/internal/report"
	"github.com/tracelens/tracelens/internal/storage"
	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/internal/validate"
	"github.com/tracelens/tracelens/pkg/types"
)

// Config holds the validator configuration.
type Config struct {
	Input       string
	Batch       int
	Output      string
	Format      string
	CatalogPath string
	Remote      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Input, "input", "", "Trace log to scan (required)")
	flag.IntVar(&cfg.Batch, "batch", trace.DefaultBatchRecords, "Records read per batch")
	flag.StringVar(&cfg.Output, "output", "", "Anomaly report path (default stdout)")
	flag.StringVar(&cfg.Format, "format", report.FormatText, "Report format: text, csv, json")
	flag.StringVar(&cfg.CatalogPath, "catalog", "", "Run catalog database path (optional)")
	flag.StringVar(&cfg.Remote, "remote", "", "Archive path to fetch the input from (optional)")
	flag.StringVar(&cfg.S3Bucket, "s3-bucket", "", "S3 bucket for remote fetch")
	flag.StringVar(&cfg.S3Region, "s3-region", "", "AWS region for remote fetch")
	flag.StringVar(&cfg.S3Endpoint, "s3-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")
	flag.Parse()

	if cfg.Input == "" {
		log.Fatalf("-input is required")
	}
	return cfg
}

func main() {
	cfg := parseFlags()
	ctx := context.Background()

	if cfg.Remote != "" {
		if err := fetchRemote(ctx, cfg); err != nil {
			log.Fatalf("Failed to fetch %s: %v", cfg.Remote, err)
		}
	}

	v, err := validate.Open(cfg.Input, cfg.Batch)
	if err != nil {
		log.Fatalf("Failed to open trace: %v", err)
	}
	defer v.Close()

	stats := observability.NewScanStats()
	v.SetStats(stats)

	out := os.Stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			log.Fatalf("Failed to create report file: %v", err)
		}
		defer f.Close()
		out = f
	}

	rep, err := report.New(cfg.Format, out)
	if err != nil {
		log.Fatalf("Invalid report format: %v", err)
	}

	started := time.Now()
	var anomalies []types.Anomaly
	for {
		a, err := v.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Scan failed after %d records: %v", v.Records(), err)
		}
		if err := rep.Write(*a); err != nil {
			log.Fatalf("Failed to write anomaly: %v", err)
		}
		anomalies = append(anomalies, *a)
	}
	if err := rep.Flush(); err != nil {
		log.Fatalf("Failed to flush report: %v", err)
	}

	snap := stats.Snapshot()
	log.Printf("Scanned %d records, found %d anomalies in %v",
		snap.Records, snap.Anomalies, snap.Elapsed.Round(time.Millisecond))
	for _, cpu := range snap.PerCPU {
		log.Printf("  cpu %d: %d records, %d anomalies", cpu.CPU, cpu.Records, cpu.Anomalies)
	}

	if cfg.CatalogPath != "" {
		if err := recordRun(ctx, cfg, v, anomalies, started); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
	}
}

func fetchRemote(ctx context.Context, cfg Config) error {
	if cfg.S3Bucket == "" {
		log.Fatalf("-s3-bucket is required with -remote")
	}

	s3cfg := storage.DefaultS3Config()
	if cfg.S3Region != "" {
		s3cfg.Region = cfg.S3Region
	}
	s3cfg.Endpoint = cfg.S3Endpoint
	s3cfg.UsePathStyle = cfg.S3Endpoint != ""

	store, err := storage.NewS3Store(ctx, cfg.S3Bucket, s3cfg)
	if err != nil {
		return err
	}

	log.Printf("Fetching %s from s3://%s", cfg.Remote, cfg.S3Bucket)
	return store.Fetch(ctx, cfg.Remote, cfg.Input)
}

func recordRun(ctx context.Context, cfg Config, v *validate.Validator, anomalies []types.Anomaly, started time.Time) error {
	digest, err := trace.Digest(cfg.Input)
	if err != nil {
		return err
	}

	cat, err := catalog.NewCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	run := &catalog.Run{
		TracePath:    cfg.Input,
		Digest:       digest,
		BatchRecords: cfg.Batch,
		RecordCount:  v.Records(),
		AnomalyCount: v.Anomalies(),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if err := cat.RegisterRun(ctx, run); err != nil {
		return err
	}
	if err := cat.RecordAnomalies(ctx, run.RunID, anomalies); err != nil {
		return err
	}

	log.Printf("Run %s recorded in %s", run.RunID, cfg.CatalogPath)
	return nil
}
