// Package app runs the trace analysis pipeline: merge the per-CPU
// logs, validate the merged stream, annotate rowclones and filter the
// result through the cache simulator.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tracelens/tracelens/internal/cachesim"
	"github.com/tracelens/tracelens/internal/catalog"
	"github.com/tracelens/tracelens/internal/config"
	"github.com/tracelens/tracelens/internal/merge"
	"github.com/tracelens/tracelens/internal/observability"
	"github.com/tracelens/tracelens/internal/report"
	"github.com/tracelens/tracelens/internal/rowclone"
	"github.com/tracelens/tracelens/internal/storage"
	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/internal/validate"
	"github.com/tracelens/tracelens/pkg/types"
)

// App runs the configured pipeline stages in order.
type App struct {
	cfg   *config.Config
	store storage.ArchiveStore
}

// New creates an App with the given configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, store: store}, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.ArchiveStore, error) {
	switch cfg.Storage.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3cfg.Region = cfg.Storage.S3.Region
		}
		s3cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3cfg.UsePathStyle = cfg.Storage.S3.Endpoint != ""
		return storage.NewS3Store(ctx, cfg.Storage.S3.Bucket, s3cfg)
	default:
		return storage.NewLocalStore(cfg.Storage.Path)
	}
}

// Run executes the configured stages in pipeline order.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.ShouldRunMerge() {
		if err := a.runMerge(); err != nil {
			return err
		}
	}
	if a.cfg.ShouldRunValidate() {
		if err := a.runValidate(ctx); err != nil {
			return err
		}
	}
	if a.cfg.ShouldRunRowclone() {
		if err := a.runRowclone(); err != nil {
			return err
		}
	}
	if a.cfg.ShouldRunCachesim() {
		if err := a.runCachesim(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runMerge() error {
	inputs := merge.PerCPUInputs(a.cfg.Merge.InputDir, a.cfg.Merge.InputBase, a.cfg.Merge.CPUs)

	res, err := merge.Merge(inputs, a.cfg.Merge.Output, a.cfg.Validation.BatchRecords)
	if err != nil {
		return err
	}
	log.Printf("merge: %d records from %d logs into %s (%d out-of-order)",
		res.Records, len(inputs), a.cfg.Merge.Output, res.OutOfOrder)
	return nil
}

func (a *App) runValidate(ctx context.Context) error {
	input := a.cfg.Validation.Input

	if remote := a.cfg.Validation.Remote; remote != "" {
		log.Printf("validate: fetching %s from archive", remote)
		if err := a.store.Fetch(ctx, remote, input); err != nil {
			return err
		}
	}

	digest, err := trace.Digest(input)
	if err != nil {
		return err
	}

	v, err := validate.Open(input, a.cfg.Validation.BatchRecords)
	if err != nil {
		return err
	}
	defer v.Close()

	stats := observability.NewScanStats()
	v.SetStats(stats)

	out := os.Stdout
	if a.cfg.Validation.Output != "" {
		f, err := os.Create(a.cfg.Validation.Output)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}
	rep, err := report.New(a.cfg.Validation.Format, out)
	if err != nil {
		return err
	}

	started := time.Now()
	anomalies, err := drain(v, rep)
	if err != nil {
		return err
	}
	if err := rep.Flush(); err != nil {
		return err
	}

	snap := stats.Snapshot()
	log.Printf("validate: %d records scanned, %d anomalies in %v",
		snap.Records, snap.Anomalies, snap.Elapsed.Round(time.Millisecond))

	cat, err := catalog.NewCatalog(a.cfg.Validation.CatalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	run := &catalog.Run{
		TracePath:    input,
		Digest:       digest,
		BatchRecords: a.cfg.Validation.BatchRecords,
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
	log.Printf("validate: run %s recorded in catalog", run.RunID)
	return nil
}

// drain pulls the validator dry, writing each anomaly to the report as
// it is found.
func drain(v *validate.Validator, rep report.Writer) ([]types.Anomaly, error) {
	var anomalies []types.Anomaly
	for {
		a, err := v.Next()
		if err == io.EOF {
			return anomalies, nil
		}
		if err != nil {
			return anomalies, err
		}
		if err := rep.Write(*a); err != nil {
			return anomalies, err
		}
		anomalies = append(anomalies, *a)
	}
}

func (a *App) runRowclone() error {
	src, err := trace.OpenReader(a.cfg.Rowclone.Input, a.cfg.Validation.BatchRecords)
	if err != nil {
		return err
	}
	defer src.Close()

	kernelLog, err := os.Open(a.cfg.Rowclone.KernelLog)
	if err != nil {
		return fmt.Errorf("failed to open kernel log: %w", err)
	}
	defer kernelLog.Close()

	out, err := os.Create(a.cfg.Rowclone.Output)
	if err != nil {
		return fmt.Errorf("failed to create annotated trace: %w", err)
	}
	defer out.Close()

	res, err := rowclone.NewMatcher(kernelLog).Annotate(src, out)
	if err != nil {
		return err
	}
	log.Printf("rowclone: %d records, %d rowclones, %d regular accesses",
		res.Records, res.Rowclones, res.Regular)
	return nil
}

func (a *App) runCachesim(ctx context.Context) error {
	cache, err := cachesim.New(
		int(a.cfg.Cachesim.SizeBytes),
		int(a.cfg.Cachesim.BlockSize),
		a.cfg.Cachesim.Associativity)
	if err != nil {
		return err
	}

	in, err := os.Open(a.cfg.Cachesim.Input)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer in.Close()

	out, err := os.Create(a.cfg.Cachesim.Output)
	if err != nil {
		return fmt.Errorf("failed to create filtered trace: %w", err)
	}
	defer out.Close()

	res, err := cache.FilterTrace(in, out)
	if err != nil {
		return err
	}
	log.Printf("cachesim: %d accesses, %d hits dropped, %d misses kept, %d rowclones",
		res.Accesses, res.Hits, res.Misses, res.Rowclones)

	if publish := a.cfg.Cachesim.Publish; publish != "" {
		if err := out.Sync(); err != nil {
			return fmt.Errorf("failed to sync filtered trace: %w", err)
		}
		log.Printf("cachesim: publishing filtered trace to %s", publish)
		if err := a.store.Publish(ctx, a.cfg.Cachesim.Output, publish); err != nil {
			return err
		}
	}
	return nil
}
