// Package integration exercises the whole pipeline end to end: per-CPU
// logs are merged, validated, annotated with rowclones and filtered
// through the cache model, all driven through the app orchestrator.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelens/tracelens/internal/app"
	"github.com/tracelens/tracelens/internal/catalog"
	"github.com/tracelens/tracelens/internal/config"
	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/internal/validate"
	"github.com/tracelens/tracelens/pkg/types"
)

func writeLog(t *testing.T, path string, recs []types.TraceRecord) {
	t.Helper()
	w, err := trace.CreateWriter(path)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Close())
}

func rec(insn uint64, cpu uint8, op uint8, addr uint64) types.TraceRecord {
	return types.TraceRecord{InsnCount: insn, CPU: cpu, Op: op, Size: 3, Addr: addr}
}

func TestPipelineEndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	rawDir := filepath.Join(dataDir, "raw")
	require.NoError(t, os.MkdirAll(rawDir, 0755))

	// Two per-CPU logs, individually sorted. CPU 1 contains a counter
	// regression the validator must catch.
	writeLog(t, filepath.Join(rawDir, "trace.log.0"), []types.TraceRecord{
		rec(10, 0, types.OpLoad, 0x1000),
		rec(30, 0, types.OpStore, 0x2000),
		rec(50, 0, types.OpLoad, 0x3000),
	})
	writeLog(t, filepath.Join(rawDir, "trace.log.1"), []types.TraceRecord{
		rec(20, 1, types.OpLoad, 0x4000),
		rec(40, 1, types.OpStore, 0x5000),
		rec(25, 1, types.OpLoad, 0x6000),
	})

	// Kernel log with a copy that never matches: all accesses above are
	// regular traffic.
	kernelLog := filepath.Join(dataDir, "kernel.log")
	require.NoError(t, os.WriteFile(kernelLog,
		[]byte("N=sh,r,0,8,0x0,0x00000000deadb000,0x0,0x00000000beef0000\n"), 0644))

	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Merge.InputDir = rawDir
	cfg.Merge.CPUs = 2
	cfg.Validation.Format = "csv"
	cfg.Validation.Output = filepath.Join(dataDir, "anomalies.csv")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Run(ctx))

	// Merged log is globally sorted with all six records.
	anomalies, records, err := validate.Collect(cfg.Merge.Output, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), records)

	// Merging sorts by instruction count, so the source-local
	// regression (40 -> 25 on cpu 1) disappears from the merged stream.
	assert.Empty(t, anomalies)

	// The pre-merge scan of cpu 1 alone does see it.
	perCPU, _, err := validate.Collect(filepath.Join(rawDir, "trace.log.1"), 0)
	require.NoError(t, err)
	require.Len(t, perCPU, 1)
	assert.Equal(t, uint64(40), perCPU[0].PrevCount)
	assert.Equal(t, uint64(25), perCPU[0].Record.InsnCount)

	// The catalog recorded the validate run.
	cat, err := catalog.NewCatalog(cfg.Validation.CatalogPath)
	require.NoError(t, err)
	defer cat.Close()
	runs, err := cat.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(6), runs[0].RecordCount)
	assert.Equal(t, int64(0), runs[0].AnomalyCount)

	// Rowclone stage passed all accesses through as regular lines.
	annotated, err := os.ReadFile(cfg.Rowclone.Output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(annotated)), "\n")
	assert.Len(t, lines, 6)
	for _, line := range lines {
		access, err := types.ParseMemoryAccess(line)
		require.NoError(t, err)
		assert.False(t, access.Rowclone)
	}

	// Cachesim output exists; all six distinct blocks are cold misses.
	filtered, err := os.ReadFile(cfg.Cachesim.Output)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(filtered)), "\n"), 6)
}

func TestPipelineValidateStageOnly(t *testing.T) {
	dataDir := t.TempDir()

	input := filepath.Join(dataDir, "merged.log")
	writeLog(t, input, []types.TraceRecord{
		rec(10, 0, types.OpLoad, 0x1000),
		rec(20, 0, types.OpStore, 0x2000),
		rec(15, 0, types.OpLoad, 0x3000),
		rec(30, 0, types.OpStore, 0x4000),
	})

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeValidate
	cfg.DataDir = dataDir
	cfg.Validation.Input = input
	cfg.Validation.Format = "json"
	cfg.Validation.Output = filepath.Join(dataDir, "anomalies.json")

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.Run(ctx))

	cat, err := catalog.NewCatalog(cfg.Validation.CatalogPath)
	require.NoError(t, err)
	defer cat.Close()

	runs, err := cat.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(4), runs[0].RecordCount)
	assert.Equal(t, int64(1), runs[0].AnomalyCount)

	stored, err := cat.AnomaliesForRun(ctx, runs[0].RunID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint64(20), stored[0].PrevCount)
	assert.Equal(t, uint64(15), stored[0].Record.InsnCount)

	// No merge ran, so no merged output beyond the provided input.
	_, err = os.Stat(filepath.Join(dataDir, "rowclone.log"))
	assert.True(t, os.IsNotExist(err))
}
