package merge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/pkg/types"
)

func writeSource(t *testing.T, dir string, cpu int, counts []uint64) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("exec.log.%d", cpu))
	w, err := trace.CreateWriter(path)
	assert.NoError(t, err)
	for _, c := range counts {
		assert.NoError(t, w.Write(types.TraceRecord{InsnCount: c, CPU: uint8(cpu)}))
	}
	assert.NoError(t, w.Close())
	return path
}

func readCounts(t *testing.T, path string) []uint64 {
	t.Helper()
	r, err := trace.OpenReader(path, 0)
	assert.NoError(t, err)
	defer r.Close()

	var out []uint64
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		out = append(out, rec.InsnCount)
	}
	return out
}

func TestMergeInterleavedSources(t *testing.T) {
	dir := t.TempDir()
	in := []string{
		writeSource(t, dir, 0, []uint64{1, 4, 9}),
		writeSource(t, dir, 1, []uint64{2, 3, 10}),
		writeSource(t, dir, 2, []uint64{5, 6, 7, 8}),
	}
	out := filepath.Join(dir, "merged.log")

	res, err := Merge(in, out, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(10), res.Records)
	assert.Zero(t, res.OutOfOrder)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, readCounts(t, out))
}

func TestMergeEqualCountsTieBreakBySource(t *testing.T) {
	dir := t.TempDir()
	in := []string{
		writeSource(t, dir, 0, []uint64{5}),
		writeSource(t, dir, 1, []uint64{5}),
	}
	out := filepath.Join(dir, "merged.log")

	_, err := Merge(in, out, 0)
	assert.NoError(t, err)

	r, err := trace.OpenReader(out, 0)
	assert.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	assert.NoError(t, err)
	second, err := r.Next()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), first.CPU)
	assert.Equal(t, uint8(1), second.CPU)
}

func TestMergeEmptySourceSkipped(t *testing.T) {
	dir := t.TempDir()
	in := []string{
		writeSource(t, dir, 0, []uint64{1, 2}),
		writeSource(t, dir, 1, nil),
	}
	out := filepath.Join(dir, "merged.log")

	res, err := Merge(in, out, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), res.Records)
}

func TestMergeCountsOutOfOrderSources(t *testing.T) {
	dir := t.TempDir()
	// Source 0 is internally unsorted; the merger passes records through
	// in heap order and reports the disorder it observes.
	in := []string{writeSource(t, dir, 0, []uint64{10, 3, 20})}
	out := filepath.Join(dir, "merged.log")

	res, err := Merge(in, out, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), res.OutOfOrder)
	assert.Equal(t, []uint64{10, 3, 20}, readCounts(t, out))
}

func TestMergeCompressedOutput(t *testing.T) {
	dir := t.TempDir()
	in := []string{writeSource(t, dir, 0, []uint64{1, 2, 3})}
	out := filepath.Join(dir, "merged.log.sz")

	res, err := Merge(in, out, 0)
	assert.NoError(t, err)
	assert.Equal(t, out, res.Output)
	assert.Equal(t, []uint64{1, 2, 3}, readCounts(t, out))
}

func TestMergeMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Merge([]string{filepath.Join(dir, "nope.log")}, filepath.Join(dir, "out.log"), 0)
	assert.Error(t, err)
}

func TestMergeNoInputs(t *testing.T) {
	_, err := Merge(nil, filepath.Join(t.TempDir(), "out.log"), 0)
	assert.Error(t, err)
}

func TestPerCPUInputs(t *testing.T) {
	in := PerCPUInputs("/logs", "exec.log", 3)
	assert.Equal(t, []string{"/logs/exec.log.0", "/logs/exec.log.1", "/logs/exec.log.2"}, in)
}

// TestProperty_MergeOfSortedSourcesIsSorted: merging individually sorted
// sources yields a globally sorted stream containing every record.
func TestProperty_MergeOfSortedSourcesIsSorted(t *testing.T) {
	dir := t.TempDir()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	trial := 0
	properties.Property("merged output is sorted and complete", prop.ForAll(
		func(a, b, c []uint64) bool {
			trial++
			caseDir := filepath.Join(dir, fmt.Sprintf("case_%d", trial))
			if err := os.MkdirAll(caseDir, 0755); err != nil {
				return false
			}
			sources := [][]uint64{a, b, c}

			var all []uint64
			var inputs []string
			for cpu, counts := range sources {
				sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
				all = append(all, counts...)

				path := filepath.Join(caseDir, fmt.Sprintf("exec.log.%d", cpu))
				w, err := trace.CreateWriter(path)
				if err != nil {
					return false
				}
				for _, count := range counts {
					if err := w.Write(types.TraceRecord{InsnCount: count, CPU: uint8(cpu)}); err != nil {
						return false
					}
				}
				if err := w.Close(); err != nil {
					return false
				}
				inputs = append(inputs, path)
			}

			out := filepath.Join(caseDir, "merged.log")
			res, err := Merge(inputs, out, 1)
			if err != nil || res.OutOfOrder != 0 {
				return false
			}

			sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
			got := mustReadCounts(out)
			if len(got) != len(all) {
				return false
			}
			for i := range all {
				if got[i] != all[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(0, 500)),
		gen.SliceOf(gen.UInt64Range(0, 500)),
		gen.SliceOf(gen.UInt64Range(0, 500)),
	))

	properties.TestingRun(t)
}

func mustReadCounts(path string) []uint64 {
	r, err := trace.OpenReader(path, 0)
	if err != nil {
		return nil
	}
	defer r.Close()

	var out []uint64
	for {
		rec, err := r.Next()
		if err != nil {
			return out
		}
		out = append(out, rec.InsnCount)
	}
}
