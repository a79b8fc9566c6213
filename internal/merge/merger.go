// Package merge combines per-CPU binary trace logs into a single stream
// ordered by instruction counter.
package merge

import (
	"container/heap"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/pkg/types"
)

// Result summarizes a merge run.
type Result struct {
	// Records is the total number of records written.
	Records int64

	// OutOfOrder counts merged records whose instruction counter was
	// lower than the previously written one. Non-zero means the
	// per-CPU sources themselves were not internally ordered.
	OutOfOrder int64

	// Output is the final output path.
	Output string
}

// source is one input stream plus its current head record.
type source struct {
	r   *trace.Reader
	rec types.TraceRecord
	idx int
}

// sourceHeap is a min-heap keyed by (InsnCount, source index). The index
// tie-break keeps merging deterministic for equal counters.
type sourceHeap []*source

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	if h[i].rec.InsnCount != h[j].rec.InsnCount {
		return h[i].rec.InsnCount < h[j].rec.InsnCount
	}
	return h[i].idx < h[j].idx
}
func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap) Push(x interface{}) {
	*h = append(*h, x.(*source))
}

func (h *sourceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	*h = old[:n-1]
	return s
}

// Merge performs a k-way merge of the input logs into output. It writes
// to a uuid-suffixed temporary file in the same directory and renames it
// into place on success, so a failed merge never leaves a partial
// output behind. batchRecords tunes the per-source read batch.
func Merge(inputs []string, output string, batchRecords int) (*Result, error) {
	if len(inputs) == 0 {
		return nil, terrors.NewMergeError(terrors.CodeSourceMissing, "no input logs given", nil)
	}

	readers := make([]*trace.Reader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	h := make(sourceHeap, 0, len(inputs))
	for i, path := range inputs {
		r, err := trace.OpenReader(path, batchRecords)
		if err != nil {
			return nil, terrors.NewMergeError(terrors.CodeSourceMissing,
				fmt.Sprintf("cannot open source %s", path), err)
		}
		readers = append(readers, r)

		rec, err := r.Next()
		if err == io.EOF {
			continue // empty source
		}
		if err != nil {
			return nil, err
		}
		h = append(h, &source{r: r, rec: rec, idx: i})
	}
	heap.Init(&h)

	tmpPath := tempOutputPath(output)
	w, err := trace.CreateWriter(tmpPath)
	if err != nil {
		return nil, err
	}

	res := &Result{Output: output}
	var prevCount uint64

	for h.Len() > 0 {
		s := h[0]

		if s.rec.InsnCount < prevCount {
			res.OutOfOrder++
			log.Printf("merge: instruction count out of order at source %s (prev=%d, got=%d)",
				inputs[s.idx], prevCount, s.rec.InsnCount)
		}
		prevCount = s.rec.InsnCount

		if err := w.Write(s.rec); err != nil {
			w.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		res.Records++

		rec, err := s.r.Next()
		if err == io.EOF {
			heap.Pop(&h)
			continue
		}
		if err != nil {
			w.Close()
			os.Remove(tmpPath)
			return nil, err
		}
		s.rec = rec
		heap.Fix(&h, 0)
	}

	if err := w.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, output); err != nil {
		os.Remove(tmpPath)
		return nil, terrors.NewMergeError(terrors.CodeWriteFailed, "cannot finalize "+output, err)
	}

	return res, nil
}

// PerCPUInputs builds the conventional per-CPU input paths
// <dir>/<base>.<cpu> for cpus 0..n-1, as the tracer writes them.
func PerCPUInputs(dir, base string, cpus int) []string {
	inputs := make([]string, cpus)
	for c := 0; c < cpus; c++ {
		inputs[c] = fmt.Sprintf("%s/%s.%d", dir, base, c)
	}
	return inputs
}

// tempOutputPath places a uuid-tagged temp name next to output while
// preserving a trailing ".sz" so the writer keeps the compression
// decision of the final name.
func tempOutputPath(output string) string {
	id := uuid.New().String()[:8]
	if strings.HasSuffix(output, ".sz") {
		return strings.TrimSuffix(output, ".sz") + ".merge-" + id + ".sz"
	}
	return output + ".merge-" + id
}
