package cachesim

import (
	"bufio"
	"fmt"
	"io"
	"log"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/pkg/types"
)

// FilterResult summarizes one filtering pass.
type FilterResult struct {
	Accesses  int64
	Hits      int64
	Misses    int64
	Rowclones int64
	Malformed int64
}

// FilterTrace reads an annotated CSV trace from r, simulates every
// regular access, and writes only the misses to w. Rowclone lines pass
// through untouched: a page copy never goes through the cache model.
// Malformed lines are counted and skipped, matching the tolerant
// behavior of the upstream annotation stage.
func (c *Cache) FilterTrace(r io.Reader, w io.Writer) (*FilterResult, error) {
	res := &FilterResult{}
	out := bufio.NewWriter(w)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		access, err := types.ParseMemoryAccess(line)
		if err != nil {
			res.Malformed++
			log.Printf("cachesim: skipping malformed trace line: %v", err)
			continue
		}

		if access.Rowclone {
			res.Rowclones++
			if _, err := fmt.Fprintln(out, access.String()); err != nil {
				return res, terrors.NewMergeError(terrors.CodeWriteFailed, "trace write failed", err)
			}
			continue
		}

		res.Accesses++
		if c.Access(access.Addr) {
			res.Hits++
			continue
		}
		res.Misses++
		if _, err := fmt.Fprintln(out, access.String()); err != nil {
			return res, terrors.NewMergeError(terrors.CodeWriteFailed, "trace write failed", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return res, terrors.NewReadError("trace stream", err)
	}

	return res, out.Flush()
}
