// Package trace provides batch IO over fixed-size binary trace logs.
//
// A trace log is a headerless, frameless sequence of 24-byte records
// (see pkg/types). Files ending in ".sz" are snappy stream compressed.
package trace

import (
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/pkg/types"
)

// DefaultBatchRecords is the number of records read per IO operation
// when no explicit batch size is given. Batch size is a tuning knob
// only: any batch size yields an identical record stream.
const DefaultBatchRecords = 4096

// Reader streams TraceRecords from a binary trace log.
//
// Records are read in fixed-size batches into a buffer reused across
// refills; decoded records do not alias the buffer. A trailing partial
// record is treated as end-of-stream and discarded. Next returns io.EOF
// on clean end; any other failure is a structured read error.
type Reader struct {
	f    *os.File
	src  io.Reader
	path string

	buf []byte
	pos int
	n   int

	err error
}

// OpenReader opens a trace log for streaming. batchRecords <= 0 selects
// DefaultBatchRecords.
func OpenReader(path string, batchRecords int) (*Reader, error) {
	if batchRecords <= 0 {
		batchRecords = DefaultBatchRecords
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, terrors.NewOpenError(path, err)
	}

	var src io.Reader = f
	if strings.HasSuffix(path, ".sz") {
		src = snappy.NewReader(f)
	}

	return &Reader{
		f:    f,
		src:  src,
		path: path,
		buf:  make([]byte, batchRecords*types.RecordSize),
	}, nil
}

// Next returns the next record in file order, or io.EOF at clean
// end-of-stream. After a non-EOF error the reader is poisoned and
// keeps returning the same error.
func (r *Reader) Next() (types.TraceRecord, error) {
	if r.err != nil {
		return types.TraceRecord{}, r.err
	}

	if r.n-r.pos < types.RecordSize {
		if err := r.fill(); err != nil {
			r.err = err
			return types.TraceRecord{}, err
		}
	}

	rec := types.DecodeRecord(r.buf[r.pos : r.pos+types.RecordSize])
	r.pos += types.RecordSize
	return rec, nil
}

// fill slides any partial record to the front of the buffer and reads
// the next batch. Returns io.EOF when fewer bytes than one record
// remain in the stream.
func (r *Reader) fill() error {
	rem := copy(r.buf, r.buf[r.pos:r.n])
	r.pos, r.n = 0, rem

	for r.n < types.RecordSize {
		m, err := r.src.Read(r.buf[r.n:])
		r.n += m
		if err == io.EOF {
			if r.n >= types.RecordSize {
				break
			}
			return io.EOF
		}
		if err != nil {
			return terrors.NewReadError(r.path, err)
		}
	}
	return nil
}

// Path returns the path the reader was opened with.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the underlying file. Safe to call after an error or
// early termination.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
