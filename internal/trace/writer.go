package trace

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/pkg/types"
)

// Writer writes TraceRecords to a binary trace log. Output is buffered;
// files ending in ".sz" are snappy stream compressed. Close flushes.
type Writer struct {
	f     *os.File
	bw    *bufio.Writer
	sw    *snappy.Writer
	dst   io.Writer
	path  string
	buf   [types.RecordSize]byte
	count int64
}

// CreateWriter creates (or truncates) a trace log at path.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, terrors.NewMergeError(terrors.CodeWriteFailed, "cannot create "+path, err)
	}

	w := &Writer{f: f, path: path}
	w.bw = bufio.NewWriter(f)
	if strings.HasSuffix(path, ".sz") {
		w.sw = snappy.NewBufferedWriter(w.bw)
		w.dst = w.sw
	} else {
		w.dst = w.bw
	}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(rec types.TraceRecord) error {
	types.EncodeRecord(rec, w.buf[:])
	if _, err := w.dst.Write(w.buf[:]); err != nil {
		return terrors.NewMergeError(terrors.CodeWriteFailed, "write failed on "+w.path, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Close flushes buffered data and closes the file.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	if w.sw != nil {
		if err := w.sw.Close(); err != nil {
			w.f.Close()
			w.f = nil
			return terrors.NewMergeError(terrors.CodeWriteFailed, "flush failed on "+w.path, err)
		}
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		w.f = nil
		return terrors.NewMergeError(terrors.CodeWriteFailed, "flush failed on "+w.path, err)
	}
	err := w.f.Close()
	w.f = nil
	if err != nil {
		return terrors.NewMergeError(terrors.CodeWriteFailed, "close failed on "+w.path, err)
	}
	return nil
}
