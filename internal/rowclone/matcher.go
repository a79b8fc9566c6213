package rowclone

import (
	"bufio"
	"fmt"
	"io"
	"log"

	terrors "github.com/tracelens/tracelens/internal/errors"
	"github.com/tracelens/tracelens/pkg/types"
)

const (
	// copyWindow is how many kernel copy entries are candidates for
	// matching at any time. Kernel log order roughly follows access
	// order, so a small window is enough.
	copyWindow = 20

	// confidenceWindow is how many upcoming accesses are inspected to
	// confirm a copy start.
	confidenceWindow = 100

	// confidenceBytes is the minimum number of bytes of matching loads
	// AND stores the confidence window must contain.
	confidenceBytes = 8
)

// memCpy tracks the progress of one copy through the access stream.
type memCpy struct {
	insnCount   uint64
	from        uint64
	to          uint64
	size        uint64
	currentFrom uint64
	currentTo   uint64
}

// matches reports whether rec is the next expected access of the copy:
// a load at the copy's read cursor or a store at its write cursor.
func (c *memCpy) matches(rec types.TraceRecord) bool {
	if rec.IsStore() {
		return c.currentTo == rec.Addr
	}
	return c.currentFrom == rec.Addr
}

// advance consumes rec and reports whether the copy is complete.
func (c *memCpy) advance(rec types.TraceRecord) bool {
	n := rec.AccessBytes()
	if rec.IsStore() {
		c.currentTo += n
	} else {
		c.currentFrom += n
	}
	return c.currentTo >= c.to+c.size
}

func newMemCpy(k *KernelRecord, insnCount uint64) memCpy {
	return memCpy{
		insnCount:   insnCount,
		from:        k.SourceAddr(),
		to:          k.DestAddr(),
		size:        k.Size,
		currentFrom: k.SourceAddr(),
		currentTo:   k.DestAddr(),
	}
}

// Result summarizes one annotation pass.
type Result struct {
	// Records is the number of trace records consumed.
	Records int64
	// Rowclones is the number of kernel copies matched in the stream.
	Rowclones int64
	// Regular is the number of pass-through accesses written.
	Regular int64
	// UnmatchedCopies is how many kernel copy entries never appeared in
	// the access stream.
	UnmatchedCopies int
}

// Matcher matches kernel copy log entries against a trace record
// stream and writes an annotated CSV access trace.
type Matcher struct {
	window  []KernelRecord
	ongoing []memCpy
	kernel  *bufio.Scanner
}

// NewMatcher creates a matcher reading kernel copy entries from
// kernelLog.
func NewMatcher(kernelLog io.Reader) *Matcher {
	return &Matcher{kernel: bufio.NewScanner(kernelLog)}
}

// Annotate consumes the record stream, collapses matched copies into
// rowclone records and writes everything else through as regular
// accesses.
func (m *Matcher) Annotate(src RecordSource, out io.Writer) (*Result, error) {
	m.fillWindow()

	w := bufio.NewWriter(out)
	peeker := NewPeeker(src)
	res := &Result{}

	for {
		rec, err := peeker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		res.Records++

		if m.advanceOngoing(rec) {
			continue
		}

		if i, ok := m.copyStart(rec, peeker); ok {
			cp := newMemCpy(&m.window[i], rec.InsnCount)
			if err := writeAccess(w, types.MemoryAccess{
				InsnCount: cp.insnCount,
				Rowclone:  true,
				From:      cp.from,
				To:        cp.to,
			}); err != nil {
				return nil, err
			}
			res.Rowclones++

			// The triggering load already consumed its bytes.
			cp.currentFrom += rec.AccessBytes()
			m.ongoing = append(m.ongoing, cp)

			m.window = append(m.window[:i], m.window[i+1:]...)
			m.fillWindow()
			continue
		}

		if err := writeAccess(w, types.MemoryAccess{
			InsnCount: rec.InsnCount,
			Store:     rec.IsStore(),
			CPU:       rec.CPU,
			Addr:      rec.Addr,
		}); err != nil {
			return nil, err
		}
		res.Regular++
	}

	if err := w.Flush(); err != nil {
		return nil, terrors.NewStorageError(terrors.CodeWriteFailed, "failed to flush annotated trace", err)
	}

	res.UnmatchedCopies = len(m.window)
	if res.UnmatchedCopies > 0 {
		log.Printf("rowclone: %d kernel copies never matched the access stream", res.UnmatchedCopies)
	}
	if n := len(m.ongoing); n > 0 {
		log.Printf("rowclone: %d copies unfinished at end of trace", n)
	}
	return res, nil
}

// advanceOngoing checks rec against the in-progress copies. A match
// consumes the access.
func (m *Matcher) advanceOngoing(rec types.TraceRecord) bool {
	for i := range m.ongoing {
		if m.ongoing[i].matches(rec) {
			if m.ongoing[i].advance(rec) {
				m.ongoing = append(m.ongoing[:i], m.ongoing[i+1:]...)
			}
			return true
		}
	}
	return false
}

// copyStart reports whether rec begins one of the windowed kernel
// copies. A copy starts with a load from its source address, confirmed
// by enough matching traffic in the upcoming accesses.
func (m *Matcher) copyStart(rec types.TraceRecord, peeker *Peeker) (int, bool) {
	if rec.IsStore() {
		return 0, false
	}
	for i := range m.window {
		if m.window[i].SourceAddr() != rec.Addr {
			continue
		}
		if m.startConfidence(&m.window[i], rec, peeker) > confidenceBytes {
			return i, true
		}
	}
	return 0, false
}

// startConfidence simulates the copy over the lookahead window and
// returns the smaller of matched load and store bytes. A copy that
// completes inside the window short-circuits above the threshold.
func (m *Matcher) startConfidence(k *KernelRecord, trigger types.TraceRecord, peeker *Peeker) uint64 {
	cp := newMemCpy(k, trigger.InsnCount)
	cp.currentFrom += trigger.AccessBytes()

	var loadBytes, storeBytes uint64
	for _, rec := range peeker.PeekN(confidenceWindow) {
		if !cp.matches(rec) {
			continue
		}
		if cp.advance(rec) {
			return confidenceBytes + 1
		}
		if rec.IsStore() {
			storeBytes += rec.AccessBytes()
		} else {
			loadBytes += rec.AccessBytes()
		}
	}
	if loadBytes < storeBytes {
		return loadBytes
	}
	return storeBytes
}

// fillWindow tops the candidate window up from the kernel log.
func (m *Matcher) fillWindow() {
	for len(m.window) < copyWindow && m.kernel.Scan() {
		rec, ok := ParseKernelLine(m.kernel.Text())
		if !ok {
			log.Printf("rowclone: skipping unparsable kernel line: %s", m.kernel.Text())
			continue
		}
		m.window = append(m.window, rec)
	}
}

func writeAccess(w *bufio.Writer, a types.MemoryAccess) error {
	if _, err := fmt.Fprintln(w, a.String()); err != nil {
		return terrors.NewStorageError(terrors.CodeWriteFailed, "failed to write access", err)
	}
	return nil
}
