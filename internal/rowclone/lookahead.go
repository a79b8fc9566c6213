package rowclone

import (
	"github.com/tracelens/tracelens/pkg/types"
)

// RecordSource yields trace records one at a time, returning io.EOF
// when the stream ends.
type RecordSource interface {
	Next() (types.TraceRecord, error)
}

// Peeker wraps a RecordSource with bounded lookahead. PeekN buffers
// upcoming records without consuming them, which the matcher uses to
// confirm a copy start before committing to it.
type Peeker struct {
	src RecordSource
	buf []types.TraceRecord
	err error
}

// NewPeeker wraps src with lookahead buffering.
func NewPeeker(src RecordSource) *Peeker {
	return &Peeker{src: src}
}

// PeekN returns up to n upcoming records without consuming them. Fewer
// than n are returned when the stream ends first.
func (p *Peeker) PeekN(n int) []types.TraceRecord {
	for len(p.buf) < n && p.err == nil {
		rec, err := p.src.Next()
		if err != nil {
			p.err = err
			break
		}
		p.buf = append(p.buf, rec)
	}
	if len(p.buf) < n {
		return p.buf
	}
	return p.buf[:n]
}

// Next returns the next record, draining the lookahead buffer first.
func (p *Peeker) Next() (types.TraceRecord, error) {
	if len(p.buf) > 0 {
		rec := p.buf[0]
		p.buf = p.buf[1:]
		return rec, nil
	}
	if p.err != nil {
		return types.TraceRecord{}, p.err
	}
	return p.src.Next()
}
