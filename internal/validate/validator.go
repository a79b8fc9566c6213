// Package validate implements the sequence validator: a single forward
// scan over a binary trace log that reports every record whose
// instruction counter decreases relative to its predecessor.
package validate

import (
	"io"

	"github.com/tracelens/tracelens/internal/observability"
	"github.com/tracelens/tracelens/internal/trace"
	"github.com/tracelens/tracelens/pkg/types"
)

// Validator lazily produces anomalies from one pass over a trace log.
//
// The only scan state is the previous record's instruction counter,
// initialized to zero before the first record. The stream is consumed
// once, in forward order; each Validator is independent and a caller
// may stop calling Next at any point.
type Validator struct {
	r         *trace.Reader
	prevCount uint64
	records   int64
	anomalies int64
	stats     *observability.ScanStats
}

// NewValidator wraps an open trace reader. The validator takes ownership
// of the reader; Close closes it.
func NewValidator(r *trace.Reader) *Validator {
	return &Validator{r: r}
}

// Open opens the trace log at path for validation. batchRecords <= 0
// selects the default read batch; batch size never changes the anomaly
// stream.
func Open(path string, batchRecords int) (*Validator, error) {
	r, err := trace.OpenReader(path, batchRecords)
	if err != nil {
		return nil, err
	}
	return NewValidator(r), nil
}

// SetStats attaches a stats tracker that is updated as the scan
// progresses.
func (v *Validator) SetStats(s *observability.ScanStats) {
	v.stats = s
}

// Next returns the next anomaly in stream order. It returns io.EOF at
// clean end-of-stream; an empty input yields io.EOF immediately. A read
// failure surfaces as-is, after every anomaly preceding it has already
// been returned.
func (v *Validator) Next() (*types.Anomaly, error) {
	for {
		rec, err := v.r.Next()
		if err != nil {
			return nil, err
		}
		v.records++
		if v.stats != nil {
			v.stats.RecordScanned(rec.CPU)
		}

		prev := v.prevCount
		v.prevCount = rec.InsnCount

		if rec.InsnCount < prev {
			v.anomalies++
			if v.stats != nil {
				v.stats.AnomalyFound(rec.CPU)
			}
			return &types.Anomaly{PrevCount: prev, Record: rec}, nil
		}
	}
}

// Records returns how many records have been consumed so far.
func (v *Validator) Records() int64 {
	return v.records
}

// Anomalies returns how many anomalies have been produced so far.
func (v *Validator) Anomalies() int64 {
	return v.anomalies
}

// Close releases the underlying file. Safe on every exit path,
// including early termination and after errors.
func (v *Validator) Close() error {
	return v.r.Close()
}

// Collect runs a validator to completion and returns all anomalies.
// The total record count is returned alongside.
func Collect(path string, batchRecords int) ([]types.Anomaly, int64, error) {
	v, err := Open(path, batchRecords)
	if err != nil {
		return nil, 0, err
	}
	defer v.Close()

	var out []types.Anomaly
	for {
		a, err := v.Next()
		if err == io.EOF {
			return out, v.Records(), nil
		}
		if err != nil {
			return out, v.Records(), err
		}
		out = append(out, *a)
	}
}
