package types

import "fmt"

// Anomaly is a detected violation of the monotonic instruction-counter
// invariant between two consecutive records of a trace stream.
type Anomaly struct {
	// PrevCount is the instruction counter of the record immediately
	// preceding the offending one.
	PrevCount uint64 `json:"prev_count"`

	// Record is the offending record, whose InsnCount is strictly less
	// than PrevCount.
	Record TraceRecord `json:"record"`
}

// Regression returns how far the counter moved backwards.
func (a Anomaly) Regression() uint64 {
	return a.PrevCount - a.Record.InsnCount
}

func (a Anomaly) String() string {
	return fmt.Sprintf("prev=%d insn=%d cpu=%d op=%d addr=0x%016x",
		a.PrevCount, a.Record.InsnCount, a.Record.CPU, a.Record.Op, a.Record.Addr)
}
