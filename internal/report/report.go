// Package report renders anomaly streams for human or machine
// consumption. Presentation is kept out of the validator: the validator
// produces typed anomalies and a report writer decides what they look
// like.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/tracelens/tracelens/pkg/types"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Writer renders anomalies one at a time. Flush must be called after
// the last anomaly.
type Writer interface {
	Write(a types.Anomaly) error
	Flush() error
}

// New returns a Writer for the named format.
func New(format string, w io.Writer) (Writer, error) {
	switch format {
	case FormatText:
		return &textWriter{w: w}, nil
	case FormatCSV:
		return newCSVWriter(w), nil
	case FormatJSON:
		return &jsonWriter{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("report: unknown format %q (want text, csv, or json)", format)
	}
}

type textWriter struct {
	w io.Writer
}

func (t *textWriter) Write(a types.Anomaly) error {
	op := "load"
	if a.Record.IsStore() {
		op = "store"
	}
	_, err := fmt.Fprintf(t.w,
		"anomaly: counter went backwards by %d (prev=%d insn=%d cpu=%d op=%s addr=0x%016x)\n",
		a.Regression(), a.PrevCount, a.Record.InsnCount, a.Record.CPU, op, a.Record.Addr)
	return err
}

func (t *textWriter) Flush() error { return nil }

type csvWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

func newCSVWriter(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

func (c *csvWriter) Write(a types.Anomaly) error {
	if !c.wroteHeader {
		if err := c.w.Write([]string{"prev_count", "insn_count", "cpu", "op", "address"}); err != nil {
			return err
		}
		c.wroteHeader = true
	}
	return c.w.Write([]string{
		strconv.FormatUint(a.PrevCount, 10),
		strconv.FormatUint(a.Record.InsnCount, 10),
		strconv.Itoa(int(a.Record.CPU)),
		strconv.Itoa(int(a.Record.Op)),
		fmt.Sprintf("0x%016x", a.Record.Addr),
	})
}

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

type jsonWriter struct {
	enc *json.Encoder
}

func (j *jsonWriter) Write(a types.Anomaly) error {
	return j.enc.Encode(a)
}

func (j *jsonWriter) Flush() error { return nil }
