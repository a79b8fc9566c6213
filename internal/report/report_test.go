package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tracelens/tracelens/pkg/types"
)

var sample = types.Anomaly{
	PrevCount: 20,
	Record: types.TraceRecord{
		InsnCount: 15,
		CPU:       2,
		Op:        types.OpStore,
		Addr:      0x1000,
	},
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(FormatText, &buf)
	assert.NoError(t, err)

	assert.NoError(t, w.Write(sample))
	assert.NoError(t, w.Flush())

	out := buf.String()
	assert.Contains(t, out, "prev=20")
	assert.Contains(t, out, "insn=15")
	assert.Contains(t, out, "op=store")
	assert.Contains(t, out, "backwards by 5")
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(FormatCSV, &buf)
	assert.NoError(t, err)

	assert.NoError(t, w.Write(sample))
	assert.NoError(t, w.Write(sample))
	assert.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "prev_count,insn_count,cpu,op,address", lines[0])
	assert.Equal(t, "20,15,2,1,0x0000000000001000", lines[1])
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(FormatJSON, &buf)
	assert.NoError(t, err)

	assert.NoError(t, w.Write(sample))
	assert.NoError(t, w.Flush())

	var decoded types.Anomaly
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sample, decoded)
}

func TestUnknownFormat(t *testing.T) {
	_, err := New("xml", &bytes.Buffer{})
	assert.Error(t, err)
}
