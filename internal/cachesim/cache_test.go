package cachesim

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheColdMissThenHit(t *testing.T) {
	c, err := New(1024, 64, 8)
	assert.NoError(t, err)

	assert.False(t, c.Access(0x1000))
	assert.True(t, c.Access(0x1000))
	// Same block, different offset.
	assert.True(t, c.Access(0x1008))
}

func TestCacheLRUEviction(t *testing.T) {
	// Direct-mapped single set with 2 ways: 2 blocks of 64B.
	c, err := New(128, 64, 2)
	assert.NoError(t, err)
	assert.Equal(t, 1, c.Sets())

	assert.False(t, c.Access(0x0))   // fill way 0 (block 0)
	assert.False(t, c.Access(0x40))  // fill way 1 (block 1)
	assert.True(t, c.Access(0x0))    // block 0 now MRU
	assert.False(t, c.Access(0x80))  // evicts LRU block 1
	assert.True(t, c.Access(0x0))    // survived
	assert.False(t, c.Access(0x40))  // was evicted
}

func TestCacheSetSelection(t *testing.T) {
	// 2 sets, 1-way: blocks alternate between sets.
	c, err := New(128, 64, 1)
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Sets())

	assert.False(t, c.Access(0x0))  // set 0
	assert.False(t, c.Access(0x40)) // set 1, must not evict set 0
	assert.True(t, c.Access(0x0))
	assert.True(t, c.Access(0x40))
}

func TestCacheInvalidGeometry(t *testing.T) {
	_, err := New(0, 64, 8)
	assert.Error(t, err)
	_, err = New(64, 64, 8) // 1 line, 8-way: no sets
	assert.Error(t, err)
}

func TestFilterTraceDropsHits(t *testing.T) {
	c, err := New(1024, 64, 8)
	assert.NoError(t, err)

	in := strings.Join([]string{
		"1,0,0,0,0x0000000000001000",
		"2,0,1,0,0x0000000000001008", // same block: hit, dropped
		"3,0,0,1,0x0000000000002000",
	}, "\n")

	var out bytes.Buffer
	res, err := c.FilterTrace(strings.NewReader(in), &out)
	assert.NoError(t, err)

	assert.Equal(t, int64(3), res.Accesses)
	assert.Equal(t, int64(1), res.Hits)
	assert.Equal(t, int64(2), res.Misses)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "0x0000000000001000")
	assert.Contains(t, lines[1], "0x0000000000002000")
}

func TestFilterTraceRowclonePassthrough(t *testing.T) {
	c, err := New(1024, 64, 8)
	assert.NoError(t, err)

	in := "5,1,0,0x0000000000001000,0x0000000000002000\n"
	var out bytes.Buffer
	res, err := c.FilterTrace(strings.NewReader(in), &out)
	assert.NoError(t, err)

	assert.Equal(t, int64(1), res.Rowclones)
	assert.Zero(t, res.Accesses)
	assert.Equal(t, "5,1,0,0x0000000000001000,0x0000000000002000\n", out.String())
}

func TestFilterTraceSkipsMalformed(t *testing.T) {
	c, err := New(1024, 64, 8)
	assert.NoError(t, err)

	in := "not,a,line\n1,0,0,0,0x10\n"
	var out bytes.Buffer
	res, err := c.FilterTrace(strings.NewReader(in), &out)
	assert.NoError(t, err)

	assert.Equal(t, int64(1), res.Malformed)
	assert.Equal(t, int64(1), res.Misses)
}
