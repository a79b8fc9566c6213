// Package observability provides scan statistics tracking for pipeline
// monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ScanStats tracks the progress of a trace scan. Pipeline stages update
// it as records flow through; callers snapshot it to report progress or
// summarize a finished run.
type ScanStats struct {
	mu        sync.RWMutex
	records   int64
	anomalies int64
	bytes     int64
	perCPU    map[uint8]*CPUStats
	startedAt time.Time
}

// CPUStats holds per-processor counters for one scan.
type CPUStats struct {
	CPU       uint8
	Records   int64
	Anomalies int64
	LastSeen  time.Time
}

// Snapshot is a point-in-time copy of the scan counters.
type Snapshot struct {
	Records   int64
	Anomalies int64
	Bytes     int64
	Elapsed   time.Duration
	PerCPU    []CPUStats
}

// NewScanStats creates a scan statistics tracker. The clock starts
// immediately.
func NewScanStats() *ScanStats {
	return &ScanStats{
		perCPU:    make(map[uint8]*CPUStats),
		startedAt: time.Now(),
	}
}

// RecordScanned notes one record read from the given CPU's stream.
// This method is O(1) and thread-safe.
func (s *ScanStats) RecordScanned(cpu uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records++
	s.bump(cpu).Records++
}

// AnomalyFound notes one counter regression on the given CPU.
func (s *ScanStats) AnomalyFound(cpu uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anomalies++
	s.bump(cpu).Anomalies++
}

// BytesRead adds to the byte counter, e.g. after each batch fill.
func (s *ScanStats) BytesRead(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += n
}

func (s *ScanStats) bump(cpu uint8) *CPUStats {
	stats, exists := s.perCPU[cpu]
	if !exists {
		stats = &CPUStats{CPU: cpu}
		s.perCPU[cpu] = stats
	}
	stats.LastSeen = time.Now()
	return stats
}

// Snapshot returns a copy of the current counters. Per-CPU entries are
// sorted by CPU number.
func (s *ScanStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perCPU := make([]CPUStats, 0, len(s.perCPU))
	for _, stats := range s.perCPU {
		perCPU = append(perCPU, *stats)
	}
	sort.Slice(perCPU, func(i, j int) bool {
		return perCPU[i].CPU < perCPU[j].CPU
	})

	return Snapshot{
		Records:   s.records,
		Anomalies: s.anomalies,
		Bytes:     s.bytes,
		Elapsed:   time.Since(s.startedAt),
		PerCPU:    perCPU,
	}
}
