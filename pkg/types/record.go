// Package types provides core data types for Tracelens.
package types

import (
	"encoding/binary"
	"fmt"
)

// Operation kinds carried in TraceRecord.Op.
const (
	OpLoad  uint8 = 0
	OpStore uint8 = 1
)

// RecordSize is the fixed on-disk stride of a TraceRecord in bytes.
//
// The layout is little-endian and matches the tracer's in-memory struct:
//
//	offset 0:  InsnCount uint64
//	offset 8:  CPU       uint8
//	offset 9:  Op        uint8
//	offset 10: Size      uint8
//	offset 11: padding   [5]byte (zero on write, ignored on read)
//	offset 16: Addr      uint64
const RecordSize = 24

// TraceRecord is one fixed-size entry in a binary trace log describing a
// single traced memory access.
type TraceRecord struct {
	// InsnCount is the instruction counter at the time of the access.
	// Expected non-decreasing across a merged stream, but not guaranteed
	// by the format.
	InsnCount uint64

	// CPU identifies the emitting execution unit.
	CPU uint8

	// Op is the operation kind (OpLoad or OpStore).
	Op uint8

	// Size is the access size as a shift: 1<<Size bytes.
	Size uint8

	// Addr is the accessed memory address.
	Addr uint64
}

// DecodeRecord decodes a TraceRecord from a RecordSize-byte window.
// The returned record does not alias buf.
func DecodeRecord(buf []byte) TraceRecord {
	return TraceRecord{
		InsnCount: binary.LittleEndian.Uint64(buf[0:8]),
		CPU:       buf[8],
		Op:        buf[9],
		Size:      buf[10],
		Addr:      binary.LittleEndian.Uint64(buf[16:24]),
	}
}

// EncodeRecord encodes r into a RecordSize-byte window. Padding bytes are
// zeroed so encoded streams are byte-for-byte reproducible.
func EncodeRecord(r TraceRecord, buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.InsnCount)
	buf[8] = r.CPU
	buf[9] = r.Op
	buf[10] = r.Size
	buf[11], buf[12], buf[13], buf[14], buf[15] = 0, 0, 0, 0, 0
	binary.LittleEndian.PutUint64(buf[16:24], r.Addr)
}

// AccessBytes returns the access size in bytes (1<<Size).
func (r TraceRecord) AccessBytes() uint64 {
	return 1 << r.Size
}

// IsStore reports whether the record is a store.
func (r TraceRecord) IsStore() bool {
	return r.Op == OpStore
}

// String renders the record in the canonical CSV form used by the text
// pipeline stages.
func (r TraceRecord) String() string {
	return fmt.Sprintf("%d,%d,%d,%d,0x%016x", r.InsnCount, r.CPU, r.Op, r.Size, r.Addr)
}
