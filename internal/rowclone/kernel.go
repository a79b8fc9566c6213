// Package rowclone annotates a merged trace with in-DRAM copy
// operations. Kernel copy_to_user/copy_from_user log entries are
// matched against the access stream; accesses belonging to a matched
// copy are collapsed into a single rowclone record, everything else
// passes through as a regular access.
package rowclone

import (
	"regexp"
	"strconv"
	"strings"
)

// kernelLogPattern captures the CSV-like payload of a kernel copy log
// line: N=<command>,<r|w>,<cpu>,<size>,0x..,0x<kaddr>,0x..,0x<uaddr>
var kernelLogPattern = regexp.MustCompile(
	`N=([^,]+),([rw]),(\d+),(\d+),(0x[0-9a-fA-F]+),(0x[0-9a-fA-F]+),(0x[0-9a-fA-F]+),(0x[0-9a-fA-F]+)`)

// KernelRecord is one copy operation logged by the kernel.
// Operation 'r' is a kernel-to-user copy, 'w' is user-to-kernel.
type KernelRecord struct {
	Command    string
	Operation  byte
	CPU        uint32
	Size       uint64
	KernelAddr uint64
	UserAddr   uint64
}

// SourceAddr returns the address the copy reads from.
func (k *KernelRecord) SourceAddr() uint64 {
	if k.Operation == 'w' {
		return k.UserAddr
	}
	return k.KernelAddr
}

// DestAddr returns the address the copy writes to.
func (k *KernelRecord) DestAddr() uint64 {
	if k.Operation == 'w' {
		return k.KernelAddr
	}
	return k.UserAddr
}

// ParseKernelLine parses one kernel copy log line. Returns false if the
// line does not contain a copy entry.
func ParseKernelLine(line string) (KernelRecord, bool) {
	caps := kernelLogPattern.FindStringSubmatch(line)
	if caps == nil {
		return KernelRecord{}, false
	}

	cpu, err := strconv.ParseUint(caps[3], 10, 32)
	if err != nil {
		return KernelRecord{}, false
	}
	size, err := strconv.ParseUint(caps[4], 10, 64)
	if err != nil {
		return KernelRecord{}, false
	}
	kaddr, err := strconv.ParseUint(strings.TrimPrefix(caps[6], "0x"), 16, 64)
	if err != nil {
		return KernelRecord{}, false
	}
	uaddr, err := strconv.ParseUint(strings.TrimPrefix(caps[8], "0x"), 16, 64)
	if err != nil {
		return KernelRecord{}, false
	}

	return KernelRecord{
		Command:    caps[1],
		Operation:  caps[2][0],
		CPU:        uint32(cpu),
		Size:       size,
		KernelAddr: kaddr,
		UserAddr:   uaddr,
	}, true
}
