package types

import (
	"fmt"
	"strconv"
	"strings"
)

// MemoryAccess is one line of the annotated CSV trace produced by the
// rowclone stage and consumed by the cache simulator. It is either a
// regular load/store or a detected rowclone (page copy) operation.
//
// Line formats:
//
//	regular:  insn,0,store,cpu,0xADDRESS
//	rowclone: insn,1,0,0xFROM,0xTO
type MemoryAccess struct {
	InsnCount uint64

	// Rowclone marks a detected page-copy operation. When set, From/To
	// are valid and Store/CPU/Addr are not.
	Rowclone bool

	Store bool
	CPU   uint8
	Addr  uint64

	From uint64
	To   uint64
}

func (m MemoryAccess) String() string {
	if m.Rowclone {
		return fmt.Sprintf("%d,1,0,0x%016x,0x%016x", m.InsnCount, m.From, m.To)
	}
	store := 0
	if m.Store {
		store = 1
	}
	return fmt.Sprintf("%d,0,%d,%d,0x%016x", m.InsnCount, store, m.CPU, m.Addr)
}

// ParseMemoryAccess parses one CSV trace line.
func ParseMemoryAccess(line string) (MemoryAccess, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 5 {
		return MemoryAccess{}, fmt.Errorf("trace line must have 5 fields, got %d", len(parts))
	}

	insn, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return MemoryAccess{}, fmt.Errorf("invalid insn count %q: %w", parts[0], err)
	}

	if parts[1] == "1" {
		from, err := parseHexAddr(parts[3])
		if err != nil {
			return MemoryAccess{}, err
		}
		to, err := parseHexAddr(parts[4])
		if err != nil {
			return MemoryAccess{}, err
		}
		return MemoryAccess{InsnCount: insn, Rowclone: true, From: from, To: to}, nil
	}

	cpu, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return MemoryAccess{}, fmt.Errorf("invalid cpu %q: %w", parts[3], err)
	}
	addr, err := parseHexAddr(parts[4])
	if err != nil {
		return MemoryAccess{}, err
	}

	return MemoryAccess{
		InsnCount: insn,
		Store:     parts[2] == "1",
		CPU:       uint8(cpu),
		Addr:      addr,
	}, nil
}

func parseHexAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return v, nil
}
