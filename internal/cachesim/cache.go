// Package cachesim models a set-associative CPU cache with LRU
// replacement and filters cache-hit accesses out of a trace, leaving
// the stream of accesses that would reach the next memory level.
package cachesim

import (
	"container/list"
	"fmt"
)

// Cache is a set-associative cache model with per-set LRU replacement.
// It tracks tags only; no data is stored.
type Cache struct {
	blockSize uint64
	sets      []*cacheSet
}

// cacheSet holds one associativity set.
// lines maps tag → list element; order front = most recently used.
type cacheSet struct {
	assoc int
	lines map[uint64]*list.Element
	order *list.List
}

func newCacheSet(associativity int) *cacheSet {
	return &cacheSet{
		assoc: associativity,
		lines: make(map[uint64]*list.Element, associativity),
		order: list.New(),
	}
}

// access returns true on tag hit, false on miss. A miss fills a free
// line if one exists, otherwise evicts the least-recently-used line.
func (s *cacheSet) access(tag uint64) bool {
	if elem, ok := s.lines[tag]; ok {
		s.order.MoveToFront(elem)
		return true
	}

	if s.order.Len() >= s.assoc {
		back := s.order.Back()
		evicted := back.Value.(uint64)
		s.order.Remove(back)
		delete(s.lines, evicted)
	}

	s.lines[tag] = s.order.PushFront(tag)
	return false
}

// New creates a cache of sizeBytes total capacity split into blockSize
// lines grouped associativity-ways.
func New(sizeBytes, blockSize, associativity int) (*Cache, error) {
	if sizeBytes <= 0 || blockSize <= 0 || associativity <= 0 {
		return nil, fmt.Errorf("cachesim: size, block size, and associativity must be positive")
	}

	numLines := sizeBytes / blockSize
	numSets := numLines / associativity
	if numSets < 1 {
		return nil, fmt.Errorf("cachesim: %d bytes / %dB blocks / %d-way leaves no sets",
			sizeBytes, blockSize, associativity)
	}

	sets := make([]*cacheSet, numSets)
	for i := range sets {
		sets[i] = newCacheSet(associativity)
	}

	return &Cache{
		blockSize: uint64(blockSize),
		sets:      sets,
	}, nil
}

// Access simulates one access to addr. Returns true on hit.
func (c *Cache) Access(addr uint64) bool {
	blockAddr := addr / c.blockSize
	setIndex := blockAddr % uint64(len(c.sets))
	// The tag is simply the block address.
	return c.sets[setIndex].access(blockAddr)
}

// Sets returns the number of sets, for introspection in tooling.
func (c *Cache) Sets() int {
	return len(c.sets)
}
