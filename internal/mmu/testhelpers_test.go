package mmu

import (
	"encoding/binary"
	"testing"
)

// newTestMap builds a RAM-only Map of size bytes starting at base, for
// tests that need a real mmap-backed PhysToHost rather than a mock.
func newTestMap(t *testing.T, base, size uint64) *Map {
	pam, err := NewMap(base, size)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	t.Cleanup(func() { pam.Close() })
	return pam
}

func putPTE32(pam *Map, addr uint64, pte uint32) {
	host := pam.PhysToHost(addr, 4)
	binary.LittleEndian.PutUint32(host, pte)
}

func putPTE64(pam *Map, addr uint64, pte uint64) {
	host := pam.PhysToHost(addr, 8)
	binary.LittleEndian.PutUint64(host, pte)
}

func getPTE32(pam *Map, addr uint64) uint32 {
	host := pam.PhysToHost(addr, 4)
	return binary.LittleEndian.Uint32(host)
}

func getPTE64(pam *Map, addr uint64) uint64 {
	host := pam.PhysToHost(addr, 8)
	return binary.LittleEndian.Uint64(host)
}

// fakeTrap records the last trap raised on it, for assertion in tests
// that exercise fault paths.
type fakeTrap struct {
	raised bool
	cause  uint64
	tval   uint64
}

func (f *fakeTrap) RaiseTrap(cause, tval uint64) {
	f.raised = true
	f.cause = cause
	f.tval = tval
}

// fakeJIT records every range invalidated, for tests that check the
// write-side jit_invalidate hook fires.
type fakeJIT struct {
	calls []jitCall
}

type jitCall struct {
	vaddr, paddr uint64
	size         int
}

func (f *fakeJIT) InvalidateRange(vaddr, paddr uint64, size int) {
	f.calls = append(f.calls, jitCall{vaddr, paddr, size})
}
