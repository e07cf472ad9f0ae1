package mmu

import (
	"encoding/binary"
	"unsafe"

	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// PTE words are little-endian in guest memory (spec.md §3). The host
// architectures this module targets (amd64/arm64) are themselves
// little-endian, so a native load/CAS of the word already has the right
// byte order; cpuEndian exists so that invariant is spelled out once
// rather than assumed silently at every call site.
var cpuEndian = binary.LittleEndian

// load32LE and load64LE read an unaligned-safe little-endian PTE word out
// of a host byte slice (spec.md §6's load32_le/load64_le collaborators).
func load32LE(b []byte) uint32 { return cpuEndian.Uint32(b) }
func load64LE(b []byte) uint64 { return cpuEndian.Uint64(b) }

// cas32LE and cas64LE perform a compare-and-swap on the little-endian word
// at host memory b[0:4]/b[0:8], using gvisor's atomicbitops package rather
// than hand-rolling a sync/atomic CAS loop. atomicbitops.Uint32/Uint64 are
// documented to stay the same size as their builtin analogue, so a PTE
// slot inside the RAM region can be reinterpreted in place as one without
// copying it out of the guest's address space first.
//
// b must be backed by memory with at least 4-/8-byte natural alignment —
// true for any PTE slot, since PTE arrays are page-aligned and indexed by
// pte_bytes-sized strides (spec.md §4.2 step a).
func cas32LE(b []byte, expected, desired uint32) bool {
	word := (*atomicbitops.Uint32)(unsafe.Pointer(&b[0]))
	return word.CompareAndSwap(expected, desired)
}

func cas64LE(b []byte, expected, desired uint64) bool {
	word := (*atomicbitops.Uint64)(unsafe.Pointer(&b[0]))
	return word.CompareAndSwap(expected, desired)
}
