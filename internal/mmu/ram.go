package mmu

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RAM is the emulator's one contiguous guest RAM region (spec.md §3).
// begin and size are both page-aligned; a physical address p lies in RAM
// iff begin <= p < begin+size, and the host address is data + (p - begin).
//
// The backing store comes from an anonymous mmap rather than a plain
// make([]byte, n): it is zero-filled by the kernel, and — unlike a slice
// that might later get copied by the GC — its address is stable and
// naturally page-aligned, which cas32LE/cas64LE (casword.go) rely on for the
// PTE access/dirty CAS to hit a correctly aligned word.
type RAM struct {
	begin uint64
	data  []byte
}

// ramInit allocates a RAM region of the given size at the given physical
// base. Both must be page-aligned; allocation failure or misalignment is
// a configuration error (spec.md §7.1), fatal to machine construction.
func ramInit(begin, size uint64) (*RAM, error) {
	if begin&PageMask != 0 {
		return nil, fmt.Errorf("ram: base 0x%x is not page-aligned", begin)
	}
	if size == 0 || size&PageMask != 0 {
		return nil, fmt.Errorf("ram: size 0x%x is not a nonzero multiple of the page size", size)
	}

	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("ram: allocate %d bytes: %w", size, err)
	}

	return &RAM{begin: begin, data: data}, nil
}

// ramFree releases the region's backing pages.
func ramFree(r *RAM) error {
	if r == nil || r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// Begin returns the region's physical base address.
func (r *RAM) Begin() uint64 { return r.begin }

// Size returns the region's size in bytes.
func (r *RAM) Size() uint64 { return uint64(len(r.data)) }

// contains reports whether p falls within [begin, begin+size).
func (r *RAM) contains(p uint64) bool {
	return p >= r.begin && p < r.begin+uint64(len(r.data))
}

// hostOffset converts a physical address known to be in range into an
// index into r.data.
func (r *RAM) hostOffset(p uint64) int {
	return int(p - r.begin)
}

// Slice returns the length-n window of host memory backing [p, p+n),
// or nil if any part of that range falls outside the region.
func (r *RAM) Slice(p uint64, n int) []byte {
	if !r.contains(p) || !r.contains(p+uint64(n)-1) {
		return nil
	}
	off := r.hostOffset(p)
	return r.data[off : off+n]
}
