package mmu

import "fmt"

// maxScratch bounds the adapter's recursion: no device's MaxOpSize exceeds
// 16 bytes (spec.md §3), so a widening read/write never needs a bigger
// scratch window than that.
const maxScratch = 16

// mmioRead performs a size/alignment-adapted read against dev, splitting
// oversized accesses and widening undersized/misaligned ones to the
// device's [MinOpSize, MaxOpSize] window (spec.md §4.5).
func mmioRead(dev Device, ctx any, dst []byte, offset uint64) error {
	size := len(dst)
	min, max := dev.MinOpSize(), dev.MaxOpSize()

	if size > max {
		half := size / 2
		if err := mmioRead(dev, ctx, dst[:half], offset); err != nil {
			return err
		}
		return mmioRead(dev, ctx, dst[half:], offset+uint64(half))
	}

	if size < min || offset&uint64(min-1) != 0 {
		alignedOff := offset &^ uint64(min-1)
		diff := offset - alignedOff

		// Window must cover [offset, offset+size) starting at an
		// min_op_size-aligned address; grow to the next power of two
		// that does, capped at maxScratch.
		window := min
		for window < int(diff)+size {
			window *= 2
			if window > maxScratch {
				return fmt.Errorf("mmio: read of size %d at offset 0x%x exceeds adapter scratch window", size, offset)
			}
		}

		var scratch [maxScratch]byte
		if err := mmioRead(dev, ctx, scratch[:window], alignedOff); err != nil {
			return err
		}
		copy(dst, scratch[diff:diff+uint64(size)])
		return nil
	}

	return dev.Read(ctx, dst, offset)
}

// mmioWrite is the write-side mirror of mmioRead. An undersized or
// misaligned write is a read-modify-write at MinOpSize: read the aligned
// window, splice in the new bytes, write the whole window back.
func mmioWrite(dev Device, ctx any, src []byte, offset uint64) error {
	size := len(src)
	min, max := dev.MinOpSize(), dev.MaxOpSize()

	if size > max {
		half := size / 2
		if err := mmioWrite(dev, ctx, src[:half], offset); err != nil {
			return err
		}
		return mmioWrite(dev, ctx, src[half:], offset+uint64(half))
	}

	if size < min || offset&uint64(min-1) != 0 {
		alignedOff := offset &^ uint64(min-1)
		diff := offset - alignedOff

		window := min
		for window < int(diff)+size {
			window *= 2
			if window > maxScratch {
				return fmt.Errorf("mmio: write of size %d at offset 0x%x exceeds adapter scratch window", size, offset)
			}
		}

		var scratch [maxScratch]byte
		if err := mmioRead(dev, ctx, scratch[:window], alignedOff); err != nil {
			return err
		}
		copy(scratch[diff:diff+uint64(size)], src)
		return mmioWrite(dev, ctx, scratch[:window], alignedOff)
	}

	return dev.Write(ctx, src, offset)
}
