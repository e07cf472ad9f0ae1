package mmu

// walk performs a page-table walk for vaddr under the hart's current
// paging mode, requiring permission bit access, at effective privilege
// priv (spec.md §4.2). It returns the translated physical address, the
// leaf PTE's global bit, and the page size the leaf actually covers; on
// any failure it returns a non-nil *Fault and the other return values are
// meaningless.
//
// Bare mode and the Machine-mode bypass are handled by the dispatcher
// before walk is ever called (spec.md §4.3); reaching walk with a mode
// this module doesn't recognize is the WARL "unknown SATP mode" case
// (spec.md §7.4) and is treated as a page fault.
func walk(pam *Map, h *Hart, vaddr uint64, access AccessKind, priv uint8) (paddr uint64, global bool, pageSize uint64, fault *Fault) {
	lay, ok := layouts[h.MMUMode]
	if !ok {
		return 0, false, 0, pageFault(access, vaddr)
	}

	bitOff := uint(lay.levels-1)*lay.vpnBits + PageShift
	if lay.is64 {
		topBit := bitOff + lay.vpnBits - 1
		if !canonicalAddress(vaddr, topBit) {
			return 0, false, 0, pageFault(access, vaddr)
		}
	}

	vpnMask := uint64(1)<<lay.vpnBits - 1
	pagetable := h.RootPageTable
	pageSize = PageSize

	for level := lay.levels - 1; level >= 0; level-- {
		index := (vaddr >> bitOff) & vpnMask
		pteAddr := pagetable + index*uint64(lay.pteBytes)

		host := pam.PhysToHost(pteAddr, lay.pteBytes)
		if host == nil {
			// Walks may not target MMIO (spec.md §4.2 step b). The RISC-V
			// spec would raise an access fault for a PTE load that misses
			// RAM; the reference implementation treats it as a page fault
			// instead, and spec.md §9 flags that divergence for review
			// without resolving it, so this module keeps the reference
			// behavior.
			return 0, false, 0, pageFault(access, vaddr)
		}

		var pte uint64
		if lay.pteBytes == 4 {
			pte = uint64(load32LE(host))
		} else {
			pte = load64LE(host)
		}

		if pte&PteV == 0 || reservedEncoding(pte) {
			return 0, false, 0, pageFault(access, vaddr)
		}

		if isLeaf(pte) {
			if level > 0 {
				mask := uint64(1)<<(uint(level)*lay.vpnBits) - 1
				if (pte>>10)&mask != 0 {
					return 0, false, 0, pageFault(access, vaddr) // misaligned superpage (spec.md §8 P6)
				}
				pageSize = uint64(1) << (PageShift + uint(level)*lay.vpnBits)
			}

			if !checkLeafPermission(pte, access, priv, h.SUM) {
				return 0, false, 0, pageFault(access, vaddr)
			}

			updated := pte | PteA
			if access == AccessWrite {
				updated |= PteD
			}
			if updated != pte {
				// CAS failure is ignored: a concurrent walker setting the
				// same or stronger bits achieves the same architectural
				// effect either way (spec.md §4.2 step e, §5).
				casPTE(host, lay.pteBytes, pte, updated)
				pte = updated
			}

			vmask := uint64(1)<<bitOff - 1
			pmask := (uint64(1)<<(lay.physBits-bitOff) - 1) << bitOff
			paddr = ((pte << 2) & pmask) | (vaddr & vmask)
			return paddr, pte&PteG != 0, pageSize, nil
		}

		pagetable = ((pte >> 10) << PageShift) & (uint64(1)<<lay.physBits - 1)
		bitOff -= lay.vpnBits
	}

	return 0, false, 0, pageFault(access, vaddr)
}

// canonicalAddress reports whether every bit of vaddr above topBit is a
// sign extension of bit topBit (spec.md §4.2 step 1, §8 P7).
func canonicalAddress(vaddr uint64, topBit uint) bool {
	if topBit+1 >= 64 {
		return true
	}
	upperMask := ^(uint64(1)<<(topBit+1) - 1)
	upper := vaddr & upperMask
	if (vaddr>>topBit)&1 == 1 {
		return upper == upperMask
	}
	return upper == 0
}

// checkLeafPermission applies the U-bit/SUM privilege check plus the
// requested permission bit (spec.md §4.2 step e). MXR is not checked
// here: the dispatcher has already substituted access=AccessExec for a
// READ when status.MXR is set, before calling walk (spec.md §4.3).
func checkLeafPermission(pte uint64, access AccessKind, priv uint8, sum bool) bool {
	if priv == PrivUser {
		if pte&PteU == 0 {
			return false
		}
	} else if pte&PteU != 0 && !sum {
		return false
	}
	return pte&uint64(access) != 0
}

// casPTE dispatches the A/D-bit compare-and-swap to the 32- or 64-bit
// primitive matching the paging mode's PTE width.
func casPTE(host []byte, pteBytes int, old, new uint64) {
	if pteBytes == 4 {
		cas32LE(host, uint32(old), uint32(new))
	} else {
		cas64LE(host, old, new)
	}
}
