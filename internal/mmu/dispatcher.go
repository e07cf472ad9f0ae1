package mmu

import "log/slog"

// Access is the top-level entry point the rest of the emulator calls for
// every load, store, and instruction fetch (spec.md §4.3's mmu_access).
// It returns false exactly when a trap has been raised on h and the
// caller must discard the current instruction's effects (spec.md §6).
func Access(h *Hart, pam *Map, vaddr uint64, buf []byte, op AccessKind) bool {
	if len(buf) == 0 {
		return true
	}

	// Page-crossing split (spec.md §4.3): each half must succeed
	// independently. A fault on the second half has already committed the
	// first half's side effects — an accepted architectural approximation
	// (spec.md §9).
	pageOff := vaddr & PageMask
	if pageOff+uint64(len(buf)) > PageSize {
		firstLen := PageSize - pageOff
		if !Access(h, pam, vaddr, buf[:firstLen], op) {
			return false
		}
		return Access(h, pam, vaddr+firstLen, buf[firstLen:], op)
	}

	eff := h.effectivePriv(op)

	// MXR: a read may be satisfied by an execute-only page, so the
	// permission/TLB lookup is keyed on X instead of R (spec.md §4.3, §8 P8).
	lookupOp := op
	if h.MXR && op == AccessRead {
		lookupOp = AccessExec
	}

	// Bare mode and the machine-mode bypass skip translation entirely
	// (spec.md §4.3, §8 P1/P2).
	if eff == PrivMachine || h.MMUMode == ModeBare {
		return resolveAndTransfer(h, pam, vaddr, vaddr, buf, op)
	}

	vpn := vaddr >> PageShift
	if bias, ok := h.tlb.lookup(lookupOp, vpn, h.ASID); ok {
		paddr := vaddr + bias
		return resolveAndTransfer(h, pam, vaddr, paddr, buf, op)
	}

	if _, defined := layouts[h.MMUMode]; !defined {
		slog.Warn("mmu: satp selects an unsupported paging mode, faulting access", "mode", h.MMUMode)
	}

	paddr, global, _, fault := walk(pam, h, vaddr, lookupOp, eff)
	if fault != nil {
		h.raiseTrap(fault)
		return false
	}

	if host := pam.PhysToHost(paddr, len(buf)); host != nil {
		bias := (paddr &^ PageMask) - (vaddr &^ PageMask)
		h.tlb.fill(lookupOp, vpn, h.ASID, global, bias)

		if op == AccessWrite {
			copy(host, buf)
			if h.JIT != nil {
				h.JIT.InvalidateRange(vaddr, paddr, len(buf))
			}
		} else {
			copy(buf, host)
		}
		return true
	}

	// MMIO hit: dispatch through the size/alignment adapter. Do not
	// install a TLB entry (spec.md §4.3).
	if dev, ctx, off, ok := pam.FindMMIO(paddr); ok {
		return dispatchMMIO(h, dev, ctx, buf, off, vaddr, op)
	}

	h.raiseTrap(accessFault(op, vaddr))
	return false
}

// resolveAndTransfer is the RAM-vs-MMIO-vs-neither resolution shared by
// the Bare-mode and TLB-hit paths, where paddr is already known (spec.md
// §4.3).
func resolveAndTransfer(h *Hart, pam *Map, vaddr, paddr uint64, buf []byte, op AccessKind) bool {
	if host := pam.PhysToHost(paddr, len(buf)); host != nil {
		if op == AccessWrite {
			copy(host, buf)
			if h.JIT != nil {
				h.JIT.InvalidateRange(vaddr, paddr, len(buf))
			}
		} else {
			copy(buf, host)
		}
		return true
	}

	if dev, ctx, off, ok := pam.FindMMIO(paddr); ok {
		return dispatchMMIO(h, dev, ctx, buf, off, vaddr, op)
	}

	h.raiseTrap(accessFault(op, vaddr))
	return false
}

func dispatchMMIO(h *Hart, dev Device, ctx any, buf []byte, off, vaddr uint64, op AccessKind) bool {
	var err error
	if op == AccessWrite {
		err = mmioWrite(dev, ctx, buf, off)
	} else {
		err = mmioRead(dev, ctx, buf, off)
	}
	if err != nil {
		h.raiseTrap(accessFault(op, vaddr))
		return false
	}
	return true
}
