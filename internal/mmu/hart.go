package mmu

// Privilege levels (spec.md §3).
const (
	PrivUser       uint8 = 0
	PrivSupervisor uint8 = 1
	PrivReserved   uint8 = 2
	PrivMachine    uint8 = 3
)

// Hart is the subset of per-hart state this module reads (spec.md §3's
// "Hart context"). Everything else — the integer/float register file, the
// full CSR file, the instruction-decode loop — belongs to the hart
// execution loop and CSR file, which are external collaborators this
// module never touches; it only calls back into TrapRaiser on failure.
type Hart struct {
	// PrivMode is the hart's current privilege level.
	PrivMode uint8

	// MMUMode selects the active paging mode (Bare disables translation).
	MMUMode Mode

	// RootPageTable is the physical address of the root page table, taken
	// from satp's PPN field by the CSR file before this module is called.
	RootPageTable uint64

	// ASID is satp's address-space identifier; a TLB entry installed
	// under one ASID is visible to a lookup under the same ASID, or any
	// ASID if the entry's PTE had the G (global) bit set.
	ASID uint16

	// MPRV, if set, means a non-fetch access should translate as if the
	// hart were at privilege MPP instead of PrivMode (status.MPRV).
	MPRV bool
	MPP  uint8

	// MXR, if set, lets a read access be satisfied by an execute-only
	// page (status.MXR).
	MXR bool

	// SUM, if set, lets supervisor-mode accesses reach pages marked user
	// (PteU) without faulting.
	SUM bool

	tlb TLB

	Trap TrapRaiser
	JIT  JITInvalidator
}

// NewHart creates a hart in Bare mode at machine privilege, with an empty
// TLB (spec.md §3's lifecycle: "TLB is owned by a hart, zero-initialized
// at hart reset").
func NewHart(trap TrapRaiser) *Hart {
	h := &Hart{PrivMode: PrivMachine, MMUMode: ModeBare, Trap: trap}
	h.tlb.init()
	return h
}

// FlushTLB performs a full local TLB flush (spec.md §4.4), to be called on
// SFENCE.VMA with no arguments, a write to satp, or a privilege change.
func (h *Hart) FlushTLB() {
	h.tlb.flushAll()
}

// FlushTLBPage invalidates only the slot covering vaddr's page (spec.md
// §4.4's single-page SFENCE.VMA).
func (h *Hart) FlushTLBPage(vaddr uint64) {
	h.tlb.flushPage(vaddr)
}

func (h *Hart) raiseTrap(f *Fault) {
	if h.Trap != nil {
		h.Trap.RaiseTrap(f.Cause, f.Tval)
	}
}

// effectivePriv applies MPRV/MPP blending (spec.md §4.3): a non-fetch
// access under MPRV translates as if the hart were at MPP.
func (h *Hart) effectivePriv(access AccessKind) uint8 {
	if h.MPRV && access != AccessExec {
		return h.MPP
	}
	return h.PrivMode
}
