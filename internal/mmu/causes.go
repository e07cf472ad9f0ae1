package mmu

import "fmt"

// Trap cause codes the core raises (spec.md §6). The hart execution loop,
// CSR file, and trap dispatcher live outside this module; we only ever
// hand one of these codes, plus a tval, to a Hart's TrapRaiser.
const (
	CauseInsnAccessFault  uint64 = 1
	CauseLoadAccessFault  uint64 = 5
	CauseStoreAccessFault uint64 = 7
	CauseInsnPageFault    uint64 = 12
	CauseLoadPageFault    uint64 = 13
	CauseStorePageFault   uint64 = 15
)

// pageFaultCause and accessFaultCause map an access kind to the page-fault
// or access-fault cause RISC-V uses for that kind of access (spec.md §7).
func pageFaultCause(access AccessKind) uint64 {
	switch access {
	case AccessWrite:
		return CauseStorePageFault
	case AccessExec:
		return CauseInsnPageFault
	default:
		return CauseLoadPageFault
	}
}

func accessFaultCause(access AccessKind) uint64 {
	switch access {
	case AccessWrite:
		return CauseStoreAccessFault
	case AccessExec:
		return CauseInsnAccessFault
	default:
		return CauseLoadAccessFault
	}
}

// Fault is returned internally by the walker and dispatcher. It never
// escapes mmu_access as a Go error value in the ok=false case — the
// caller contract (spec.md §6) is a boolean, with the trap already raised
// on the Hart by the time Access returns. Fault is exported so tests can
// inspect which cause/tval a failing translation would have raised.
type Fault struct {
	Cause uint64
	Tval  uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("translation fault: cause=%d tval=0x%x", f.Cause, f.Tval)
}

func pageFault(access AccessKind, vaddr uint64) *Fault {
	return &Fault{Cause: pageFaultCause(access), Tval: vaddr}
}

func accessFault(access AccessKind, vaddr uint64) *Fault {
	return &Fault{Cause: accessFaultCause(access), Tval: vaddr}
}

// TrapRaiser is the external collaborator that signals a synchronous fault
// to the hart execution loop / trap dispatcher (spec.md §6). Implementing
// it is entirely the host emulator's concern; this module only calls it.
type TrapRaiser interface {
	RaiseTrap(cause, tval uint64)
}

// JITInvalidator is the external collaborator invoked on every write that
// lands in RAM, so a JIT/trace cache can drop any compiled code covering
// the written bytes. Modelled as a no-op hook when nil (spec.md §1).
type JITInvalidator interface {
	InvalidateRange(vaddr, paddr uint64, size int)
}
