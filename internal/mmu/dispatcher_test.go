package mmu

import "testing"

// TestAccessBareIdentity is the literal Bare-identity scenario: Bare mode,
// vaddr=0x80001234, a 4-byte READ into RAM begin=0x80000000 size=0x100000
// pre-filled with 0xDEADBEEF at offset 0x1234.
func TestAccessBareIdentity(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000)
	h := NewHart(nil)
	h.MMUMode = ModeBare

	host := pam.PhysToHost(0x80001234, 4)
	host[0], host[1], host[2], host[3] = 0xEF, 0xBE, 0xAD, 0xDE

	buf := make([]byte, 4)
	if !Access(h, pam, 0x80001234, buf, AccessRead) {
		t.Fatal("Access must succeed in Bare mode")
	}
	if buf[0] != 0xEF || buf[1] != 0xBE || buf[2] != 0xAD || buf[3] != 0xDE {
		t.Errorf("buf = %x, want little-endian 0xDEADBEEF", buf)
	}
}

// TestAccessMachineBypass covers P2: at Machine privilege, translation is
// identity regardless of mmu_mode.
func TestAccessMachineBypass(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize)
	h := NewHart(nil)
	h.MMUMode = ModeSv39
	h.PrivMode = PrivMachine
	h.RootPageTable = 0xDEADBEEF // would fault if the walker were ever invoked

	host := pam.PhysToHost(0x80000010, 1)
	host[0] = 0x42

	buf := make([]byte, 1)
	if !Access(h, pam, 0x80000010, buf, AccessRead) {
		t.Fatal("Access must bypass translation entirely at Machine privilege")
	}
	if buf[0] != 0x42 {
		t.Errorf("buf[0] = %#x, want 0x42", buf[0])
	}
}

// TestAccessPageCrossingSplit is the literal page-crossing scenario:
// vaddr=0x00000FFE, size=4, spanning the 0x1000 boundary with both pages
// validly mapped identity-style via Bare mode (the split logic itself
// doesn't depend on a real walk).
func TestAccessPageCrossingSplit(t *testing.T) {
	pam := newTestMap(t, 0x00000000, 0x00002000)
	h := NewHart(nil)
	h.MMUMode = ModeBare

	host := pam.PhysToHost(0, 0x2000)
	for i := range host {
		host[i] = 0
	}
	copy(host[0xFFE:0x1002], []byte{0x11, 0x22, 0x33, 0x44})

	buf := make([]byte, 4)
	if !Access(h, pam, 0x0FFE, buf, AccessRead) {
		t.Fatal("a page-crossing access must still succeed when both halves are valid")
	}
	if buf[0] != 0x11 || buf[1] != 0x22 || buf[2] != 0x33 || buf[3] != 0x44 {
		t.Errorf("buf = %x, want 11223344", buf)
	}
}

func TestAccessPageCrossingSecondHalfFaultFailsAccess(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize) // only one page of RAM
	h := NewHart(nil)
	h.MMUMode = ModeBare
	trap := &fakeTrap{}
	h.Trap = trap

	// vaddr is chosen so the *first* half (within RAM) is fine but the
	// access as a whole reaches past RAM's end; with MMUMode=Bare, paddr
	// == vaddr, so the second half lands outside the mapped region and
	// must raise an access fault.
	buf := make([]byte, 4)
	ok := Access(h, pam, 0x80000FFE, buf, AccessRead)
	if ok {
		t.Fatal("an access whose second half has nowhere to resolve must fail overall")
	}
	if !trap.raised {
		t.Fatal("a failing second half must raise a trap")
	}
}

// TestAccessMMIOWidening is the literal MMIO-widening scenario run through
// the full dispatcher: device min=4,max=4; a 1-byte READ at MMIO offset
// 0x2 (physical address base+0x2) issues a 4-byte device read at offset 0
// and returns byte 2.
func TestAccessMMIOWidening(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize)
	dev := newFakeDevice(0x1000, 4, 4)
	dev.mem[0], dev.mem[1], dev.mem[2], dev.mem[3] = 0x11, 0x22, 0x33, 0x44
	pam.AddDevice(0x10000000, dev, nil)

	h := NewHart(nil)
	h.MMUMode = ModeBare

	buf := make([]byte, 1)
	if !Access(h, pam, 0x10000002, buf, AccessRead) {
		t.Fatal("MMIO access through the dispatcher must succeed")
	}
	if buf[0] != 0x33 {
		t.Errorf("buf[0] = %#x, want 0x33", buf[0])
	}
	if len(dev.reads) != 1 || dev.reads[0].offset != 0 || dev.reads[0].size != 4 {
		t.Fatalf("expected one widened 4-byte read at offset 0, got %+v", dev.reads)
	}
}

func TestAccessMMIODoesNotInstallTLBEntry(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000) // RAM: [0x80000000, 0x80100000)
	dev := newFakeDevice(0x1000, 1, 4)
	pam.AddDevice(0x90000000, dev, nil) // MMIO, well outside RAM

	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivSupervisor
	h.RootPageTable = 0x80010000
	putPTE32(pam, 0x80010000, uint32((0x80011<<10)|PteV))
	leafAddr := uint64(0x80011000 + 1*4) // vaddr 0x00001000 -> VPN 1
	putPTE32(pam, leafAddr, uint32((0x90000<<10)|PteV|PteR|PteW))

	buf := make([]byte, 1)
	if !Access(h, pam, 0x00001000, buf, AccessRead) {
		t.Fatal("MMIO access via a walked mapping must succeed")
	}

	if _, ok := h.tlb.lookup(AccessRead, 1, h.ASID); ok {
		t.Error("an MMIO-resolved access must not install a TLB entry")
	}
}

// TestAccessMXRAllowsReadOfExecuteOnlyPage covers P8.
func TestAccessMXRAllowsReadOfExecuteOnlyPage(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000)
	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivSupervisor
	h.RootPageTable = 0x80010000
	putPTE32(pam, 0x80010000, uint32((0x80011<<10)|PteV))
	leafAddr := uint64(0x80011000 + 1*4)
	putPTE32(pam, leafAddr, uint32((0x80020<<10)|PteV|PteX)) // execute-only

	host := pam.PhysToHost(0x80020000, 1)
	host[0] = 0x99

	buf := make([]byte, 1)
	trap := &fakeTrap{}
	h.Trap = trap

	if ok := Access(h, pam, 0x00001000, buf, AccessRead); ok {
		t.Fatal("without MXR, a READ of an execute-only page must fault")
	}
	if !trap.raised {
		t.Fatal("the failed read must raise a trap")
	}

	h.MXR = true
	h.FlushTLB()
	buf = make([]byte, 1)
	if !Access(h, pam, 0x00001000, buf, AccessRead) {
		t.Fatal("with MXR, a READ of an execute-only page must succeed")
	}
	if buf[0] != 0x99 {
		t.Errorf("buf[0] = %#x, want 0x99", buf[0])
	}
}

// TestAccessMPRVUsesMPPForNonFetch covers P9.
func TestAccessMPRVUsesMPPForNonFetch(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000)
	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivMachine
	h.MPRV = true
	h.MPP = PrivSupervisor
	h.RootPageTable = 0x80010000

	putPTE32(pam, 0x80010000, uint32((0x80011<<10)|PteV))
	leafAddr := uint64(0x80011000 + 1*4)
	// Supervisor-accessible (no U bit) page, readable.
	putPTE32(pam, leafAddr, uint32((0x80020<<10)|PteV|PteR))

	host := pam.PhysToHost(0x80020000, 1)
	host[0] = 0x55

	buf := make([]byte, 1)
	if !Access(h, pam, 0x00001000, buf, AccessRead) {
		t.Fatal("MPRV must let a Machine-mode hart use Supervisor translation for a load")
	}
	if buf[0] != 0x55 {
		t.Errorf("buf[0] = %#x, want 0x55", buf[0])
	}
}

func TestAccessMPRVDoesNotAffectFetch(t *testing.T) {
	// RAM identity-covers the fetch address, so the Machine-privilege
	// bypass resolves it directly; RootPageTable is garbage and would
	// fault if the walker were ever reached under Supervisor privilege.
	pam := newTestMap(t, 0x00000000, 0x00002000)
	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivMachine
	h.MPRV = true
	h.MPP = PrivSupervisor
	h.RootPageTable = 0xBAD00000

	buf := make([]byte, 1)
	if !Access(h, pam, 0x00001000, buf, AccessExec) {
		t.Fatal("a fetch under MPRV must still bypass translation at Machine privilege (P2), not use MPP")
	}
}

// TestAccessTLBInvalidation is the literal TLB-invalidation scenario:
// translate vaddr=0x2000 for READ (hit on the second call); issue
// tlb_flush_page(0x2000); the third call misses and re-walks.
func TestAccessTLBInvalidation(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000)
	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivSupervisor
	h.RootPageTable = 0x80010000

	putPTE32(pam, 0x80010000, uint32((0x80011<<10)|PteV))
	leafAddr := uint64(0x80011000 + 2*4) // vaddr 0x2000 -> VPN 2
	putPTE32(pam, leafAddr, uint32((0x80020<<10)|PteV|PteR))

	buf := make([]byte, 1)
	if !Access(h, pam, 0x2000, buf, AccessRead) {
		t.Fatal("first translation must succeed")
	}
	if _, ok := h.tlb.lookup(AccessRead, 2, h.ASID); !ok {
		t.Fatal("a successful RAM translation must install a TLB entry")
	}

	if !Access(h, pam, 0x2000, buf, AccessRead) {
		t.Fatal("second translation (TLB hit) must succeed")
	}

	h.FlushTLBPage(0x2000)
	if _, ok := h.tlb.lookup(AccessRead, 2, h.ASID); ok {
		t.Fatal("flushPage must invalidate the entry")
	}

	if !Access(h, pam, 0x2000, buf, AccessRead) {
		t.Fatal("third translation must still succeed by re-walking")
	}
	if _, ok := h.tlb.lookup(AccessRead, 2, h.ASID); !ok {
		t.Fatal("the re-walk must refill the TLB")
	}
}

func TestAccessNeitherRAMNorMMIORaisesAccessFault(t *testing.T) {
	pam := newTestMap(t, 0x80000000, 0x00100000)
	h := NewHart(nil)
	h.MMUMode = ModeSv32
	h.PrivMode = PrivSupervisor
	h.RootPageTable = 0x80010000

	putPTE32(pam, 0x80010000, uint32((0x80011<<10)|PteV))
	leafAddr := uint64(0x80011000 + 1*4)
	// Leaf maps to a physical address with no RAM or device behind it.
	putPTE32(pam, leafAddr, uint32((0x00001<<10)|PteV|PteR))

	trap := &fakeTrap{}
	h.Trap = trap
	buf := make([]byte, 1)
	if Access(h, pam, 0x00001000, buf, AccessRead) {
		t.Fatal("an access resolving to neither RAM nor MMIO must fail")
	}
	if trap.cause != CauseLoadAccessFault {
		t.Errorf("trap.cause = %d, want CauseLoadAccessFault", trap.cause)
	}
}

func TestAccessWriteInvokesJIT(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize)
	h := NewHart(nil)
	h.MMUMode = ModeBare
	jit := &fakeJIT{}
	h.JIT = jit

	buf := []byte{0xAB}
	if !Access(h, pam, 0x80000010, buf, AccessWrite) {
		t.Fatal("write access must succeed")
	}
	if len(jit.calls) != 1 {
		t.Fatalf("expected exactly one jit_invalidate call, got %d", len(jit.calls))
	}
}

func TestAccessReadDoesNotInvokeJIT(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize)
	h := NewHart(nil)
	h.MMUMode = ModeBare
	jit := &fakeJIT{}
	h.JIT = jit

	buf := make([]byte, 1)
	Access(h, pam, 0x80000010, buf, AccessRead)
	if len(jit.calls) != 0 {
		t.Error("a read must never invoke jit_invalidate")
	}
}

func TestAccessEmptyBufferAlwaysSucceeds(t *testing.T) {
	pam := newTestMap(t, 0x80000000, PageSize)
	h := NewHart(nil)
	if !Access(h, pam, 0x80000000, nil, AccessRead) {
		t.Fatal("an empty-buffer access must trivially succeed")
	}
}
