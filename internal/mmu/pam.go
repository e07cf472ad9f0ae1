package mmu

// Device is a memory-mapped I/O device (spec.md §3's MMIO device
// descriptor). Read/Write are called with an offset already relative to
// the device's base, and a size in bytes the MMIO adapter (mmio.go) has
// already clamped into [MinOpSize(), MaxOpSize()] and aligned to
// MinOpSize(). Devices never see a request outside that envelope.
type Device interface {
	Read(ctx any, dst []byte, offset uint64) error
	Write(ctx any, src []byte, offset uint64) error
	// Size is the device's address-space extent in bytes.
	Size() uint64
	// MinOpSize/MaxOpSize bound the access sizes the adapter will ever
	// pass to Read/Write directly; both are powers of two, min <= max <= 16.
	MinOpSize() int
	MaxOpSize() int
}

// region is one MMIO device mapped at a physical base address.
type region struct {
	begin  uint64
	end    uint64 // exclusive
	device Device
	ctx    any
}

// Map is the physical address map (spec.md §4.1): one RAM region plus an
// unordered list of non-overlapping-with-RAM MMIO regions. Devices must
// not overlap RAM; overlap among MMIO regions is caller-forbidden and not
// checked here (same contract as the reference bus's AddDevice).
type Map struct {
	ram     *RAM
	regions []region
}

// NewMap wires a RAM region into a fresh, device-less physical address map.
func NewMap(ramBegin, ramSize uint64) (*Map, error) {
	ram, err := ramInit(ramBegin, ramSize)
	if err != nil {
		return nil, err
	}
	return &Map{ram: ram}, nil
}

// Close releases the RAM region's backing pages.
func (m *Map) Close() error {
	return ramFree(m.ram)
}

// AddDevice maps dev's address space at base, passing ctx to every
// Read/Write call the adapter makes against it.
func (m *Map) AddDevice(base uint64, dev Device, ctx any) {
	m.regions = append(m.regions, region{begin: base, end: base + dev.Size(), device: dev, ctx: ctx})
}

// RAM exposes the map's RAM region, mainly so the walker and tests can
// read/write PTEs directly.
func (m *Map) RAM() *RAM { return m.ram }

// PhysToHost returns the host byte window backing [p, p+n) if it lies
// entirely within RAM, else nil (spec.md §4.1's phys_to_host, extended
// with a length so callers get a bounds-checked slice in one call).
func (m *Map) PhysToHost(p uint64, n int) []byte {
	return m.ram.Slice(p, n)
}

// FindMMIO returns the first MMIO region containing p, and the
// device-relative offset within it (spec.md §4.1's find_mmio). A linear
// scan is deliberate: device lists are small and built once at machine
// construction, so the lookup cost is dominated by the page-crossing and
// TLB-miss cases that call it, not by list length.
func (m *Map) FindMMIO(p uint64) (Device, any, uint64, bool) {
	for _, r := range m.regions {
		if p >= r.begin && p < r.end {
			return r.device, r.ctx, p - r.begin, true
		}
	}
	return nil, nil, 0, false
}
