package mmu

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Machine is the set of harts sharing one physical address map (spec.md
// §5: "multiple parallel harts share RAM and MMIO descriptors"). It is
// the natural home for SFENCE.VMA's remote effect on other harts, which
// real hardware delivers as an inter-processor interrupt — modelled here
// as a direct call into each remote hart's own TLB flush.
type Machine struct {
	PAM   *Map
	Harts []*Hart
}

// NewMachine wires harts harts against a shared address map.
func NewMachine(pam *Map, harts []*Hart) *Machine {
	return &Machine{PAM: pam, Harts: harts}
}

// RemoteFlushAll issues a full TLB flush on every hart but self, modelling
// the IPI broadcast a guest OS performs to propagate a satp/ASID change
// (spec.md §5: "guest software must issue SFENCE.VMA on remote harts...
// modelled as IPI → remote full flush"). Each hart's own TLB is private
// state with no shared-memory contention once the CPUs aren't also racing
// the page table itself, so the flushes are safe to run concurrently;
// errgroup.Group is used instead of a manual sync.WaitGroup+channel for
// exactly that reason, mirroring the fan-out-and-join pattern the rest of
// this corpus reaches for golang.org/x/sync to express.
func (m *Machine) RemoteFlushAll(ctx context.Context, self *Hart) error {
	g, _ := errgroup.WithContext(ctx)
	for _, h := range m.Harts {
		if h == self {
			continue
		}
		h := h
		g.Go(func() error {
			h.FlushTLB()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("mmu: remote flush-all failed", "error", err)
		return err
	}
	return nil
}

// RemoteFlushPage is the single-page analogue of RemoteFlushAll.
func (m *Machine) RemoteFlushPage(ctx context.Context, self *Hart, vaddr uint64) error {
	g, _ := errgroup.WithContext(ctx)
	for _, h := range m.Harts {
		if h == self {
			continue
		}
		h, vaddr := h, vaddr
		g.Go(func() error {
			h.FlushTLBPage(vaddr)
			return nil
		})
	}
	return g.Wait()
}
