// Command mmubench drives repeated guest loads through the translation
// core to measure TLB-hit and walker throughput under a configurable
// paging mode.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/rvmmu/internal/mmu"
)

func parseMode(s string) (mmu.Mode, error) {
	switch s {
	case "bare":
		return mmu.ModeBare, nil
	case "sv32":
		return mmu.ModeSv32, nil
	case "sv39":
		return mmu.ModeSv39, nil
	case "sv48":
		return mmu.ModeSv48, nil
	case "sv57":
		return mmu.ModeSv57, nil
	default:
		return 0, fmt.Errorf("unsupported paging mode: %s", s)
	}
}

// modeLevels and modeVPNBits mirror the per-mode level count and
// per-level index width the translation core walks internally (RISC-V
// privileged architecture section 5.3-5.6); the benchmark needs them to
// lay out its own page-table chain rather than reach into the package's
// unexported layout table.
func modeLevels(mode mmu.Mode) int {
	switch mode {
	case mmu.ModeSv32:
		return 2
	case mmu.ModeSv39:
		return 3
	case mmu.ModeSv48:
		return 4
	case mmu.ModeSv57:
		return 5
	default:
		return 0
	}
}

func modePTEBytes(mode mmu.Mode) int {
	if mode == mmu.ModeSv32 {
		return 4
	}
	return 8
}

func modeVPNBits(mode mmu.Mode) uint {
	if mode == mmu.ModeSv32 {
		return 10
	}
	return 9
}

// buildPageTable installs a full per-level chain of page tables mapping
// each of the benchmark's pages as an ordinary 4 KiB leaf PTE at level
// 0. A single root-level superpage was tried first, but its leaf PPN
// would need its low (level*vpnBits) bits zero to pass the walker's
// misaligned-superpage check, which forces dataBase to an alignment far
// larger than a small benchmark RAM window can hold; building the chain
// down to a normal leaf sidesteps that check entirely, since it only
// applies to leaves found above level 0.
//
// tables holds the chain's pointer tables from the root down to (but not
// including) leafPT; tables[i] points at tables[i+1], and the last entry
// points at leafPT. leafPT holds one leaf PTE per page, indexed by page
// number, each mapping to dataBase+page*PageSize.
func buildPageTable(pam *mmu.Map, mode mmu.Mode, tables []uint64, leafPT, dataBase uint64, pages int) error {
	levels := modeLevels(mode)
	if len(tables) != levels-1 {
		return fmt.Errorf("mmubench: %v needs %d pointer tables, got %d", mode, levels-1, len(tables))
	}
	if vpnBits := modeVPNBits(mode); pages > 1<<vpnBits {
		return fmt.Errorf("mmubench: -pages=%d exceeds %v's %d-entry leaf table", pages, mode, 1<<vpnBits)
	}

	pteBytes := modePTEBytes(mode)
	for i, addr := range tables {
		next := leafPT
		if i+1 < len(tables) {
			next = tables[i+1]
		}
		if err := putPTE(pam, addr, 0, next, pteBytes, mmu.PteV); err != nil {
			return err
		}
	}

	for page := 0; page < pages; page++ {
		phys := dataBase + uint64(page)*mmu.PageSize
		if err := putPTE(pam, leafPT, page, phys, pteBytes, mmu.PteV|mmu.PteR|mmu.PteW); err != nil {
			return err
		}
	}
	return nil
}

// putPTE writes a single PTE at tableAddr's index'th slot, pointing at
// targetAddr with the given permission/valid bits.
func putPTE(pam *mmu.Map, tableAddr uint64, index int, targetAddr uint64, pteBytes int, bits uint64) error {
	host := pam.PhysToHost(tableAddr+uint64(index)*uint64(pteBytes), pteBytes)
	if host == nil {
		return fmt.Errorf("mmubench: page table address %#x is not backed by RAM", tableAddr)
	}
	ppn := targetAddr >> 12
	pte := (ppn << 10) | bits
	if pteBytes == 4 {
		binary.LittleEndian.PutUint32(host, uint32(pte))
	} else {
		binary.LittleEndian.PutUint64(host, pte)
	}
	return nil
}

func run() error {
	modeFlag := flag.String("mode", "sv32", "paging mode: bare, sv32, sv39, sv48, sv57")
	iterations := flag.Int("n", 1_000_000, "number of translations to perform")
	pages := flag.Int("pages", 64, "number of distinct pages to cycle through")
	flag.Parse()

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return err
	}

	const ramBegin = 0x80000000
	const ramSize = 0x00400000 // 4 MiB: page table chain plus data pages
	const tablesBase = ramBegin
	const leafPT = tablesBase + 0x4000 // room for up to 4 pointer tables (Sv57)
	const dataBase = ramBegin + 0x00100000

	pam, err := mmu.NewMap(ramBegin, ramSize)
	if err != nil {
		return fmt.Errorf("mmu: allocate RAM: %w", err)
	}
	defer pam.Close()

	h := mmu.NewHart(nopTrapRaiser{})
	h.MMUMode = mode
	h.PrivMode = mmu.PrivSupervisor

	if mode != mmu.ModeBare {
		tables := make([]uint64, modeLevels(mode)-1)
		for i := range tables {
			tables[i] = tablesBase + uint64(i)*mmu.PageSize
		}
		if err := buildPageTable(pam, mode, tables, leafPT, dataBase, *pages); err != nil {
			return err
		}
		h.RootPageTable = tables[0]
	}

	buf := make([]byte, 8)
	bar := progressbar.Default(int64(*iterations))
	defer bar.Close()

	start := time.Now()
	for i := 0; i < *iterations; i++ {
		page := uint64(i % *pages)
		vaddr := page << 12
		if !mmu.Access(h, pam, vaddr, buf, mmu.AccessRead) {
			return fmt.Errorf("translation failed at vaddr %#x", vaddr)
		}
		if i%4096 == 0 {
			bar.Add(4096)
		}
	}
	elapsed := time.Since(start)

	slog.Info("mmubench finished",
		"mode", mode,
		"iterations", *iterations,
		"elapsed", elapsed,
		"ns_per_access", float64(elapsed.Nanoseconds())/float64(*iterations))

	return nil
}

// nopTrapRaiser only logs traps; a benchmark run that hits a fault has a
// bug in its own address generation, not a guest condition worth modelling.
type nopTrapRaiser struct{}

func (nopTrapRaiser) RaiseTrap(cause, tval uint64) {
	slog.Warn("mmubench: unexpected trap", "cause", cause, "tval", tval)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mmubench: %v\n", err)
		os.Exit(1)
	}
}
