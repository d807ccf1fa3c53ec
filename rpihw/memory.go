package rpihw

import (
	"fmt"

	"github.com/DerLukas15/rpihardware"
	"github.com/DerLukas15/rpimemmap"
)

// MailboxAllocator hands out uncached, bus-addressable memory through
// the VideoCore mailbox. The DMA engine's writes are observable
// through the mapping without cache maintenance.
type MailboxAllocator struct {
	allocationFlags uint32
}

// NewMailboxAllocator detects the board and creates an allocator.
func NewMailboxAllocator() (*MailboxAllocator, error) {
	hw, err := rpihardware.Check()
	if err != nil {
		return nil, fmt.Errorf("unsupported hardware: %v", err)
	}

	flags := uint32(rpimemmap.UncachedMemFlagDirect)
	if hw.RPiType == rpihardware.RPiType1 {
		// The first-generation VideoCore wants the L1/L2 coherent
		// alias instead of the direct one.
		flags = 0xc
	}

	return &MailboxAllocator{allocationFlags: flags}, nil
}

// AllocateUncached maps at least minSize bytes of uncached memory.
// The actual allocation rounds up to whole pages.
func (a *MailboxAllocator) AllocateUncached(minSize uint32) (*UncachedMemory, error) {
	mem := rpimemmap.NewUncached(minSize)
	if err := mem.Map(0, "", a.allocationFlags); err != nil {
		return nil, fmt.Errorf("allocating %d uncached bytes: %v", minSize, err)
	}

	return &UncachedMemory{mem: mem}, nil
}

// UncachedMemory is one mailbox allocation.
type UncachedMemory struct {
	mem rpimemmap.MemMap
}

// BusAddress returns the address the DMA engine reaches the region
// under.
func (u *UncachedMemory) BusAddress() uint32 {
	return u.mem.BusAddr()
}

// Write32 stores one word at a byte offset into the region.
func (u *UncachedMemory) Write32(offset, value uint32) {
	*rpimemmap.Reg32(u.mem, offset) = value
}

// Read32 loads one word from a byte offset into the region.
func (u *UncachedMemory) Read32(offset uint32) uint32 {
	return *rpimemmap.Reg32(u.mem, offset)
}

// Free returns the allocation to the VideoCore.
func (u *UncachedMemory) Free() error {
	return u.mem.Unmap()
}
