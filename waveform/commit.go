package waveform

import (
	"github.com/trackforge/dccwave/rpihw"
)

// An Allocator hands out DMA-coherent memory: writes by the engine at
// the bus address are observable through the region without cache
// maintenance.
type Allocator interface {
	AllocateUncached(minSize uint32) (Region, error)
}

// A Region is one bus-addressable uncached allocation.
type Region interface {
	BusAddress() uint32
	Write32(offset, value uint32)
	Read32(offset uint32) uint32
	Free() error
}

// A Committer places compiled graphs into DMA-visible memory and
// rewrites their internal offsets to absolute bus addresses.
type Committer struct {
	allocator Allocator
}

// NewCommitter creates a Committer on the given allocator.
func NewCommitter(allocator Allocator) *Committer {
	return &Committer{allocator: allocator}
}

// Commit allocates backing memory for the graph, relocates every
// block and copies blocks and data in. A graph can be committed at
// most once. Allocation failures propagate unchanged.
func (c *Committer) Commit(g *CompiledGraph) (*CommittedGraph, error) {
	if g.committed {
		panic("graph already committed")
	}

	blockBytes := uint32(len(g.blocks) * rpihw.ControlBlockBytes)
	size := blockBytes + uint32(len(g.data)*4)

	region, err := c.allocator.AllocateUncached(size)
	if err != nil {
		return nil, err
	}

	blockBase := region.BusAddress()
	dataBase := blockBase + blockBytes

	for i, block := range g.blocks {
		writeBlock(region, uint32(i), relocate(block, blockBase, dataBase))
	}
	for i, word := range g.data {
		region.Write32(blockBytes+uint32(4*i), word)
	}

	g.committed = true

	return &CommittedGraph{
		CompiledGraph: g,
		region:        region,
		sentinelSlot:  blockBytes,
	}, nil
}

// relocate rewrites one block's addresses from internal offsets to
// bus addresses. A destination below the peripheral base identifies a
// sentinel: it writes the data vector's slot 0 and copies its literal
// out of the control-block vector. Every other internal source is an
// offset into the data vector. Next pointers are always internal to
// the control-block vector.
func relocate(block rpihw.ControlBlock, blockBase, dataBase uint32) rpihw.ControlBlock {
	if block.DestinationAddress < rpihw.PeripheralBusBase {
		block.DestinationAddress += dataBase
		block.SourceAddress += blockBase
	} else if block.SourceAddress < rpihw.PeripheralBusBase {
		block.SourceAddress += dataBase
	}
	block.NextControlBlockAddress += blockBase

	return block
}

func writeBlock(region Region, index uint32, block rpihw.ControlBlock) {
	base := index * rpihw.ControlBlockBytes
	region.Write32(base+0, block.TransferInformation)
	region.Write32(base+4, block.SourceAddress)
	region.Write32(base+8, block.DestinationAddress)
	region.Write32(base+12, block.TransferLength)
	region.Write32(base+16, block.TDModeStride)
	region.Write32(base+rpihw.ControlBlockNextOffset, block.NextControlBlockAddress)
	region.Write32(base+rpihw.ControlBlockScratchOffset, block.Reserved[0])
	region.Write32(base+rpihw.ControlBlockScratchOffset+4, block.Reserved[1])
}

// A CommittedGraph shares its backing memory with the DMA engine.
// Software only rewrites the end sentinel's next pointer at hand-off
// and reads the sentinel slot for progress.
type CommittedGraph struct {
	*CompiledGraph

	region       Region
	sentinelSlot uint32
}

// BusAddress returns the bus address of the graph's first block.
func (g *CommittedGraph) BusAddress() uint32 {
	return g.region.BusAddress()
}

// IsTransmitting reports whether the engine has fetched the graph's
// start sentinel at least once.
func (g *CommittedGraph) IsTransmitting() bool {
	return g.region.Read32(g.sentinelSlot) != 0
}

// IsRepeating reports whether the engine has run the graph's end
// sentinel, i.e. completed at least one traversal.
func (g *CommittedGraph) IsRepeating() bool {
	return g.region.Read32(g.sentinelSlot)&(1<<31) != 0
}

// setNext repoints the end sentinel at another graph's head. A single
// aligned word store, atomic with respect to the engine's fetch.
func (g *CommittedGraph) setNext(busAddress uint32) {
	offset := uint32((len(g.blocks)-1)*rpihw.ControlBlockBytes) + rpihw.ControlBlockNextOffset
	g.region.Write32(offset, busAddress)
}

// release frees the backing memory. Only safe once a successor graph
// is transmitting.
func (g *CommittedGraph) release() error {
	return g.region.Free()
}
