package waveform

import (
	"fmt"

	"github.com/trackforge/dccwave/dcc"
	"github.com/trackforge/dccwave/rpihw"
)

// controlBlockBuilder appends typed control blocks to a growing graph
// and maintains the parallel data-word vector. Until relocation, a
// source or destination below the peripheral bus base is a byte
// offset: next pointers and sentinel literal sources are relative to
// the control-block vector, everything else internal to the data
// vector. The builder never inspects its own output.
type controlBlockBuilder struct {
	railComPin uint32
	debugPin   uint32

	blocks []rpihw.ControlBlock
	data   []uint32
}

func newControlBlockBuilder(railComPin, debugPin uint32) *controlBlockBuilder {
	return &controlBlockBuilder{
		railComPin: railComPin,
		debugPin:   debugPin,

		// Index 0 is the sentinel slot the graph reports progress in.
		data: []uint32{0},
	}
}

// nextIndex returns the index the next appended block will get.
func (b *controlBlockBuilder) nextIndex() int {
	return len(b.blocks)
}

// startSentinel emits the block that stamps 1 into the sentinel slot
// when the graph begins executing. The literal lives in the block's
// own scratch word.
func (b *controlBlockBuilder) startSentinel() {
	idx := len(b.blocks)
	b.blocks = append(b.blocks, rpihw.ControlBlock{
		TransferInformation:     rpihw.TIWaitResp,
		SourceAddress:           uint32(idx*rpihw.ControlBlockBytes + rpihw.ControlBlockScratchOffset),
		DestinationAddress:      0,
		TransferLength:          4,
		NextControlBlockAddress: uint32((idx + 1) * rpihw.ControlBlockBytes),
		Reserved:                [2]uint32{1, 0},
	})
}

// endSentinel emits the block that stamps the negative marker into
// the sentinel slot and loops back to loopTarget.
func (b *controlBlockBuilder) endSentinel(loopTarget int) {
	idx := len(b.blocks)
	b.blocks = append(b.blocks, rpihw.ControlBlock{
		TransferInformation:     rpihw.TIWaitResp,
		SourceAddress:           uint32(idx*rpihw.ControlBlockBytes + rpihw.ControlBlockScratchOffset),
		DestinationAddress:      0,
		TransferLength:          4,
		NextControlBlockAddress: uint32(loopTarget * rpihw.ControlBlockBytes),
		Reserved:                [2]uint32{^uint32(0), 0},
	})
}

// dataBurst emits a DREQ-paced burst of words into the PWM FIFO.
func (b *controlBlockBuilder) dataBurst(words []uint32) {
	idx := len(b.blocks)
	src := uint32(len(b.data) * 4)
	b.data = append(b.data, words...)

	b.blocks = append(b.blocks, rpihw.ControlBlock{
		TransferInformation: rpihw.TINoWideBursts |
			rpihw.TIPermap(rpihw.DreqPWM) |
			rpihw.TISrcInc |
			rpihw.TIDestDreq |
			rpihw.TIWaitResp,
		SourceAddress:           src,
		DestinationAddress:      rpihw.PWMFIFOBusAddress,
		TransferLength:          uint32(4 * len(words)),
		NextControlBlockAddress: uint32((idx + 1) * rpihw.ControlBlockBytes),
	})
}

// rangeWrite emits a retune of the serializer's bit count. It is
// DREQ-paced like a burst so the retune rides the FIFO cadence.
func (b *controlBlockBuilder) rangeWrite(size uint32) {
	idx := len(b.blocks)
	src := uint32(len(b.data) * 4)
	b.data = append(b.data, size)

	b.blocks = append(b.blocks, rpihw.ControlBlock{
		TransferInformation: rpihw.TINoWideBursts |
			rpihw.TIPermap(rpihw.DreqPWM) |
			rpihw.TIDestDreq |
			rpihw.TIWaitResp,
		SourceAddress:           src,
		DestinationAddress:      rpihw.PWMRangeBusAddress,
		TransferLength:          4,
		NextControlBlockAddress: uint32((idx + 1) * rpihw.ControlBlockBytes),
	})
}

// gpioEdges emits one 2-D transfer applying every due edge: two rows
// of set0,set1 and clr0,clr1, with the destination hopping over the
// reserved word between the GPIO set and clear pairs.
func (b *controlBlockBuilder) gpioEdges(due []dcc.Event) {
	if len(due) == 0 {
		panic("gpio edge block with no due events")
	}

	var set, clear [2]uint32
	for _, ev := range due {
		pin, high := b.edgeFor(ev)
		bank := pin / 32
		bit := uint32(1) << (pin % 32)
		if high {
			set[bank] |= bit
			clear[bank] &^= bit
		} else {
			clear[bank] |= bit
			set[bank] &^= bit
		}
	}

	idx := len(b.blocks)
	src := uint32(len(b.data) * 4)
	b.data = append(b.data, set[0], set[1], clear[0], clear[1])

	b.blocks = append(b.blocks, rpihw.ControlBlock{
		TransferInformation: rpihw.TINoWideBursts |
			rpihw.TITDMode |
			rpihw.TISrcInc |
			rpihw.TIDestInc |
			rpihw.TIWaitResp,
		SourceAddress:           src,
		DestinationAddress:      rpihw.GPIOSetBusAddress,
		TransferLength:          rpihw.TDTransferLength(2, 8),
		TDModeStride:            rpihw.TDStride(4, 0),
		NextControlBlockAddress: uint32((idx + 1) * rpihw.ControlBlockBytes),
	})
}

// edgeFor maps a queued event to the pin it moves and the level it
// leaves the pin at.
func (b *controlBlockBuilder) edgeFor(ev dcc.Event) (pin uint32, high bool) {
	switch ev.(type) {
	case dcc.RailComCutoutStart:
		return b.railComPin, false
	case dcc.RailComCutoutEnd:
		return b.railComPin, true
	case dcc.DebugStart:
		return b.debugPin, true
	case dcc.DebugEnd:
		return b.debugPin, false
	default:
		panic(fmt.Sprintf("event %T carries no GPIO edge", ev))
	}
}
