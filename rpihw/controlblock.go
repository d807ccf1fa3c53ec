// Package rpihw holds the BCM283x register layout and the peripheral
// drivers the waveform generator runs on.
package rpihw

// ControlBlock is one node of a DMA program, in the exact layout the
// engine fetches: six descriptor words followed by two words the
// engine ignores. The reserved words double as scratch storage for
// blocks that need a literal to copy from.
type ControlBlock struct {
	TransferInformation     uint32
	SourceAddress           uint32
	DestinationAddress      uint32
	TransferLength          uint32
	TDModeStride            uint32
	NextControlBlockAddress uint32
	Reserved                [2]uint32
}

// ControlBlockBytes is the hardware stride between control blocks.
const ControlBlockBytes = 32

// Byte offsets of control-block fields, used when patching a block
// that already sits in DMA-visible memory.
const (
	ControlBlockNextOffset    = 20
	ControlBlockScratchOffset = 24
)

// Transfer-information flags.
const (
	TIInterruptEnable = 1 << 0
	TITDMode          = 1 << 1
	TIWaitResp        = 1 << 3
	TIDestInc         = 1 << 4
	TIDestDreq        = 1 << 6
	TISrcInc          = 1 << 8
	TINoWideBursts    = 1 << 26
)

// TIPermap selects which peripheral's DREQ paces the transfer.
func TIPermap(peripheral uint32) uint32 {
	return (peripheral & 0x1f) << 16
}

// DreqPWM is the peripheral mapping of the PWM block's data request
// line.
const DreqPWM = 5

// TDTransferLength packs a 2-D transfer length: yCount rows of
// xBytes each.
func TDTransferLength(yCount, xBytes uint32) uint32 {
	return (yCount&0xffff)<<16 | xBytes&0xffff
}

// TDStride packs the signed per-row address increments of a 2-D
// transfer.
func TDStride(destStride, srcStride int16) uint32 {
	return uint32(uint16(destStride))<<16 | uint32(uint16(srcStride))
}
