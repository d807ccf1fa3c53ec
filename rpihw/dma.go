package rpihw

import (
	"fmt"
	"os"
	"time"

	"github.com/DerLukas15/rpimemmap"
)

// DMA channel register byte offsets within a channel block.
const (
	dmaCS        = 0x00
	dmaConblkAd  = 0x04
	dmaDebug     = 0x20
	dmaEnableReg = 0xff0
)

// Control-and-status register bits.
const (
	dmaCSReset                 = 1 << 31
	dmaCSAbort                 = 1 << 30
	dmaCSWaitOutstandingWrites = 1 << 28
	dmaCSError                 = 1 << 8
	dmaCSInt                   = 1 << 2
	dmaCSEnd                   = 1 << 1
	dmaCSActive                = 1 << 0
)

func dmaCSPanicPriority(val uint32) uint32 {
	return (val & 0xf) << 20
}

func dmaCSPriority(val uint32) uint32 {
	return (val & 0xf) << 16
}

// A DMAChannel drives one of the engine's channels 0-14. Channel 15
// sits on a separate register page and is not supported.
type DMAChannel struct {
	mem     rpimemmap.MemMap
	channel uint32
}

// OpenDMAChannel maps the DMA register block and claims a channel.
func OpenDMAChannel(channel uint32) (*DMAChannel, error) {
	if channel > 14 {
		return nil, fmt.Errorf("DMA channel %d not usable", channel)
	}

	mem := rpimemmap.NewPeripheral(uint32(os.Getpagesize()))
	if err := mem.Map(dmaBlockOffset, rpimemmap.MemDevDefault, 0); err != nil {
		return nil, fmt.Errorf("mapping DMA registers: %v", err)
	}

	c := &DMAChannel{mem: mem, channel: channel}
	c.enable()

	return c, nil
}

func (c *DMAChannel) reg(offset uint32) *uint32 {
	return rpimemmap.Reg32(c.mem, c.channel*0x100+offset)
}

func (c *DMAChannel) enable() {
	*rpimemmap.Reg32(c.mem, dmaEnableReg) |= 1 << c.channel
}

// Reset stops the channel and returns it to its power-on state.
func (c *DMAChannel) Reset() {
	*c.reg(dmaCS) = dmaCSReset
	time.Sleep(10 * time.Microsecond)
}

// Start points the channel at a control-block address and activates
// it with maximum priority, so FIFO underruns stay impossible even
// under memory pressure.
func (c *DMAChannel) Start(controlBlockAddress uint32) error {
	c.Reset()

	*c.reg(dmaCS) = dmaCSInt | dmaCSEnd
	time.Sleep(10 * time.Microsecond)

	*c.reg(dmaConblkAd) = controlBlockAddress
	*c.reg(dmaDebug) = 7 // clear sticky error flags

	*c.reg(dmaCS) = dmaCSWaitOutstandingWrites |
		dmaCSPanicPriority(15) |
		dmaCSPriority(15) |
		dmaCSActive

	return nil
}

// Active reports whether the channel is executing a program.
func (c *DMAChannel) Active() bool {
	return *c.reg(dmaCS)&dmaCSActive != 0
}

// Error reports whether the channel has latched an error.
func (c *DMAChannel) Error() bool {
	return *c.reg(dmaCS)&dmaCSError != 0
}

// ErrorFlags returns the debug register's error detail bits.
func (c *DMAChannel) ErrorFlags() uint32 {
	return *c.reg(dmaDebug) & 7
}

// ClearErrors resets the latched error detail bits.
func (c *DMAChannel) ClearErrors() {
	*c.reg(dmaDebug) = 7
}

// ControlBlockAddress returns the address of the block the channel is
// on.
func (c *DMAChannel) ControlBlockAddress() uint32 {
	return *c.reg(dmaConblkAd)
}

// Abort stops the channel mid-program.
func (c *DMAChannel) Abort() {
	*c.reg(dmaCS) = dmaCSAbort
	time.Sleep(10 * time.Microsecond)
	c.Reset()
}

// Close releases the register mapping. The channel keeps whatever
// state it was left in.
func (c *DMAChannel) Close() error {
	return c.mem.Unmap()
}
