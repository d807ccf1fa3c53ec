package rpihw

import (
	"fmt"
	"os"

	"github.com/DerLukas15/rpimemmap"
)

// PinFunction selects what a GPIO pin does.
type PinFunction uint32

// Function-select encodings from the datasheet.
const (
	PinInput  PinFunction = 0x0
	PinOutput PinFunction = 0x1
	PinAlt0   PinFunction = 0x4
	PinAlt1   PinFunction = 0x5
	PinAlt2   PinFunction = 0x6
	PinAlt3   PinFunction = 0x7
	PinAlt4   PinFunction = 0x3
	PinAlt5   PinFunction = 0x2
)

// A GPIOBank is the mapped GPIO register block.
type GPIOBank struct {
	mem rpimemmap.MemMap
}

// OpenGPIOBank maps the GPIO registers.
func OpenGPIOBank() (*GPIOBank, error) {
	mem := rpimemmap.NewPeripheral(uint32(os.Getpagesize()))
	if err := mem.Map(gpioBlockOffset, rpimemmap.MemDevDefault, 0); err != nil {
		return nil, fmt.Errorf("mapping GPIO registers: %v", err)
	}
	return &GPIOBank{mem: mem}, nil
}

// SetFunction programs a pin's function-select field.
func (g *GPIOBank) SetFunction(pin uint32, fn PinFunction) {
	reg := rpimemmap.Reg32(g.mem, GPIOFsel0+pin/10*4)
	shift := pin % 10 * 3
	*reg = *reg&^(0x7<<shift) | uint32(fn)<<shift
}

// Set drives an output pin high.
func (g *GPIOBank) Set(pin uint32) {
	*rpimemmap.Reg32(g.mem, GPIOSet0+pin/32*4) = 1 << (pin % 32)
}

// Clear drives an output pin low.
func (g *GPIOBank) Clear(pin uint32) {
	*rpimemmap.Reg32(g.mem, GPIOClr0+pin/32*4) = 1 << (pin % 32)
}

// Level reads a pin's current state.
func (g *GPIOBank) Level(pin uint32) bool {
	return *rpimemmap.Reg32(g.mem, GPIOLev0+pin/32*4)&(1<<(pin%32)) != 0
}

// Close releases the register mapping.
func (g *GPIOBank) Close() error {
	return g.mem.Unmap()
}
