package rpihw

// PeripheralBusBase is the bus-address alias all peripherals live
// above. Any control-block address below it is a not-yet-relocated
// offset internal to a compiled graph.
const PeripheralBusBase = 0x7e000000

// Peripheral block offsets from the bus base.
const (
	dmaBlockOffset   = 0x007000
	clockBlockOffset = 0x101000
	gpioBlockOffset  = 0x200000
	pwmBlockOffset   = 0x20c000
)

// PWM register byte offsets.
const (
	PWMCtl  = 0x00
	PWMSta  = 0x04
	PWMDmac = 0x08
	PWMRng1 = 0x10
	PWMDat1 = 0x14
	PWMFif1 = 0x18
	PWMRng2 = 0x20
	PWMDat2 = 0x24
)

// GPIO register byte offsets. The word between Set1 and Clr0 is
// reserved, which is why edge blocks write set and clear pairs as a
// strided 2-D transfer.
const (
	GPIOFsel0 = 0x00
	GPIOSet0  = 0x1c
	GPIOSet1  = 0x20
	GPIOClr0  = 0x28
	GPIOClr1  = 0x2c
	GPIOLev0  = 0x34
)

// Bus addresses a compiled graph writes to.
const (
	PWMFIFOBusAddress  = PeripheralBusBase + pwmBlockOffset + PWMFif1
	PWMRangeBusAddress = PeripheralBusBase + pwmBlockOffset + PWMRng1
	GPIOSetBusAddress  = PeripheralBusBase + gpioBlockOffset + GPIOSet0
)

// dmaChannelOffset returns the register-block offset of a DMA
// channel. Channel 15 sits apart from the other fifteen.
func dmaChannelOffset(channel uint32) uint32 {
	if channel == 15 {
		return 0xe05000
	}
	return dmaBlockOffset + channel*0x100
}
