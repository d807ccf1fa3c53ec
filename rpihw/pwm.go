package rpihw

import (
	"fmt"
	"os"
	"time"

	"github.com/DerLukas15/rpimemmap"
)

// PWM control register bits for channel 1 in serializer mode.
const (
	pwmCtlPwen1 = 1 << 0
	pwmCtlMode1 = 1 << 1
	pwmCtlUsef1 = 1 << 5
	pwmCtlClrf1 = 1 << 6
)

const pwmDmacEnable = uint32(1) << 31

func pwmDmacPanic(val uint32) uint32 {
	return (val & 0xff) << 8
}

func pwmDmacDreq(val uint32) uint32 {
	return (val & 0xff) << 0
}

// Clock-manager registers for the PWM clock, offsets within the clock
// block.
const (
	cmPwmCtl = 0xa0
	cmPwmDiv = 0xa4
)

const (
	cmPasswd     = 0x5a000000
	cmCtlSrcOsc  = 1 << 0
	cmCtlEnable  = 1 << 4
	cmCtlKill    = 1 << 5
	cmCtlBusy    = 1 << 7
	cmCtlMash1   = 1 << 9
	oscillatorHz = 19200000
)

// A PWMSerializer shifts FIFO words out bit by bit at the rate the
// clock manager divides down to.
type PWMSerializer struct {
	pwm   rpimemmap.MemMap
	clock rpimemmap.MemMap
	oscHz uint64
}

// OpenPWMSerializer maps the PWM and clock-manager register blocks.
func OpenPWMSerializer() (*PWMSerializer, error) {
	pwm := rpimemmap.NewPeripheral(uint32(os.Getpagesize()))
	if err := pwm.Map(pwmBlockOffset, rpimemmap.MemDevDefault, 0); err != nil {
		return nil, fmt.Errorf("mapping PWM registers: %v", err)
	}

	clock := rpimemmap.NewPeripheral(uint32(os.Getpagesize()))
	if err := clock.Map(clockBlockOffset, rpimemmap.MemDevDefault, 0); err != nil {
		pwm.Unmap()
		return nil, fmt.Errorf("mapping clock registers: %v", err)
	}

	return &PWMSerializer{pwm: pwm, clock: clock, oscHz: oscillatorHz}, nil
}

// SetOscillator overrides the crystal frequency; the Pi 4 runs a
// 54 MHz crystal instead of 19.2 MHz.
func (p *PWMSerializer) SetOscillator(hz uint64) {
	p.oscHz = hz
}

func (p *PWMSerializer) pwmReg(offset uint32) *uint32 {
	return rpimemmap.Reg32(p.pwm, offset)
}

func (p *PWMSerializer) clockReg(offset uint32) *uint32 {
	return rpimemmap.Reg32(p.clock, offset)
}

// Configure stops the serializer, retunes the clock so one serialized
// bit lasts bitClock, and brings channel 1 up in FIFO serializer mode
// with DMA pacing enabled. The step delays keep the block from
// locking up during reprogramming.
func (p *PWMSerializer) Configure(bitClock time.Duration) error {
	p.Stop()

	// Divider in 1/4096 steps, MASH-1 smoothing the fraction.
	div := p.oscHz * uint64(bitClock.Nanoseconds()) * 4096 / 1000000000
	if div>>12 < 2 || div>>12 > 0xfff {
		return fmt.Errorf("bit clock %v not reachable from %d Hz", bitClock, p.oscHz)
	}

	*p.clockReg(cmPwmDiv) = cmPasswd | uint32(div&0xffffff)
	*p.clockReg(cmPwmCtl) = cmPasswd | cmCtlMash1 | cmCtlSrcOsc
	*p.clockReg(cmPwmCtl) = cmPasswd | cmCtlMash1 | cmCtlSrcOsc | cmCtlEnable
	time.Sleep(10 * time.Microsecond)
	for *p.clockReg(cmPwmCtl)&cmCtlBusy == 0 {
	}

	*p.pwmReg(PWMRng1) = 32
	time.Sleep(10 * time.Microsecond)
	*p.pwmReg(PWMCtl) = pwmCtlClrf1
	time.Sleep(10 * time.Microsecond)
	*p.pwmReg(PWMDmac) = pwmDmacEnable | pwmDmacPanic(7) | pwmDmacDreq(3)
	time.Sleep(10 * time.Microsecond)
	*p.pwmReg(PWMCtl) = pwmCtlUsef1 | pwmCtlMode1
	time.Sleep(10 * time.Microsecond)
	*p.pwmReg(PWMCtl) |= pwmCtlPwen1

	return nil
}

// Status returns the raw status register.
func (p *PWMSerializer) Status() uint32 {
	return *p.pwmReg(PWMSta)
}

// ClearStatus resets the sticky error bits in the status register.
func (p *PWMSerializer) ClearStatus() {
	*p.pwmReg(PWMSta) = *p.pwmReg(PWMSta)
}

// Stop disables the serializer and kills its clock.
func (p *PWMSerializer) Stop() {
	*p.pwmReg(PWMCtl) = 0
	time.Sleep(10 * time.Microsecond)

	*p.clockReg(cmPwmCtl) = cmPasswd | cmCtlKill
	time.Sleep(10 * time.Microsecond)
	for *p.clockReg(cmPwmCtl)&cmCtlBusy != 0 {
	}
}

// Close stops the serializer and releases the register mappings.
func (p *PWMSerializer) Close() error {
	p.Stop()
	if err := p.pwm.Unmap(); err != nil {
		return err
	}
	return p.clock.Unmap()
}
