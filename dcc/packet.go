package dcc

import "fmt"

// A Packet holds the address and instruction bytes of one DCC packet,
// without the check byte. The check byte is derived during encoding.
type Packet []byte

// Address identifies a decoder. 0 broadcasts to all decoders, 1-127
// use the short one-byte form, 128-10239 the two-byte form.
type Address uint16

// Broadcast addresses every multi-function decoder on the track.
const Broadcast Address = 0

const maxLongAddress = 10239

func (a Address) bytes() []byte {
	if a <= 127 {
		return []byte{byte(a)}
	}
	if a > maxLongAddress {
		panic(fmt.Sprintf("address %d out of range", a))
	}
	return []byte{0xc0 | byte(a>>8), byte(a)}
}

// Idle keeps the track powered between commands. Decoders take no
// action on it.
func Idle() Packet {
	return Packet{0xff, 0x00}
}

// Reset returns every decoder to its power-on state and halts
// locomotives.
func Reset() Packet {
	return Packet{0x00, 0x00}
}

// Speed28 builds a baseline speed-and-direction packet. Step 0 stops
// the locomotive; steps 1-28 select the running speed.
func Speed28(addr Address, step uint8, forward bool) Packet {
	if step > 28 {
		panic(fmt.Sprintf("28-step speed %d out of range", step))
	}

	spd := uint8(0)
	if step > 0 {
		spd = step + 3
	}

	instruction := uint8(0x40) | spd>>1 | (spd&1)<<4
	if forward {
		instruction |= 0x20
	}

	return append(Packet(addr.bytes()), instruction)
}

// EStop28 builds a baseline emergency-stop packet.
func EStop28(addr Address, forward bool) Packet {
	instruction := uint8(0x40) | 0x01
	if forward {
		instruction |= 0x20
	}
	return append(Packet(addr.bytes()), instruction)
}

// Speed128 builds an advanced-operations 128-step speed packet.
// Step 0 stops the locomotive; steps 1-126 select the running speed.
func Speed128(addr Address, step uint8, forward bool) Packet {
	if step > 126 {
		panic(fmt.Sprintf("128-step speed %d out of range", step))
	}

	spd := uint8(0)
	if step > 0 {
		spd = step + 1
	}
	if forward {
		spd |= 0x80
	}

	return append(Packet(addr.bytes()), 0x3f, spd)
}

// EStop128 builds an advanced-operations emergency-stop packet.
func EStop128(addr Address, forward bool) Packet {
	spd := uint8(1)
	if forward {
		spd |= 0x80
	}
	return append(Packet(addr.bytes()), 0x3f, spd)
}

// FunctionGroup1 controls the headlight and functions F1-F4. Bits 0-3
// of functions select F1-F4.
func FunctionGroup1(addr Address, headlight bool, functions uint8) Packet {
	instruction := uint8(0x80) | functions&0x0f
	if headlight {
		instruction |= 0x10
	}
	return append(Packet(addr.bytes()), instruction)
}

// FunctionGroup2 controls F5-F8 (high=true) or F9-F12 (high=false)
// through bits 0-3 of functions.
func FunctionGroup2(addr Address, high bool, functions uint8) Packet {
	instruction := uint8(0xa0) | functions&0x0f
	if high {
		instruction |= 0x10
	}
	return append(Packet(addr.bytes()), instruction)
}

// check computes the error-detection byte, the XOR of all packet
// bytes.
func (p Packet) check() byte {
	c := byte(0)
	for _, b := range p {
		c ^= b
	}
	return c
}
