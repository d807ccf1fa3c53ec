package dcc

import "time"

// BitClock is the duration of one serialized PWM bit. A DCC one bit
// is two clocks (58 us high, 58 us low), a DCC zero bit four.
const BitClock = 58 * time.Microsecond

const (
	onePattern  = 0x2 // 10
	oneBits     = 2
	zeroPattern = 0xc // 1100
	zeroBits    = 4
)

// cutoutFillerBits is the number of DCC one bits kept on the wire
// while the cutout gate is open, roughly the 450 us RailCom window.
const cutoutFillerBits = 4

// EncoderBuilder configures and creates Encoders.
type EncoderBuilder struct {
	preambleBits  int
	railComCutout bool
	debugMarkers  bool
}

// MakeEncoderBuilder returns a builder with the default 14-bit
// preamble and no cutout.
func MakeEncoderBuilder() EncoderBuilder {
	return EncoderBuilder{preambleBits: 14}
}

// WithPreambleBits sets the number of one bits sent ahead of each
// packet. The standard requires at least 14 from a command station.
func (b EncoderBuilder) WithPreambleBits(n int) EncoderBuilder {
	b.preambleBits = n
	return b
}

// WithRailComCutout opens the RailCom cutout window after every
// packet.
func (b EncoderBuilder) WithRailComCutout(enable bool) EncoderBuilder {
	b.railComCutout = enable
	return b
}

// WithDebugMarkers brackets the first packet of the repeating section
// with debug-pin edges, for triggering a scope on one traversal.
func (b EncoderBuilder) WithDebugMarkers(enable bool) EncoderBuilder {
	b.debugMarkers = enable
	return b
}

// Build creates the Encoder.
func (b EncoderBuilder) Build() *Encoder {
	return &Encoder{
		preambleBits:  b.preambleBits,
		railComCutout: b.railComCutout,
		debugMarkers:  b.debugMarkers,
	}
}

// An Encoder turns packets into bitstreams ready for compilation.
type Encoder struct {
	preambleBits  int
	railComCutout bool
	debugMarkers  bool
}

// Encode produces a bitstream that repeats the given packets forever.
func (e *Encoder) Encode(packets ...Packet) *Bitstream {
	return e.EncodeWithPreroll(nil, packets)
}

// EncodeWithPreroll produces a bitstream that sends the preroll
// packets once and then repeats the repeating packets forever.
func (e *Encoder) EncodeWithPreroll(preroll, repeating []Packet) *Bitstream {
	s := &encodeSession{}

	for _, p := range preroll {
		e.packet(s, p)
	}
	if len(preroll) > 0 {
		s.event(LoopStart{})
	}

	if e.debugMarkers {
		s.event(DebugStart{})
	}
	for i, p := range repeating {
		e.packet(s, p)
		if e.debugMarkers && i == 0 {
			s.flush()
			s.event(DebugEnd{})
		}
	}
	s.flush()

	return NewBitstream(s.events, time.Duration(s.bits)*BitClock)
}

func (e *Encoder) packet(s *encodeSession, p Packet) {
	for i := 0; i < e.preambleBits; i++ {
		s.one()
	}

	payload := append(append(Packet{}, p...), p.check())
	for _, b := range payload {
		s.zero()
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<bit) != 0 {
				s.one()
			} else {
				s.zero()
			}
		}
	}
	s.one()

	if e.railComCutout {
		s.event(RailComCutoutStart{})
		for i := 0; i < cutoutFillerBits; i++ {
			s.one()
		}
		s.event(RailComCutoutEnd{})
	}
}

// encodeSession packs serializer bits MSB-first into 32-bit words,
// breaking words wherever an event must land between them.
type encodeSession struct {
	events []Event
	word   uint32
	used   uint32
	bits   int
}

func (s *encodeSession) one() {
	s.pattern(onePattern, oneBits)
}

func (s *encodeSession) zero() {
	s.pattern(zeroPattern, zeroBits)
}

func (s *encodeSession) pattern(p uint32, n uint32) {
	for i := int(n) - 1; i >= 0; i-- {
		s.word = s.word<<1 | p>>i&1
		s.used++
		if s.used == 32 {
			s.events = append(s.events, Data{Word: s.word, Size: 32})
			s.word = 0
			s.used = 0
		}
	}
	s.bits += int(n)
}

// flush emits any partial word, left-aligned for MSB-first
// serialization.
func (s *encodeSession) flush() {
	if s.used == 0 {
		return
	}
	s.events = append(s.events, Data{Word: s.word << (32 - s.used), Size: s.used})
	s.word = 0
	s.used = 0
}

// event closes the current word and records a point-in-time event.
func (s *encodeSession) event(ev Event) {
	s.flush()
	s.events = append(s.events, ev)
}
