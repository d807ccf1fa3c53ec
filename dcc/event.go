// Package dcc models Digital Command Control bitstreams and composes
// the packets that feed them.
package dcc

import (
	"time"

	"github.com/rs/xid"
)

// An Event is one element of a Bitstream. Events are either payload
// words to be serialized or points in time at which a GPIO edge must
// coincide with the serialized output.
type Event interface {
	isEvent()
}

// Data carries Size significant bits of Word, serialized MSB-first.
// The significant bits occupy the most-significant end of Word.
type Data struct {
	Word uint32
	Size uint32
}

// RailComCutoutStart gates the track driver off so that decoders can
// answer during the cutout window. The cutout pin goes low.
type RailComCutoutStart struct{}

// RailComCutoutEnd re-enables the track driver. The cutout pin goes
// high.
type RailComCutoutEnd struct{}

// DebugStart raises the debug pin, typically used as a scope trigger.
type DebugStart struct{}

// DebugEnd lowers the debug pin.
type DebugEnd struct{}

// LoopStart marks the point after which traversal restarts on every
// subsequent cycle. At most one may appear in a bitstream; without
// one, the whole bitstream repeats.
type LoopStart struct{}

func (Data) isEvent()               {}
func (RailComCutoutStart) isEvent() {}
func (RailComCutoutEnd) isEvent()   {}
func (DebugStart) isEvent()         {}
func (DebugEnd) isEvent()           {}
func (LoopStart) isEvent()          {}

// A Bitstream is a finite ordered sequence of events together with the
// wall-clock duration of one full traversal.
type Bitstream struct {
	ID       string
	Events   []Event
	Duration time.Duration
}

// NewBitstream wraps a prepared event sequence.
func NewBitstream(events []Event, duration time.Duration) *Bitstream {
	return &Bitstream{
		ID:       xid.New().String(),
		Events:   events,
		Duration: duration,
	}
}
