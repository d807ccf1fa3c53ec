package waveform

import (
	"time"

	"github.com/trackforge/dccwave/rpihw"
)

// A CompiledGraph is a control-block graph with offsets still
// relative to its own vectors. It is exclusively owned until
// committed.
type CompiledGraph struct {
	id         string
	blocks     []rpihw.ControlBlock
	data       []uint32
	loopTarget int
	duration   time.Duration
	passes     int

	committed bool
}

// ID returns the identity inherited from the source bitstream.
func (g *CompiledGraph) ID() string {
	return g.id
}

// Blocks exposes the control-block vector.
func (g *CompiledGraph) Blocks() []rpihw.ControlBlock {
	return g.blocks
}

// DataWords exposes the data vector. Index 0 is the sentinel slot.
func (g *CompiledGraph) DataWords() []uint32 {
	return g.data
}

// LoopTarget returns the block index the end sentinel loops back to.
func (g *CompiledGraph) LoopTarget() int {
	return g.loopTarget
}

// Duration returns the wall-clock length of one traversal.
func (g *CompiledGraph) Duration() time.Duration {
	return g.duration
}

// Passes returns how many traversal passes compilation took; more
// than the minimum means the loop had to be unrolled.
func (g *CompiledGraph) Passes() int {
	return g.passes
}
