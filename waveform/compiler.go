package waveform

import (
	"errors"

	"github.com/trackforge/dccwave/dcc"
)

// ErrBitstreamContainsNoData reports a bitstream whose initial or
// repeating traversal serializes nothing. The caller can recover by
// prepending idle data bits.
var ErrBitstreamContainsNoData = errors.New("bitstream contains no data")

// CompilerBuilder configures and creates Compilers.
type CompilerBuilder struct {
	railComPin uint32
	debugPin   uint32
}

// MakeCompilerBuilder returns a builder with the default pin
// assignment.
func MakeCompilerBuilder() CompilerBuilder {
	return CompilerBuilder{
		railComPin: 17,
		debugPin:   22,
	}
}

// WithRailComPin sets the GPIO pin gating the track driver during the
// cutout.
func (b CompilerBuilder) WithRailComPin(pin uint32) CompilerBuilder {
	b.railComPin = pin
	return b
}

// WithDebugPin sets the GPIO pin toggled by debug markers.
func (b CompilerBuilder) WithDebugPin(pin uint32) CompilerBuilder {
	b.debugPin = pin
	return b
}

// Build creates the Compiler.
func (b CompilerBuilder) Build() *Compiler {
	return &Compiler{
		railComPin: b.railComPin,
		debugPin:   b.debugPin,
	}
}

// A Compiler translates bitstreams into control-block graphs that a
// DMA channel can execute indefinitely.
type Compiler struct {
	railComPin uint32
	debugPin   uint32
}

// Compile produces a graph whose execution repeats the bitstream's
// prefix once and its suffix forever. When the suffix re-enters with
// GPIO events still pending that the first traversal did not carry,
// the suffix is unrolled until the pending state matches one seen
// earlier.
func (c *Compiler) Compile(bs *dcc.Bitstream) (*CompiledGraph, error) {
	t := &traversal{
		events:         bs.Events,
		builder:        newControlBlockBuilder(c.railComPin, c.debugPin),
		delayed:        &delayedEventQueue{},
		blockForIndex:  map[int]int{},
		eventsForIndex: map[int]*delayedEventQueue{},
	}

	if err := t.run(); err != nil {
		return nil, err
	}

	return &CompiledGraph{
		id:         bs.ID,
		blocks:     t.builder.blocks,
		data:       t.builder.data,
		loopTarget: t.loopTarget,
		duration:   bs.Duration,
		passes:     t.passes,
	}, nil
}

// traversal carries the compilation state across unrolling passes.
type traversal struct {
	events  []dcc.Event
	builder *controlBlockBuilder

	delayed      *delayedEventQueue
	programmed   uint32 // range register value as the hardware sees it, 0 = unknown
	pendingWords []uint32
	pendingStart int

	blockForIndex  map[int]int
	eventsForIndex map[int]*delayedEventQueue

	restartFrom int
	loopTarget  int
	closed      bool
	passes      int
}

func (t *traversal) run() error {
	t.builder.startSentinel()

	for !t.closed {
		t.passes++
		sawData := false

		for i := t.restartFrom; i < len(t.events) && !t.closed; i++ {
			switch ev := t.events[i].(type) {
			case dcc.Data:
				sawData = true
				t.data(i, ev)
			case dcc.LoopStart:
				t.loopStart(i)
			default:
				t.delayed.add(t.events[i])
			}
		}

		if !t.closed && !sawData {
			return ErrBitstreamContainsNoData
		}
	}

	if len(t.pendingWords) > 0 {
		t.builder.dataBurst(t.pendingWords)
		t.pendingWords = nil
	}
	t.builder.endSentinel(t.loopTarget)

	return nil
}

// data handles one payload word: it first checks whether the pending
// GPIO state at this position has been seen here before, which closes
// the loop, and otherwise accumulates the word and decides whether
// the accumulation must be flushed into blocks.
func (t *traversal) data(i int, ev dcc.Data) {
	if snapshot, ok := t.eventsForIndex[i]; ok && snapshot.equal(t.delayed) {
		if block, ok := t.blockForIndex[i]; ok {
			t.loopTarget = block
			t.closed = true
			return
		}
		if i == t.pendingStart && len(t.pendingWords) > 0 {
			// The accumulated words wrap back onto themselves with no
			// block boundary in between.
			t.loopTarget = t.builder.nextIndex()
			t.builder.dataBurst(t.pendingWords)
			t.pendingWords = nil
			t.closed = true
			return
		}
	}

	if len(t.pendingWords) == 0 {
		t.pendingStart = i
		t.eventsForIndex[i] = t.delayed.clone()
	}
	t.pendingWords = append(t.pendingWords, ev.Word)

	due := t.delayed.countdown()

	if ev.Size == t.programmed && len(due) == 0 {
		return
	}

	t.blockForIndex[t.pendingStart] = t.builder.nextIndex()
	t.builder.dataBurst(t.pendingWords)
	t.pendingWords = nil

	if ev.Size != t.programmed {
		t.builder.rangeWrite(ev.Size)
		t.programmed = ev.Size
	}
	if len(due) > 0 {
		t.builder.gpioEdges(due)
	}
}

// loopStart advances the restart point and forces a block boundary,
// so later passes re-enter on a clean edge and unroll less.
func (t *traversal) loopStart(i int) {
	t.restartFrom = i + 1

	if len(t.pendingWords) > 0 {
		// Never recorded in blockForIndex: no pass can loop back to a
		// position before the restart point.
		t.builder.dataBurst(t.pendingWords)
		t.pendingWords = nil
	}
}
