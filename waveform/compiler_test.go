package waveform

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trackforge/dccwave/dcc"
	"github.com/trackforge/dccwave/rpihw"
)

const (
	testRailComPin = 17
	testDebugPin   = 22
)

func compileEvents(events ...dcc.Event) (*CompiledGraph, error) {
	c := MakeCompilerBuilder().
		WithRailComPin(testRailComPin).
		WithDebugPin(testDebugPin).
		Build()
	return c.Compile(dcc.NewBitstream(events, 100*time.Microsecond))
}

func mustCompile(events ...dcc.Event) *CompiledGraph {
	g, err := compileEvents(events...)
	Expect(err).ToNot(HaveOccurred())
	return g
}

func expectStartSentinel(g *CompiledGraph) {
	first := g.Blocks()[0]
	Expect(first.TransferInformation).To(Equal(uint32(rpihw.TIWaitResp)))
	Expect(first.DestinationAddress).To(Equal(uint32(0)))
	Expect(first.Reserved[0]).To(Equal(uint32(1)))
	Expect(first.SourceAddress).
		To(Equal(uint32(rpihw.ControlBlockScratchOffset)))
	Expect(first.NextControlBlockAddress).
		To(Equal(uint32(rpihw.ControlBlockBytes)))
}

func expectEndSentinel(g *CompiledGraph) {
	last := g.Blocks()[len(g.Blocks())-1]
	Expect(last.TransferInformation).To(Equal(uint32(rpihw.TIWaitResp)))
	Expect(last.DestinationAddress).To(Equal(uint32(0)))
	Expect(last.Reserved[0]).To(Equal(^uint32(0)))
	Expect(last.NextControlBlockAddress).
		To(Equal(uint32(g.LoopTarget() * rpihw.ControlBlockBytes)))
}

func expectDataBurst(b rpihw.ControlBlock, srcWord int, words int) {
	Expect(b.TransferInformation).To(Equal(uint32(rpihw.TINoWideBursts |
		rpihw.TIPermap(rpihw.DreqPWM) |
		rpihw.TISrcInc |
		rpihw.TIDestDreq |
		rpihw.TIWaitResp)))
	Expect(b.SourceAddress).To(Equal(uint32(4 * srcWord)))
	Expect(b.DestinationAddress).To(Equal(uint32(rpihw.PWMFIFOBusAddress)))
	Expect(b.TransferLength).To(Equal(uint32(4 * words)))
}

func expectRangeWrite(b rpihw.ControlBlock, srcWord int) {
	Expect(b.DestinationAddress).To(Equal(uint32(rpihw.PWMRangeBusAddress)))
	Expect(b.SourceAddress).To(Equal(uint32(4 * srcWord)))
	Expect(b.TransferLength).To(Equal(uint32(4)))
}

func expectGPIOEdges(b rpihw.ControlBlock, srcWord int) {
	Expect(b.TransferInformation & rpihw.TITDMode).ToNot(BeZero())
	Expect(b.SourceAddress).To(Equal(uint32(4 * srcWord)))
	Expect(b.DestinationAddress).To(Equal(uint32(rpihw.GPIOSetBusAddress)))
	Expect(b.TransferLength).To(Equal(rpihw.TDTransferLength(2, 8)))
	Expect(b.TDModeStride).To(Equal(rpihw.TDStride(4, 0)))
}

var _ = Describe("Compiler", func() {
	It("should compile a single word", func() {
		g := mustCompile(dcc.Data{Word: 0xcafe0000, Size: 32})

		Expect(g.Blocks()).To(HaveLen(4))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(1))
		Expect(g.DataWords()).To(Equal([]uint32{0, 0xcafe0000, 32}))
	})

	It("should keep the bitstream duration", func() {
		g := mustCompile(dcc.Data{Word: 1, Size: 32})
		Expect(g.Duration()).To(Equal(100 * time.Microsecond))
	})

	It("should split equal-sized words around the first range write", func() {
		g := mustCompile(
			dcc.Data{Word: 0x11111111, Size: 32},
			dcc.Data{Word: 0x22222222, Size: 32},
		)

		// The first word flushes alone because the range register is
		// still unprogrammed; the second accumulates and flushes as
		// the residue after the loop closes on the first burst.
		Expect(g.Blocks()).To(HaveLen(5))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectDataBurst(g.Blocks()[3], 3, 1)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(1))
		Expect(g.DataWords()).To(Equal([]uint32{0, 0x11111111, 32, 0x22222222}))
	})

	It("should emit a range write whenever the word size changes", func() {
		g := mustCompile(
			dcc.Data{Word: 0x11111111, Size: 32},
			dcc.Data{Word: 0x22222200, Size: 24},
		)

		Expect(g.Blocks()).To(HaveLen(6))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectDataBurst(g.Blocks()[3], 3, 1)
		expectRangeWrite(g.Blocks()[4], 4)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(1))
		Expect(g.DataWords()).
			To(Equal([]uint32{0, 0x11111111, 32, 0x22222200, 24}))
	})

	It("should close the loop at the block after LoopStart", func() {
		g := mustCompile(
			dcc.Data{Word: 0x11111111, Size: 32},
			dcc.LoopStart{},
			dcc.Data{Word: 0x22222222, Size: 32},
		)

		Expect(g.Blocks()).To(HaveLen(5))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectDataBurst(g.Blocks()[3], 3, 1)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(3))
		Expect(g.Passes()).To(Equal(2))
	})

	It("should force a block boundary at LoopStart", func() {
		g := mustCompile(
			dcc.Data{Word: 1, Size: 32},
			dcc.Data{Word: 2, Size: 32},
			dcc.LoopStart{},
			dcc.Data{Word: 3, Size: 32},
		)

		// Words 1 and 2 may not share a burst with word 3: the loop
		// re-enters after them.
		Expect(g.Blocks()).To(HaveLen(6))
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectDataBurst(g.Blocks()[3], 3, 1)
		expectDataBurst(g.Blocks()[4], 4, 1)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(4))
		Expect(g.DataWords()).To(Equal([]uint32{0, 1, 32, 2, 3}))
	})

	It("should unroll until a pending cutout edge lands", func() {
		g := mustCompile(
			dcc.Data{Word: 0x11111111, Size: 32},
			dcc.RailComCutoutStart{},
			dcc.Data{Word: 0x22222222, Size: 32},
		)

		Expect(g.Blocks()).To(HaveLen(6))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		// Second pass coalesces the suffix word with the wrapped-around
		// first word, and the edge queued on pass one becomes due.
		expectDataBurst(g.Blocks()[3], 3, 2)
		expectGPIOEdges(g.Blocks()[4], 5)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(3))
		Expect(g.Passes()).To(Equal(2))

		// The edge drives the cutout pin low: clear mask only.
		Expect(g.DataWords()[5:9]).To(Equal([]uint32{
			0, 0, 1 << testRailComPin, 0,
		}))
	})

	It("should map each position to one block when edges are spaced out", func() {
		g := mustCompile(
			dcc.Data{Word: 1, Size: 32},
			dcc.RailComCutoutStart{},
			dcc.Data{Word: 2, Size: 32},
			dcc.Data{Word: 3, Size: 32},
			dcc.Data{Word: 4, Size: 32},
		)

		Expect(g.Blocks()).To(HaveLen(7))
		expectStartSentinel(g)
		expectDataBurst(g.Blocks()[1], 1, 1)
		expectRangeWrite(g.Blocks()[2], 2)
		expectDataBurst(g.Blocks()[3], 3, 2)
		expectGPIOEdges(g.Blocks()[4], 5)
		expectDataBurst(g.Blocks()[5], 9, 1)
		expectEndSentinel(g)
		Expect(g.LoopTarget()).To(Equal(1))
		Expect(g.Passes()).To(Equal(2))
	})

	It("should keep the graph strongly connected from the start", func() {
		g := mustCompile(
			dcc.Data{Word: 1, Size: 32},
			dcc.RailComCutoutStart{},
			dcc.Data{Word: 2, Size: 32},
			dcc.RailComCutoutEnd{},
			dcc.Data{Word: 3, Size: 32},
			dcc.Data{Word: 4, Size: 32},
		)

		blocks := g.Blocks()
		visited := make([]bool, len(blocks))
		for i := 0; !visited[i]; {
			visited[i] = true
			i = int(blocks[i].NextControlBlockAddress) / rpihw.ControlBlockBytes
			Expect(i).To(BeNumerically("<", len(blocks)))
		}

		// Every block is on the path and the loop target is among the
		// revisited ones.
		for i, v := range visited {
			Expect(v).To(BeTrue(), "block %d unreachable", i)
		}
		Expect(visited[g.LoopTarget()]).To(BeTrue())
	})

	It("should reject an empty bitstream", func() {
		_, err := compileEvents()
		Expect(err).To(MatchError(ErrBitstreamContainsNoData))
	})

	It("should reject a bitstream with only edges", func() {
		_, err := compileEvents(dcc.DebugStart{}, dcc.DebugEnd{})
		Expect(err).To(MatchError(ErrBitstreamContainsNoData))
	})

	It("should reject a repeating section with no data", func() {
		_, err := compileEvents(
			dcc.Data{Word: 1, Size: 32},
			dcc.LoopStart{},
			dcc.DebugStart{},
		)
		Expect(err).To(MatchError(ErrBitstreamContainsNoData))
	})
})
