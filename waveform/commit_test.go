package waveform

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trackforge/dccwave/dcc"
	"github.com/trackforge/dccwave/rpihw"
)

// fakeRegion stands in for a mailbox allocation. Reads of the
// sentinel slot can be scripted to mimic the engine's progress
// stamps.
type fakeRegion struct {
	bus   uint32
	words map[uint32]uint32

	sentinelSlot  uint32
	sentinelReads []uint32

	freed bool
}

func newFakeRegion(bus uint32) *fakeRegion {
	return &fakeRegion{bus: bus, words: map[uint32]uint32{}}
}

func (r *fakeRegion) BusAddress() uint32 {
	return r.bus
}

func (r *fakeRegion) Write32(offset, value uint32) {
	r.words[offset] = value
}

func (r *fakeRegion) Read32(offset uint32) uint32 {
	if offset == r.sentinelSlot && len(r.sentinelReads) > 0 {
		v := r.sentinelReads[0]
		if len(r.sentinelReads) > 1 {
			r.sentinelReads = r.sentinelReads[1:]
		}
		return v
	}
	return r.words[offset]
}

func (r *fakeRegion) Free() error {
	r.freed = true
	return nil
}

// fakeAllocator hands out prepared regions in order.
type fakeAllocator struct {
	regions []*fakeRegion
	sizes   []uint32
	err     error
}

func (a *fakeAllocator) AllocateUncached(minSize uint32) (Region, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.sizes = append(a.sizes, minSize)
	r := a.regions[0]
	a.regions = a.regions[1:]
	return r, nil
}

var _ = Describe("Committer", func() {
	const bus = 0x40000000

	var (
		graph     *CompiledGraph
		region    *fakeRegion
		allocator *fakeAllocator
		committer *Committer
	)

	BeforeEach(func() {
		graph = mustCompile(dcc.Data{Word: 0xcafe0000, Size: 32})
		region = newFakeRegion(bus)
		allocator = &fakeAllocator{regions: []*fakeRegion{region}}
		committer = NewCommitter(allocator)
	})

	It("should size the allocation for blocks plus data", func() {
		_, err := committer.Commit(graph)
		Expect(err).ToNot(HaveOccurred())

		// 4 blocks of 32 bytes, 3 data words.
		Expect(allocator.sizes).To(Equal([]uint32{4*32 + 3*4}))
	})

	It("should relocate every internal offset into the region", func() {
		committed, err := committer.Commit(graph)
		Expect(err).ToNot(HaveOccurred())
		Expect(committed.BusAddress()).To(Equal(uint32(bus)))

		const dataBase = bus + 4*32

		// Start sentinel: literal out of its own scratch word into
		// the sentinel slot.
		Expect(region.words[4]).To(Equal(uint32(bus + 24)))
		Expect(region.words[8]).To(Equal(uint32(dataBase)))
		Expect(region.words[20]).To(Equal(uint32(bus + 32)))
		Expect(region.words[24]).To(Equal(uint32(1)))

		// Data burst: source in the data vector, destination left at
		// the FIFO register.
		Expect(region.words[32+4]).To(Equal(uint32(dataBase + 4)))
		Expect(region.words[32+8]).To(Equal(uint32(rpihw.PWMFIFOBusAddress)))

		// End sentinel loops back into the block vector.
		Expect(region.words[3*32+20]).To(Equal(uint32(bus + 32)))
		Expect(region.words[3*32+24]).To(Equal(^uint32(0)))

		// Data vector copied behind the blocks.
		Expect(region.words[4*32]).To(Equal(uint32(0)))
		Expect(region.words[4*32+4]).To(Equal(uint32(0xcafe0000)))
		Expect(region.words[4*32+8]).To(Equal(uint32(32)))
	})

	It("should leave no relocated address outside region or peripherals", func() {
		g := mustCompile(
			dcc.Data{Word: 1, Size: 32},
			dcc.RailComCutoutStart{},
			dcc.Data{Word: 2, Size: 32},
		)
		r := newFakeRegion(bus)
		a := &fakeAllocator{regions: []*fakeRegion{r}}

		_, err := NewCommitter(a).Commit(g)
		Expect(err).ToNot(HaveOccurred())

		end := bus + a.sizes[0]
		for i := range g.Blocks() {
			base := uint32(i * rpihw.ControlBlockBytes)
			for _, offset := range []uint32{4, 8} {
				addr := r.words[base+offset]
				if addr >= rpihw.PeripheralBusBase {
					continue
				}
				Expect(addr).To(BeNumerically(">=", bus))
				Expect(addr).To(BeNumerically("<", end))
			}
			next := r.words[base+rpihw.ControlBlockNextOffset]
			Expect(next).To(BeNumerically(">=", bus))
			Expect(next).To(BeNumerically("<", end))
		}
	})

	It("should propagate allocation failures", func() {
		boom := errors.New("mailbox exhausted")
		_, err := NewCommitter(&fakeAllocator{err: boom}).Commit(graph)
		Expect(err).To(MatchError(boom))
	})

	It("should panic on a second commit", func() {
		_, err := committer.Commit(graph)
		Expect(err).ToNot(HaveOccurred())

		Expect(func() {
			committer.Commit(graph)
		}).To(Panic())
	})

	It("should read the engine's progress stamps from the slot", func() {
		committed, err := committer.Commit(graph)
		Expect(err).ToNot(HaveOccurred())

		slot := uint32(len(graph.Blocks()) * rpihw.ControlBlockBytes)

		Expect(committed.IsTransmitting()).To(BeFalse())
		Expect(committed.IsRepeating()).To(BeFalse())

		region.words[slot] = 1
		Expect(committed.IsTransmitting()).To(BeTrue())
		Expect(committed.IsRepeating()).To(BeFalse())

		region.words[slot] = ^uint32(0)
		Expect(committed.IsTransmitting()).To(BeTrue())
		Expect(committed.IsRepeating()).To(BeTrue())
	})
})
