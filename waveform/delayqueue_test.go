package waveform

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trackforge/dccwave/dcc"
)

var _ = Describe("DelayedEventQueue", func() {
	var q *delayedEventQueue

	BeforeEach(func() {
		q = &delayedEventQueue{}
	})

	It("should hold nothing when fresh", func() {
		Expect(q.pending()).To(BeFalse())
		Expect(q.countdown()).To(BeEmpty())
	})

	It("should release an event after the output delay", func() {
		q.add(dcc.RailComCutoutStart{})

		Expect(q.countdown()).To(BeEmpty())
		Expect(q.countdown()).To(Equal([]dcc.Event{dcc.RailComCutoutStart{}}))
		Expect(q.pending()).To(BeFalse())
	})

	It("should keep due events in insertion order", func() {
		q.add(dcc.RailComCutoutStart{})
		q.add(dcc.DebugStart{})

		Expect(q.countdown()).To(BeEmpty())
		Expect(q.countdown()).To(Equal([]dcc.Event{
			dcc.RailComCutoutStart{},
			dcc.DebugStart{},
		}))
	})

	It("should release only the due prefix", func() {
		q.add(dcc.RailComCutoutStart{})
		Expect(q.countdown()).To(BeEmpty())

		q.add(dcc.RailComCutoutEnd{})

		Expect(q.countdown()).To(Equal([]dcc.Event{dcc.RailComCutoutStart{}}))
		Expect(q.countdown()).To(Equal([]dcc.Event{dcc.RailComCutoutEnd{}}))
	})

	It("should compare structurally", func() {
		other := &delayedEventQueue{}
		Expect(q.equal(other)).To(BeTrue())

		q.add(dcc.DebugStart{})
		Expect(q.equal(other)).To(BeFalse())

		other.add(dcc.DebugStart{})
		Expect(q.equal(other)).To(BeTrue())

		// Same events, different remaining counts.
		q.countdown()
		Expect(q.equal(other)).To(BeFalse())
	})

	It("should clone independently", func() {
		q.add(dcc.DebugEnd{})
		c := q.clone()

		Expect(c.equal(q)).To(BeTrue())

		q.countdown()
		Expect(c.equal(q)).To(BeFalse())
		Expect(c.pending()).To(BeTrue())
	})
})
