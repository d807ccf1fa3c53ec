// Package waveform compiles DCC bitstreams into self-contained DMA
// control-block graphs and schedules them onto a channel.
package waveform

import "github.com/trackforge/dccwave/dcc"

// pwmOutputDelay is the number of DREQ cycles between a word being
// written to the PWM FIFO and the serializer emitting it. GPIO edges
// meant to coincide with a word must trail its FIFO write by this
// many data requests.
const pwmOutputDelay = 2

type delayedEvent struct {
	event     dcc.Event
	remaining int
}

// delayedEventQueue holds GPIO events pending for a number of DREQs.
// Every insertion uses the same delay constant, which keeps the
// entries sorted ascending by remaining count without a priority
// queue. Structural equality between queues is what lets the compiler
// detect a repeated unrolling state.
type delayedEventQueue struct {
	entries []delayedEvent
}

// add queues an event to fire pwmOutputDelay data requests from now.
func (q *delayedEventQueue) add(ev dcc.Event) {
	q.entries = append(q.entries, delayedEvent{event: ev, remaining: pwmOutputDelay})
}

// countdown removes and returns the events due on this data request
// and moves the rest one request closer. The due entries form a
// prefix because the list is sorted.
func (q *delayedEventQueue) countdown() []dcc.Event {
	var due []dcc.Event

	i := 0
	for ; i < len(q.entries) && q.entries[i].remaining == 1; i++ {
		due = append(due, q.entries[i].event)
	}
	q.entries = q.entries[i:]

	for i := range q.entries {
		q.entries[i].remaining--
	}

	return due
}

func (q *delayedEventQueue) pending() bool {
	return len(q.entries) > 0
}

func (q *delayedEventQueue) clone() *delayedEventQueue {
	c := &delayedEventQueue{}
	c.entries = append(c.entries, q.entries...)
	return c
}

// equal compares the ordered (event, remaining) sequences.
func (q *delayedEventQueue) equal(other *delayedEventQueue) bool {
	if len(q.entries) != len(other.entries) {
		return false
	}
	for i, e := range q.entries {
		if other.entries[i] != e {
			return false
		}
	}
	return true
}
