package waveform

// A Channel is the DMA channel a graph executes on.
type Channel interface {
	// Start points the channel at a control-block address and
	// activates it.
	Start(controlBlockAddress uint32) error
}

// A QueueController owns the graph currently on the wire and swaps in
// committed successors without disturbing the output.
type QueueController struct {
	channel Channel
	current *CommittedGraph
}

// NewQueueController creates a controller for the given channel.
func NewQueueController(channel Channel) *QueueController {
	return &QueueController{channel: channel}
}

// Current returns the graph on the wire, nil before the first
// enqueue.
func (q *QueueController) Current() *CommittedGraph {
	return q.current
}

// Enqueue puts a committed graph on the wire. The first graph starts
// the channel; later graphs are chained in by rewriting the retiring
// graph's end sentinel, which the engine follows on its next loop.
// Enqueue returns once the new graph has completed a full traversal
// and is safely looping. The waits are microseconds while the engine
// is running, so spinning beats yielding.
func (q *QueueController) Enqueue(g *CommittedGraph) error {
	if q.current == nil {
		if err := q.channel.Start(g.BusAddress()); err != nil {
			return err
		}
	} else {
		q.current.setNext(g.BusAddress())
	}

	for !g.IsTransmitting() {
	}

	// The engine never revisits the retired graph once the new one is
	// transmitting.
	var releaseErr error
	if q.current != nil {
		releaseErr = q.current.release()
	}
	q.current = g

	for !g.IsRepeating() {
	}

	return releaseErr
}
