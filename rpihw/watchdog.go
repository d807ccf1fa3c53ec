package rpihw

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// PWM status bits the watchdog treats as faults.
const (
	pwmStaWriteErr = 1 << 2
	pwmStaRapErr   = 1 << 3
	pwmStaGapo1    = 1 << 4
	pwmStaBerr     = 1 << 8
)

const pwmStaFaultMask = pwmStaWriteErr | pwmStaRapErr | pwmStaGapo1 | pwmStaBerr

// A Watchdog polls the DMA channel and PWM status for latched errors
// while a graph is on the wire, clears them and keeps count. A stuck
// channel means the waveform has died; the daemon decides what to do
// with that.
type Watchdog struct {
	dma      *DMAChannel
	pwm      *PWMSerializer
	interval time.Duration

	faults  uint64
	stalled atomic.Bool

	stop chan struct{}
	done sync.WaitGroup
}

// NewWatchdog creates a watchdog polling at the given interval.
func NewWatchdog(dma *DMAChannel, pwm *PWMSerializer, interval time.Duration) *Watchdog {
	return &Watchdog{
		dma:      dma,
		pwm:      pwm,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins polling until Stop is called.
func (w *Watchdog) Start() {
	w.done.Add(1)
	go func() {
		defer w.done.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.poll()
			case <-w.stop:
				return
			}
		}
	}()
}

// Stop halts polling and waits for the poller to exit.
func (w *Watchdog) Stop() {
	close(w.stop)
	w.done.Wait()
}

// Faults returns the number of fault conditions observed so far.
func (w *Watchdog) Faults() uint64 {
	return atomic.LoadUint64(&w.faults)
}

// Stalled reports whether the channel was found inactive on the last
// poll.
func (w *Watchdog) Stalled() bool {
	return w.stalled.Load()
}

func (w *Watchdog) poll() {
	if w.dma.Error() {
		atomic.AddUint64(&w.faults, 1)
		log.Printf("DMA error, debug flags %03b; clearing", w.dma.ErrorFlags())
		w.dma.ClearErrors()
	}

	if status := w.pwm.Status(); status&pwmStaFaultMask != 0 {
		atomic.AddUint64(&w.faults, 1)
		log.Printf("PWM fault, status %08x; clearing", status)
		w.pwm.ClearStatus()
	}

	w.stalled.Store(!w.dma.Active())
}
