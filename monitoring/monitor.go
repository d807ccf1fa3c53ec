// Package monitoring exposes the driver's state over HTTP.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trackforge/dccwave/rpihw"
	"github.com/trackforge/dccwave/waveform"
)

// Monitor turns the driver into a small server so its state can be
// inspected while a waveform is on the wire.
type Monitor struct {
	portNumber int

	controller *waveform.QueueController
	watchdog   *rpihw.Watchdog
	dma        *rpihw.DMAChannel
	pwm        *rpihw.PWMSerializer
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port the monitor serves on. 0 picks a free
// one.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	m.portNumber = portNumber
	return m
}

// RegisterController attaches the queue controller whose graph state
// is reported.
func (m *Monitor) RegisterController(c *waveform.QueueController) {
	m.controller = c
}

// RegisterWatchdog attaches the watchdog whose fault count is
// reported.
func (m *Monitor) RegisterWatchdog(w *rpihw.Watchdog) {
	m.watchdog = w
}

// RegisterHardware attaches the peripherals whose registers are
// snapshotted.
func (m *Monitor) RegisterHardware(dma *rpihw.DMAChannel, pwm *rpihw.PWMSerializer) {
	m.dma = dma
	m.pwm = pwm
}

// StartServer starts serving in the background and returns the
// address it listens on.
func (m *Monitor) StartServer() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.handleStatus)
	r.HandleFunc("/api/hardware", m.handleHardware)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.portNumber))
	if err != nil {
		return "", err
	}

	go func() {
		_ = http.Serve(listener, r)
	}()

	return listener.Addr().String(), nil
}

type statusSnapshot struct {
	GraphID        string `json:"graph_id"`
	Blocks         int    `json:"blocks"`
	DataWords      int    `json:"data_words"`
	Passes         int    `json:"passes"`
	DurationUS     int64  `json:"duration_us"`
	Transmitting   bool   `json:"transmitting"`
	Repeating      bool   `json:"repeating"`
	WatchdogFaults uint64 `json:"watchdog_faults"`
	Stalled        bool   `json:"stalled"`
}

func (m *Monitor) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var s statusSnapshot

	if m.controller != nil {
		if g := m.controller.Current(); g != nil {
			s.GraphID = g.ID()
			s.Blocks = len(g.Blocks())
			s.DataWords = len(g.DataWords())
			s.Passes = g.Passes()
			s.DurationUS = g.Duration().Microseconds()
			s.Transmitting = g.IsTransmitting()
			s.Repeating = g.IsRepeating()
		}
	}
	if m.watchdog != nil {
		s.WatchdogFaults = m.watchdog.Faults()
		s.Stalled = m.watchdog.Stalled()
	}

	writeJSON(w, s)
}

type hardwareSnapshot struct {
	DMAActive       bool   `json:"dma_active"`
	DMAError        bool   `json:"dma_error"`
	DMAErrorFlags   uint32 `json:"dma_error_flags"`
	DMAControlBlock uint32 `json:"dma_control_block"`
	PWMStatus       uint32 `json:"pwm_status"`
}

func (m *Monitor) handleHardware(w http.ResponseWriter, _ *http.Request) {
	var s hardwareSnapshot

	if m.dma != nil {
		s.DMAActive = m.dma.Active()
		s.DMAError = m.dma.Error()
		s.DMAErrorFlags = m.dma.ErrorFlags()
		s.DMAControlBlock = m.dma.ControlBlockAddress()
	}
	if m.pwm != nil {
		s.PWMStatus = m.pwm.Status()
	}

	writeJSON(w, s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
