package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/trackforge/dccwave/dcc"
	"github.com/trackforge/dccwave/monitoring"
	"github.com/trackforge/dccwave/recording"
	"github.com/trackforge/dccwave/rpihw"
	"github.com/trackforge/dccwave/waveform"
)

var rootCmd = &cobra.Command{
	Use:   "dccwaved",
	Short: "dccwaved drives a model railway's DCC signal from a Raspberry Pi.",
	Long: `dccwaved serializes DCC packets through the PWM peripheral, paced ` +
		`by DMA, with RailCom cutouts cut into the signal by GPIO. It keeps ` +
		`an idle waveform on the rails until told otherwise.`,
	RunE: run,
}

// Execute runs the daemon command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

var flags struct {
	channel         uint32
	railPin         uint32
	railComPin      uint32
	debugPin        uint32
	monitorPort     int
	historyPath     string
	cutout          bool
	address         uint16
	speed           uint8
	forward         bool
	refreshInterval time.Duration
}

func init() {
	// Optional per-installation overrides, loaded before the flag
	// defaults below read the environment.
	_ = godotenv.Load()

	f := rootCmd.Flags()
	f.Uint32Var(&flags.channel, "dma-channel", envUint32("DCCWAVE_DMA_CHANNEL", 14), "DMA channel to claim")
	f.Uint32Var(&flags.railPin, "rail-pin", envUint32("DCCWAVE_RAIL_PIN", 18), "GPIO pin carrying the PWM serializer output")
	f.Uint32Var(&flags.railComPin, "railcom-pin", envUint32("DCCWAVE_RAILCOM_PIN", 17), "GPIO pin gating the track driver for the cutout")
	f.Uint32Var(&flags.debugPin, "debug-pin", envUint32("DCCWAVE_DEBUG_PIN", 22), "GPIO pin toggled by debug markers")
	f.IntVar(&flags.monitorPort, "monitor-port", int(envUint32("DCCWAVE_MONITOR_PORT", 8190)), "status server port, 0 for a random one")
	f.StringVar(&flags.historyPath, "history", os.Getenv("DCCWAVE_HISTORY"), "record transmissions into this path plus .sqlite3, empty disables")
	f.BoolVar(&flags.cutout, "railcom", true, "open a RailCom cutout after every packet")
	f.Uint16Var(&flags.address, "address", 0, "send a speed command to this decoder instead of idling")
	f.Uint8Var(&flags.speed, "speed", 0, "128-step speed for --address")
	f.BoolVar(&flags.forward, "forward", true, "direction for --address")
	f.DurationVar(&flags.refreshInterval, "refresh-interval",
		envDuration("DCCWAVE_REFRESH", 30*time.Second),
		"how often to recompile and swap in a fresh graph")
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Panicf("%s=%q is not a duration", name, v)
	}
	return d
}

func envUint32(name string, fallback uint32) uint32 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Panicf("%s=%q is not a number", name, v)
	}
	return uint32(n)
}

func run(_ *cobra.Command, _ []string) error {
	// Optional per-installation overrides.
	_ = godotenv.Load()

	gpio, err := rpihw.OpenGPIOBank()
	if err != nil {
		return err
	}
	atexit.Register(func() { gpio.Close() })

	// Track driver on, debug low, serializer output on the rail pin.
	gpio.SetFunction(flags.railComPin, rpihw.PinOutput)
	gpio.Set(flags.railComPin)
	gpio.SetFunction(flags.debugPin, rpihw.PinOutput)
	gpio.Clear(flags.debugPin)
	gpio.SetFunction(flags.railPin, rpihw.PinAlt5)

	pwm, err := rpihw.OpenPWMSerializer()
	if err != nil {
		return err
	}
	atexit.Register(func() { pwm.Close() })
	if osc := envUint32("DCCWAVE_OSC_HZ", 0); osc != 0 {
		pwm.SetOscillator(uint64(osc))
	}
	if err := pwm.Configure(dcc.BitClock); err != nil {
		return err
	}

	dma, err := rpihw.OpenDMAChannel(flags.channel)
	if err != nil {
		return err
	}
	atexit.Register(func() {
		dma.Abort()
		dma.Close()
	})

	mailbox, err := rpihw.NewMailboxAllocator()
	if err != nil {
		return err
	}

	encoder := dcc.MakeEncoderBuilder().
		WithRailComCutout(flags.cutout).
		Build()
	compiler := waveform.MakeCompilerBuilder().
		WithRailComPin(flags.railComPin).
		WithDebugPin(flags.debugPin).
		Build()
	committer := waveform.NewCommitter(uncachedAllocator{mailbox})
	controller := waveform.NewQueueController(dma)

	var history *recording.TransmissionLog
	if flags.historyPath != "" {
		history, err = recording.Open(flags.historyPath)
		if err != nil {
			return err
		}
	}

	packets := []dcc.Packet{dcc.Idle()}
	if flags.address != 0 {
		packets = []dcc.Packet{
			dcc.Speed128(dcc.Address(flags.address), flags.speed, flags.forward),
			dcc.Idle(),
		}
	}

	// send compiles the packets into a fresh graph and swaps it onto
	// the wire.
	send := func(preroll []dcc.Packet) (*waveform.CompiledGraph, error) {
		graph, err := compiler.Compile(encoder.EncodeWithPreroll(preroll, packets))
		if err != nil {
			return nil, fmt.Errorf("compiling bitstream: %w", err)
		}

		committed, err := committer.Commit(graph)
		if err != nil {
			return nil, err
		}
		if err := controller.Enqueue(committed); err != nil {
			return nil, err
		}

		if history != nil {
			history.Record(graph, packets)
		}
		return graph, nil
	}

	graph, err := send([]dcc.Packet{dcc.Reset(), dcc.Reset()})
	if err != nil {
		return err
	}
	log.Printf("graph %s on the wire: %d blocks, %d words, %v per cycle",
		graph.ID(), len(graph.Blocks()), len(graph.DataWords()), graph.Duration())

	// Keep swapping in fresh graphs so decoders that missed a packet
	// see it again, and so the hand-off path stays exercised.
	refresh := time.NewTicker(flags.refreshInterval)
	atexit.Register(refresh.Stop)
	go func() {
		for range refresh.C {
			if _, err := send(nil); err != nil {
				log.Printf("refresh failed: %v", err)
			}
		}
	}()

	watchdog := rpihw.NewWatchdog(dma, pwm, graph.Duration())
	watchdog.Start()
	atexit.Register(watchdog.Stop)

	monitor := monitoring.NewMonitor().WithPortNumber(flags.monitorPort)
	monitor.RegisterController(controller)
	monitor.RegisterWatchdog(watchdog)
	monitor.RegisterHardware(dma, pwm)
	addr, err := monitor.StartServer()
	if err != nil {
		return err
	}
	log.Printf("monitor on %s", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return nil
}

// uncachedAllocator adapts the mailbox allocator to the committer's
// collaborator interface.
type uncachedAllocator struct {
	mailbox *rpihw.MailboxAllocator
}

func (a uncachedAllocator) AllocateUncached(minSize uint32) (waveform.Region, error) {
	region, err := a.mailbox.AllocateUncached(minSize)
	if err != nil {
		return nil, err
	}
	return region, nil
}
