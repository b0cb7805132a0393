package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mathiasbredholt/GestureLooper/clock"
	"github.com/mathiasbredholt/GestureLooper/config"
	"github.com/mathiasbredholt/GestureLooper/debug"
	"github.com/mathiasbredholt/GestureLooper/graph"
	"github.com/mathiasbredholt/GestureLooper/looper"
	"github.com/mathiasbredholt/GestureLooper/midi"
	"github.com/mathiasbredholt/GestureLooper/tui"
)

func main() {
	headless := flag.Bool("headless", false, "run without the monitor UI")
	verbose := flag.Bool("debug", false, "write a debug log")
	cfgPath := flag.String("config", "", "config file (default ~/.config/gesturelooper/config.json)")
	flag.Parse()

	if *verbose {
		if err := debug.Enable(); err != nil {
			fmt.Printf("debug log: %v\n", err)
		} else {
			fmt.Printf("debug log at %s\n", debug.Path())
		}
	}

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.LoadFrom(*cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	g := graph.New()
	dev := graph.NewDevice(cfg.Device, g)

	// Peering
	var bridge *graph.Bridge
	if cfg.OSC.Listen != "" || len(cfg.OSC.Peers) > 0 {
		bridge, err = graph.NewBridge(g, graph.BridgeConfig{
			Device:   cfg.Device,
			Listen:   cfg.OSC.Listen,
			Peers:    cfg.OSC.Peers,
			Announce: time.Duration(cfg.OSC.Announce()) * time.Millisecond,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Beat source
	clk, clkClose, err := buildClock(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		printMIDIPorts()
		os.Exit(1)
	}

	// Tracks
	loops := make([]*looper.Loop, 0, len(cfg.Tracks))
	for _, tc := range cfg.Tracks {
		l, err := looper.NewLoop(tc.Name, dev, parseKind(tc.Kind), tc.Width)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if tc.Record != "" {
			l.MapRecord(tc.Record)
		}
		if tc.Length != "" {
			l.MapLength(tc.Length)
		}
		if tc.Modulation != "" {
			l.MapModulation(tc.Modulation)
		}
		if tc.Input != "" {
			l.MapInput(tc.Input)
		}
		if tc.Output != "" {
			l.MapOutput(tc.Output)
		}
		loops = append(loops, l)
	}

	// Hardware CC in drives the first track's input
	if cfg.MIDI.InputPort != "" {
		in := loops[0].InputSignal()
		stopCC, err := midi.ListenCC(cfg.MIDI.InputPort,
			uint8(cfg.MIDI.InputChannel), uint8(cfg.MIDI.InputCC),
			func(v float64) { in.Stage(v) })
		if err != nil {
			fmt.Printf("MIDI input: %v\n", err)
			printMIDIPorts()
		} else {
			defer stopCC()
		}
	}

	var ccOut *midi.CCOut
	if cfg.MIDI.OutputPort != "" {
		ccOut, err = midi.NewCCOut(cfg.MIDI.OutputPort,
			uint8(cfg.MIDI.OutputChannel), uint8(cfg.MIDI.OutputCC))
		if err != nil {
			fmt.Printf("MIDI output: %v\n", err)
			printMIDIPorts()
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go runHost(dev, loops, clk, ccOut, cfg.Interval(), stop, done)

	if *headless {
		fmt.Printf("gesturelooper  %d track(s), headless\n", len(loops))
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	} else {
		m := tui.NewModel(g, loops, clk)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	close(stop)
	<-done
	for _, l := range loops {
		l.Close()
	}
	if bridge != nil {
		bridge.Close()
	}
	if clkClose != nil {
		clkClose()
	}
	dev.Close()
	debug.Disable()
}

// runHost is the polling goroutine: it drains staged bus work and
// advances every track to the current beat position
func runHost(dev *graph.Device, loops []*looper.Loop, clk clock.Source,
	ccOut *midi.CCOut, intervalMS int, stop, done chan struct{}) {

	defer close(done)
	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			dev.Poll(0)
			beats := clk.Beats()
			for _, l := range loops {
				l.Update(beats)
			}
			if ccOut != nil {
				if err := ccOut.Send(loops[0].OutputSignal().Scalar()); err != nil {
					debug.Log("midi", "cc out: %v", err)
				}
			}
			debug.LogEvery(1000, "host", "beat %.2f", beats)
		}
	}
}

func buildClock(cfg *config.Config) (clock.Source, func(), error) {
	if cfg.Clock.Source == "midi" {
		mc, err := clock.NewMIDI(cfg.Clock.MIDIPort)
		if err != nil {
			return nil, nil, err
		}
		return mc, mc.Close, nil
	}
	tempo := cfg.Clock.Tempo
	if tempo == 0 {
		tempo = 120
	}
	return clock.NewInternal(tempo), nil, nil
}

func parseKind(s string) graph.Kind {
	switch s {
	case "int32":
		return graph.Int32
	case "float64":
		return graph.Float64
	}
	return graph.Float32
}

func printMIDIPorts() {
	ins, outs := midi.PortNames()
	fmt.Println("Available MIDI inputs:")
	for _, name := range ins {
		fmt.Printf("  %s\n", name)
	}
	fmt.Println("Available MIDI outputs:")
	for _, name := range outs {
		fmt.Printf("  %s\n", name)
	}
}
