package main

import (
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/mathiasbredholt/GestureLooper/graph"
)

// osctest is a minimal graph peer for exercising a looper host over
// OSC: it announces a signal of its own and can follow the host's bus.

const (
	defaultPeer   = "127.0.0.1:9000"
	defaultListen = "127.0.0.1:9001"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "signal":
		holdSignal()
	case "ramp":
		rampSignal()
	case "listen":
		listen()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("OSC Graph Peer")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  signal <name> <value> [peer]  - announce a signal holding a fixed value")
	fmt.Println("  ramp <name> <seconds> [peer]  - announce a signal ramping 0 to 1")
	fmt.Println("  listen [peer]                 - mirror the peer's bus and print it")
	fmt.Println("")
	fmt.Printf("peer defaults to %s; this process receives on %s.\n", defaultPeer, defaultListen)
	fmt.Println("For listen, add this address to the host's osc.peers.")
}

func peerArg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return defaultPeer
}

func setup(peer string) (*graph.Graph, *graph.Device) {
	g := graph.New()
	dev := graph.NewDevice("osctest", g)
	_, err := graph.NewBridge(g, graph.BridgeConfig{
		Device: "osctest",
		Listen: defaultListen,
		Peers:  []string{peer},
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return g, dev
}

func holdSignal() {
	if len(os.Args) < 4 {
		usage()
		return
	}
	name := os.Args[2]
	value, err := strconv.ParseFloat(os.Args[3], 64)
	if err != nil {
		fmt.Printf("Error: bad value %q\n", os.Args[3])
		return
	}

	_, dev := setup(peerArg(4))
	sig, err := dev.AddSignal(graph.SignalConfig{
		Name: name, Dir: graph.Publish, Kind: graph.Float32, Min: 0, Max: 1,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	sig.SetValue(value)

	fmt.Printf("Announcing %s = %.3f to %s (ctrl+c to stop)\n", name, value, peerArg(4))
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	for {
		select {
		case <-interrupt:
			return
		default:
			dev.Poll(100 * time.Millisecond)
		}
	}
}

func rampSignal() {
	if len(os.Args) < 4 {
		usage()
		return
	}
	name := os.Args[2]
	seconds, err := strconv.ParseFloat(os.Args[3], 64)
	if err != nil || seconds <= 0 {
		fmt.Printf("Error: bad period %q\n", os.Args[3])
		return
	}

	_, dev := setup(peerArg(4))
	sig, err := dev.AddSignal(graph.SignalConfig{
		Name: name, Dir: graph.Publish, Kind: graph.Float32, Min: 0, Max: 1,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Ramping %s over %.1fs to %s (ctrl+c to stop)\n", name, seconds, peerArg(4))
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	start := time.Now()
	for {
		select {
		case <-interrupt:
			return
		default:
			phase := time.Since(start).Seconds() / seconds
			sig.SetValue(phase - math.Floor(phase))
			dev.Poll(20 * time.Millisecond)
		}
	}
}

func listen() {
	g, dev := setup(peerArg(2))
	g.Observe(func(e graph.Event) {
		switch e.Kind {
		case graph.SignalAdded:
			if e.Signal.Remote() {
				fmt.Printf("+ %s (%s, %s)\n", e.Signal.Name(), e.Signal.Dir(), e.Signal.Kind())
			}
		case graph.SignalRemoved:
			if e.Signal.Remote() {
				fmt.Printf("- %s\n", e.Signal.Name())
			}
		}
	})

	fmt.Printf("Listening on %s. Ctrl+C to exit.\n", defaultListen)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	dump := time.NewTicker(time.Second)
	defer dump.Stop()
	for {
		select {
		case <-interrupt:
			return
		case <-dump.C:
			for _, s := range g.Signals() {
				if !s.Remote() {
					continue
				}
				if v := s.Value(); v != nil {
					fmt.Printf("  %-28s %v\n", s.Name(), v)
				}
			}
		default:
			dev.Poll(50 * time.Millisecond)
		}
	}
}
