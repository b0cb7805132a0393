package graph

import (
	"fmt"
	"time"
)

// Device owns a group of signals on a graph. Tracks are built against a
// device; closing it retracts everything it added.
type Device struct {
	graph   *Graph
	name    string
	signals []*Signal
	closed  bool
}

// NewDevice registers a named device on g
func NewDevice(name string, g *Graph) *Device {
	d := &Device{graph: g, name: name}
	g.mu.Lock()
	g.devices = append(g.devices, d)
	g.mu.Unlock()
	return d
}

func (d *Device) Name() string  { return d.name }
func (d *Device) Graph() *Graph { return d.graph }

// AddSignal creates a signal owned by this device. Signal names must be
// unique within the device.
func (d *Device) AddSignal(cfg SignalConfig) (*Signal, error) {
	g := d.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("device %s is closed", d.name)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("signal needs a name")
	}
	for _, s := range d.signals {
		if s.name == cfg.Name {
			return nil, fmt.Errorf("signal %s already exists on %s", cfg.Name, d.name)
		}
	}

	width := cfg.Width
	if width < 1 {
		width = 1
	}
	s := &Signal{
		graph: g,
		dev:   d,
		name:  cfg.Name,
		dir:   cfg.Dir,
		kind:  cfg.Kind,
		width: width,
		min:   cfg.Min,
		max:   cfg.Max,
		unit:  cfg.Unit,
		value: make([]float64, width),
	}
	d.signals = append(d.signals, s)
	g.addSignalLocked(s)
	return s, nil
}

// RemoveSignal retracts a signal from the bus, releasing any maps that
// touch it
func (d *Device) RemoveSignal(s *Signal) {
	if s == nil || s.dev != d {
		return
	}
	g := d.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, own := range d.signals {
		if own == s {
			d.signals = append(d.signals[:i], d.signals[i+1:]...)
			break
		}
	}
	g.removeSignalLocked(s)
}

// Signals returns the device's signals in creation order
func (d *Device) Signals() []*Signal {
	d.graph.mu.RLock()
	defer d.graph.mu.RUnlock()
	return append([]*Signal(nil), d.signals...)
}

// Poll processes pending bus work. With a zero wait it returns after
// one pass; otherwise it blocks up to wait for new work before the
// second pass. Returns the number of items processed.
func (d *Device) Poll(wait time.Duration) int {
	g := d.graph
	n := g.Poll()
	if n > 0 || wait <= 0 {
		return n
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-g.wake:
	case <-t.C:
	}
	return n + g.Poll()
}

// Close retracts all of the device's signals
func (d *Device) Close() {
	g := d.graph
	g.mu.Lock()
	if d.closed {
		g.mu.Unlock()
		return
	}
	d.closed = true
	sigs := d.signals
	d.signals = nil
	for _, s := range sigs {
		g.removeSignalLocked(s)
	}
	for i, dev := range g.devices {
		if dev == d {
			g.devices = append(g.devices[:i], g.devices[i+1:]...)
			break
		}
	}
	g.mu.Unlock()
}
