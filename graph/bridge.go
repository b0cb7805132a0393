package graph

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chabad360/go-osc/osc"

	"github.com/mathiasbredholt/GestureLooper/debug"
)

// OSC addresses spoken between bridged graphs
const (
	addrSignal = "/gl/sig"  // announce a signal: dev, name, dir, kind, width, min, max, unit
	addrValue  = "/gl/val"  // publish a value: name, elements...
	addrSet    = "/gl/set"  // ask the owner to set a value: name, elements...
	addrGone   = "/gl/gone" // retract a signal: name
	addrBye    = "/gl/bye"  // retract everything from a device: dev
)

// BridgeConfig configures graph peering over OSC
type BridgeConfig struct {
	// Device names this process in announcements and byes
	Device string

	// Listen is the local UDP host:port to receive on. Empty means
	// send-only.
	Listen string

	// Peers are the host:port addresses of remote graphs
	Peers []string

	// Announce is the re-announce interval. Zero means 1s. Mirrors
	// not re-announced for three intervals are dropped.
	Announce time.Duration
}

type mirrorState struct {
	sig      *Signal
	origin   string
	lastSeen time.Time
}

// Bridge connects a graph to remote graphs over OSC. Local signals are
// announced to every peer and peer signals appear on the local bus as
// mirrors, so late binding and maps work across processes.
type Bridge struct {
	g        *Graph
	dev      string
	interval time.Duration
	clients  []*osc.Client
	server   *osc.Server
	mirrors  map[string]*mirrorState // keyed by signal name, poll goroutine only
	stop     chan struct{}
	closed   atomic.Bool
}

// NewBridge attaches a bridge to g and starts announcing. A graph
// carries at most one bridge.
func NewBridge(g *Graph, cfg BridgeConfig) (*Bridge, error) {
	interval := cfg.Announce
	if interval <= 0 {
		interval = time.Second
	}
	b := &Bridge{
		g:        g,
		dev:      cfg.Device,
		interval: interval,
		mirrors:  make(map[string]*mirrorState),
		stop:     make(chan struct{}),
	}
	for _, peer := range cfg.Peers {
		host, portStr, err := net.SplitHostPort(peer)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", peer, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", peer, err)
		}
		b.clients = append(b.clients, osc.NewClient(host, port))
	}

	g.mu.Lock()
	if g.bridge != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("graph already has a bridge")
	}
	g.bridge = b
	g.mu.Unlock()

	if cfg.Listen != "" {
		d := osc.NewStandardDispatcher()
		d.AddMsgHandler(addrSignal, b.handleSignal)
		d.AddMsgHandler(addrValue, b.handleValue)
		d.AddMsgHandler(addrSet, b.handleSet)
		d.AddMsgHandler(addrGone, b.handleGone)
		d.AddMsgHandler(addrBye, b.handleBye)
		b.server = &osc.Server{Addr: cfg.Listen, Dispatcher: d}
		go func() {
			// ListenAndServe has no shutdown; the socket dies with
			// the process.
			if err := b.server.ListenAndServe(); err != nil && !b.closed.Load() {
				debug.Log("osc", "server: %v", err)
			}
		}()
	}

	b.announceAll()
	go b.announceLoop()
	return b, nil
}

// Close stops announcing and tells every peer to drop this process's
// signals
func (b *Bridge) Close() {
	if b.closed.Swap(true) {
		return
	}
	close(b.stop)
	bye := osc.NewMessage(addrBye)
	bye.Append(b.dev)
	b.send(bye)

	g := b.g
	g.mu.Lock()
	if g.bridge == b {
		g.bridge = nil
	}
	g.mu.Unlock()
}

func (b *Bridge) announceLoop() {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			b.announceAll()
			b.g.enqueue(func() { b.sweepLocked(time.Now()) })
		}
	}
}

// announceAll re-announces every local signal and refreshes published
// values, so peers that joined late still converge
func (b *Bridge) announceAll() {
	for _, s := range b.g.Signals() {
		if s.Remote() {
			continue
		}
		b.send(encodeSignal(s.dev.name, s))
		if s.Dir() == Publish {
			if v := s.Value(); v != nil {
				b.send(encodeValue(addrValue, s.Name(), v))
			}
		}
	}
}

func (b *Bridge) send(msg *osc.Message) {
	for _, c := range b.clients {
		if err := c.Send(msg); err != nil {
			debug.Log("osc", "send %s: %v", msg.Address, err)
		}
	}
}

// signalUpdatedLocked forwards a locally applied value to peers: sets
// on mirrors go to the owner, published local values are broadcast
func (b *Bridge) signalUpdatedLocked(s *Signal) {
	if s.remote {
		b.send(encodeValue(addrSet, s.name, s.value))
		return
	}
	if s.dir == Publish {
		b.send(encodeValue(addrValue, s.name, s.value))
	}
}

func (b *Bridge) announceSignalLocked(s *Signal) {
	b.send(encodeSignal(s.dev.name, s))
}

func (b *Bridge) retractSignalLocked(s *Signal) {
	msg := osc.NewMessage(addrGone)
	msg.Append(s.name)
	b.send(msg)
}

func (b *Bridge) handleSignal(msg *osc.Message) {
	info, err := decodeSignal(msg)
	if err != nil {
		debug.Log("osc", "bad announce: %v", err)
		return
	}
	if info.Device == b.dev {
		return
	}
	b.g.enqueue(func() { b.upsertMirrorLocked(info, time.Now()) })
}

func (b *Bridge) handleValue(msg *osc.Message) {
	name, vals, err := decodeValue(msg)
	if err != nil {
		debug.Log("osc", "bad value: %v", err)
		return
	}
	b.g.enqueue(func() {
		if ms, ok := b.mirrors[name]; ok {
			b.g.applyNetSetLocked(ms.sig, vals)
		}
	})
}

func (b *Bridge) handleSet(msg *osc.Message) {
	name, vals, err := decodeValue(msg)
	if err != nil {
		debug.Log("osc", "bad set: %v", err)
		return
	}
	b.g.enqueue(func() {
		for _, s := range b.g.signals {
			if s.name == name && !s.remote {
				b.g.applyNetSetLocked(s, vals)
				return
			}
		}
	})
}

func (b *Bridge) handleGone(msg *osc.Message) {
	if len(msg.Arguments) != 1 {
		return
	}
	name, ok := msg.Arguments[0].(string)
	if !ok {
		return
	}
	b.g.enqueue(func() { b.removeMirrorLocked(name) })
}

func (b *Bridge) handleBye(msg *osc.Message) {
	if len(msg.Arguments) != 1 {
		return
	}
	dev, ok := msg.Arguments[0].(string)
	if !ok {
		return
	}
	b.g.enqueue(func() {
		for name, ms := range b.mirrors {
			if ms.origin == dev {
				b.removeMirrorLocked(name)
			}
		}
	})
}

func (b *Bridge) upsertMirrorLocked(info sigInfo, now time.Time) {
	if ms, ok := b.mirrors[info.Name]; ok {
		if ms.origin == info.Device {
			ms.lastSeen = now
		}
		return
	}
	for _, s := range b.g.signals {
		if s.name == info.Name && !s.remote {
			debug.Log("osc", "ignoring %s from %s, name taken locally", info.Name, info.Device)
			return
		}
	}
	sig := &Signal{
		graph:  b.g,
		name:   info.Name,
		dir:    info.Dir,
		kind:   info.Kind,
		width:  info.Width,
		min:    info.Min,
		max:    info.Max,
		unit:   info.Unit,
		remote: true,
		value:  make([]float64, info.Width),
	}
	b.mirrors[info.Name] = &mirrorState{sig: sig, origin: info.Device, lastSeen: now}
	b.g.addSignalLocked(sig)
	debug.Log("osc", "mirroring %s from %s", info.Name, info.Device)
}

func (b *Bridge) removeMirrorLocked(name string) {
	ms, ok := b.mirrors[name]
	if !ok {
		return
	}
	delete(b.mirrors, name)
	b.g.removeSignalLocked(ms.sig)
	debug.Log("osc", "dropped mirror %s from %s", name, ms.origin)
}

func (b *Bridge) sweepLocked(now time.Time) {
	for name, ms := range b.mirrors {
		if now.Sub(ms.lastSeen) > 3*b.interval {
			b.removeMirrorLocked(name)
		}
	}
}

type sigInfo struct {
	Device string
	Name   string
	Dir    Direction
	Kind   Kind
	Width  int
	Min    float64
	Max    float64
	Unit   string
}

func encodeSignal(dev string, s *Signal) *osc.Message {
	msg := osc.NewMessage(addrSignal)
	msg.Append(dev)
	msg.Append(s.name)
	msg.Append(int32(s.dir))
	msg.Append(int32(s.kind))
	msg.Append(int32(s.width))
	msg.Append(s.min)
	msg.Append(s.max)
	msg.Append(s.unit)
	return msg
}

func decodeSignal(msg *osc.Message) (sigInfo, error) {
	var info sigInfo
	if len(msg.Arguments) != 8 {
		return info, fmt.Errorf("announce wants 8 arguments, got %d", len(msg.Arguments))
	}
	var ok [8]bool
	var dir, kind, width int32
	info.Device, ok[0] = msg.Arguments[0].(string)
	info.Name, ok[1] = msg.Arguments[1].(string)
	dir, ok[2] = msg.Arguments[2].(int32)
	kind, ok[3] = msg.Arguments[3].(int32)
	width, ok[4] = msg.Arguments[4].(int32)
	info.Min, ok[5] = msg.Arguments[5].(float64)
	info.Max, ok[6] = msg.Arguments[6].(float64)
	info.Unit, ok[7] = msg.Arguments[7].(string)
	for i, good := range ok {
		if !good {
			return info, fmt.Errorf("announce argument %d has wrong type", i)
		}
	}
	info.Dir = Direction(dir)
	info.Kind = Kind(kind)
	info.Width = int(width)
	if info.Width < 1 {
		info.Width = 1
	}
	return info, nil
}

func encodeValue(addr, name string, v []float64) *osc.Message {
	msg := osc.NewMessage(addr)
	msg.Append(name)
	for _, x := range v {
		msg.Append(x)
	}
	return msg
}

func decodeValue(msg *osc.Message) (string, []float64, error) {
	if len(msg.Arguments) < 2 {
		return "", nil, fmt.Errorf("value wants a name and elements, got %d arguments", len(msg.Arguments))
	}
	name, ok := msg.Arguments[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("value name has wrong type")
	}
	vals := make([]float64, 0, len(msg.Arguments)-1)
	for i, arg := range msg.Arguments[1:] {
		x, ok := arg.(float64)
		if !ok {
			return "", nil, fmt.Errorf("value element %d has wrong type", i)
		}
		vals = append(vals, x)
	}
	return name, vals, nil
}
