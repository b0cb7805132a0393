// Package graph implements the shared dataflow bus the looper runs on:
// named signals grouped under devices, maps that stream values between
// them through update expressions, and membership events for late
// binding. Structural calls happen on one polling goroutine; values
// from other goroutines are staged and applied on the next poll.
package graph

import "sync"

// EventKind is the type of a bus membership event
type EventKind int

const (
	SignalAdded EventKind = iota
	SignalRemoved
	MapAdded
	MapRemoved
)

func (k EventKind) String() string {
	switch k {
	case SignalAdded:
		return "signal added"
	case SignalRemoved:
		return "signal removed"
	case MapAdded:
		return "map added"
	case MapRemoved:
		return "map removed"
	}
	return "unknown"
}

// Event describes a change in bus membership. Signal is set for signal
// events, Map for map events.
type Event struct {
	Kind   EventKind
	Signal *Signal
	Map    *Map
}

// ObserverID identifies a registered observer
type ObserverID int

type observer struct {
	id ObserverID
	fn func(Event)
}

type pendingEvent struct {
	ev   Event
	only ObserverID // 0 delivers to every observer
}

// Graph is the bus registry. One Graph is shared by every device and
// track in the process, plus mirrors of any signals announced by
// remote peers.
type Graph struct {
	mu        sync.RWMutex
	devices   []*Device
	signals   []*Signal
	maps      []*Map
	staged    []*Map
	observers []observer
	nextObs   ObserverID
	pending   []pendingEvent
	tasks     []func()
	bridge    *Bridge

	wake    chan struct{}
	updates chan struct{}
}

// New returns an empty graph
func New() *Graph {
	return &Graph{
		wake:    make(chan struct{}, 1),
		updates: make(chan struct{}, 1),
	}
}

// Observe registers fn for membership events. The observer immediately
// receives a SignalAdded replay for every signal already on the bus,
// delivered during the next poll.
func (g *Graph) Observe(fn func(Event)) ObserverID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextObs++
	id := g.nextObs
	g.observers = append(g.observers, observer{id: id, fn: fn})
	for _, s := range g.signals {
		g.pending = append(g.pending, pendingEvent{
			ev:   Event{Kind: SignalAdded, Signal: s},
			only: id,
		})
	}
	return id
}

// Unobserve removes a registered observer
func (g *Graph) Unobserve(id ObserverID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, o := range g.observers {
		if o.id == id {
			g.observers = append(g.observers[:i], g.observers[i+1:]...)
			return
		}
	}
}

// Signals returns every signal on the bus, local and mirrored
func (g *Graph) Signals() []*Signal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Signal(nil), g.signals...)
}

// Maps returns every map on the bus, ready or still staged
func (g *Graph) Maps() []*Map {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := append([]*Map(nil), g.maps...)
	return append(out, g.staged...)
}

// FindSignal returns the first signal with the given name, or nil
func (g *Graph) FindSignal(name string) *Signal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.signals {
		if s.name == name {
			return s
		}
	}
	return nil
}

// Updates returns a channel that receives a coalesced notification
// whenever any signal value changes
func (g *Graph) Updates() <-chan struct{} { return g.updates }

// Poll applies staged values, promotes pushed maps to ready and
// dispatches membership events. Returns the number of items processed.
func (g *Graph) Poll() int {
	g.mu.Lock()
	n := 0

	tasks := g.tasks
	g.tasks = nil
	for _, fn := range tasks {
		fn()
		n++
	}

	for _, m := range g.staged {
		if m.released {
			continue
		}
		m.ready = true
		g.maps = append(g.maps, m)
		g.pending = append(g.pending, pendingEvent{ev: Event{Kind: MapAdded, Map: m}})
		n++
	}
	g.staged = nil

	events := g.pending
	g.pending = nil
	obs := append([]observer(nil), g.observers...)
	g.mu.Unlock()

	// Callbacks run outside the lock so they can create signals and
	// maps of their own.
	for _, pe := range events {
		for _, o := range obs {
			if pe.only != 0 && pe.only != o.id {
				continue
			}
			o.fn(pe.ev)
		}
		n++
	}
	return n
}

// enqueue schedules fn to run under the lock on the next poll
func (g *Graph) enqueue(fn func()) {
	g.mu.Lock()
	g.tasks = append(g.tasks, fn)
	g.mu.Unlock()
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *Graph) addSignalLocked(s *Signal) {
	g.signals = append(g.signals, s)
	g.pending = append(g.pending, pendingEvent{ev: Event{Kind: SignalAdded, Signal: s}})
	if g.bridge != nil && !s.remote {
		g.bridge.announceSignalLocked(s)
	}
}

func (g *Graph) removeSignalLocked(s *Signal) {
	if s.removed {
		return
	}
	s.removed = true
	for i, sig := range g.signals {
		if sig == s {
			g.signals = append(g.signals[:i], g.signals[i+1:]...)
			break
		}
	}
	for _, m := range append(append([]*Map(nil), g.maps...), g.staged...) {
		if m.released {
			continue
		}
		if m.dst == s || hasSource(m, s) {
			g.releaseMapLocked(m)
		}
	}
	g.pending = append(g.pending, pendingEvent{ev: Event{Kind: SignalRemoved, Signal: s}})
	if g.bridge != nil && !s.remote {
		g.bridge.retractSignalLocked(s)
	}
}

func hasSource(m *Map, s *Signal) bool {
	for _, src := range m.srcs {
		if src == s {
			return true
		}
	}
	return false
}

func (g *Graph) releaseMapLocked(m *Map) {
	if m.released {
		return
	}
	m.released = true
	if !m.ready {
		return
	}
	m.ready = false
	for i, mm := range g.maps {
		if mm == m {
			g.maps = append(g.maps[:i], g.maps[i+1:]...)
			break
		}
	}
	g.pending = append(g.pending, pendingEvent{ev: Event{Kind: MapRemoved, Map: m}})
}

// applySetLocked applies a locally originated value
func (g *Graph) applySetLocked(s *Signal, v []float64) {
	if s.removed {
		return
	}
	s.write(v)
	g.propagateLocked(s, false)
}

// applyNetSetLocked applies a value that arrived from a peer, which
// must not be forwarded back out
func (g *Graph) applyNetSetLocked(s *Signal, v []float64) {
	if s.removed {
		return
	}
	s.write(v)
	g.propagateLocked(s, true)
}

func (g *Graph) propagateLocked(s *Signal, fromNet bool) {
	for _, m := range g.maps {
		if !m.released && m.triggeredBy(s) {
			m.evaluate()
		}
	}
	if g.bridge != nil && !fromNet {
		g.bridge.signalUpdatedLocked(s)
	}
	g.notifyUpdateLocked()
}

func (g *Graph) notifyUpdateLocked() {
	select {
	case g.updates <- struct{}{}:
	default:
	}
}
