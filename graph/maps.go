package graph

import "fmt"

// ExprFunc computes a map's destination value from its source values.
// src is indexed in MapConfig.Sources order and hist holds the
// destination's past outputs. Implementations must not retain the
// slices and must not call back into the graph.
type ExprFunc func(src [][]float64, hist *History) []float64

// MapConfig describes a directed connection between signals
type MapConfig struct {
	Sources     []*Signal
	Destination *Signal

	// Expr is the update expression. Nil copies the first source to
	// the destination.
	Expr ExprFunc

	// HistoryLen is the destination history capacity in samples.
	// Values below 1 mean 1.
	HistoryLen int

	// Triggers lists the indexes of sources whose updates evaluate
	// the map. Nil means every source triggers.
	Triggers []int
}

// Map is a connection installed on the bus. It is created staged and
// becomes ready during a later poll, matching the install handshake of
// a distributed bus.
type Map struct {
	graph *Graph
	srcs  []*Signal
	dst   *Signal
	expr  ExprFunc
	hist  *History
	trig  []bool // nil means all sources trigger

	scratch [][]float64

	pushed     bool
	ready      bool
	released   bool
	evaluating bool
}

// NewMap builds a map from cfg. The map does nothing until Push is
// called and a poll promotes it to ready.
func (g *Graph) NewMap(cfg MapConfig) (*Map, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cfg.Destination == nil {
		return nil, fmt.Errorf("map needs a destination signal")
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("map needs at least one source signal")
	}
	if cfg.Destination.removed {
		return nil, fmt.Errorf("map destination %s is gone", cfg.Destination.name)
	}
	for _, s := range cfg.Sources {
		if s == nil {
			return nil, fmt.Errorf("map has a nil source")
		}
		if s.removed {
			return nil, fmt.Errorf("map source %s is gone", s.name)
		}
	}

	m := &Map{
		graph:   g,
		srcs:    append([]*Signal(nil), cfg.Sources...),
		dst:     cfg.Destination,
		expr:    cfg.Expr,
		hist:    NewHistory(cfg.HistoryLen, cfg.Destination.width),
		scratch: make([][]float64, len(cfg.Sources)),
	}
	if cfg.Triggers != nil {
		m.trig = make([]bool, len(m.srcs))
		for _, i := range cfg.Triggers {
			if i < 0 || i >= len(m.srcs) {
				return nil, fmt.Errorf("map trigger index %d out of range", i)
			}
			m.trig[i] = true
		}
	}
	return m, nil
}

// Push submits the map to the bus. It becomes ready on a later poll.
func (m *Map) Push() {
	g := m.graph
	g.mu.Lock()
	defer g.mu.Unlock()
	if m.pushed || m.released {
		return
	}
	m.pushed = true
	g.staged = append(g.staged, m)
}

// Ready reports whether the map has been installed and is evaluating
func (m *Map) Ready() bool {
	m.graph.mu.RLock()
	defer m.graph.mu.RUnlock()
	return m.ready
}

// Released reports whether the map has been removed from the bus
func (m *Map) Released() bool {
	m.graph.mu.RLock()
	defer m.graph.mu.RUnlock()
	return m.released
}

// Sources returns the map's source signals in binding order
func (m *Map) Sources() []*Signal {
	return append([]*Signal(nil), m.srcs...)
}

// Destination returns the map's destination signal
func (m *Map) Destination() *Signal { return m.dst }

// Release removes the map from the bus
func (m *Map) Release() {
	g := m.graph
	g.mu.Lock()
	g.releaseMapLocked(m)
	g.mu.Unlock()
}

func (m *Map) triggeredBy(s *Signal) bool {
	for i, src := range m.srcs {
		if src != s {
			continue
		}
		if m.trig == nil || m.trig[i] {
			return true
		}
	}
	return false
}

// evaluate recomputes the destination from the current sources. The
// evaluating flag stops feedback cycles from recursing. Callers hold
// the graph lock.
func (m *Map) evaluate() {
	if m.evaluating {
		return
	}
	m.evaluating = true
	defer func() { m.evaluating = false }()

	var out []float64
	if m.expr == nil {
		out = m.srcs[0].value
	} else {
		for i, s := range m.srcs {
			m.scratch[i] = s.value
		}
		out = m.expr(m.scratch, m.hist)
	}
	if len(out) == 0 {
		return
	}
	m.hist.Push(out)
	m.dst.write(out)
	m.graph.propagateLocked(m.dst, false)
}
