package graph

import "math"

// Kind is the element type of a signal's value
type Kind int

const (
	Float32 Kind = iota
	Int32
	Float64
)

func (k Kind) String() string {
	switch k {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Float64:
		return "float64"
	}
	return "unknown"
}

// Direction tells whether a signal publishes values onto the bus or
// subscribes to values arriving from it
type Direction int

const (
	Publish Direction = iota
	Subscribe
)

func (d Direction) String() string {
	if d == Subscribe {
		return "sub"
	}
	return "pub"
}

// SignalConfig describes a signal to be added to a device
type SignalConfig struct {
	Name  string
	Dir   Direction
	Kind  Kind
	Width int // vector width, 0 means 1
	Min   float64
	Max   float64
	Unit  string // optional, e.g. "beats" or "ppqn"
}

// Signal is a named, typed, ranged value slot on the bus
type Signal struct {
	graph  *Graph
	dev    *Device // nil for mirrors of remote signals
	name   string
	dir    Direction
	kind   Kind
	width  int
	min    float64
	max    float64
	unit   string
	remote bool

	value    []float64
	hasValue bool
	removed  bool
}

func (s *Signal) Name() string   { return s.name }
func (s *Signal) Dir() Direction { return s.dir }
func (s *Signal) Kind() Kind     { return s.kind }
func (s *Signal) Width() int     { return s.width }
func (s *Signal) Unit() string   { return s.unit }
func (s *Signal) Remote() bool   { return s.remote }

// Range returns the declared value range. The range is metadata for
// peers and monitors; writes are not clamped to it.
func (s *Signal) Range() (min, max float64) { return s.min, s.max }

// HasValue reports whether the signal has been set since creation
func (s *Signal) HasValue() bool {
	s.graph.mu.RLock()
	defer s.graph.mu.RUnlock()
	return s.hasValue
}

// Value returns a copy of the signal's current value, or nil if it has
// never been set
func (s *Signal) Value() []float64 {
	s.graph.mu.RLock()
	defer s.graph.mu.RUnlock()
	if !s.hasValue {
		return nil
	}
	return append([]float64(nil), s.value...)
}

// Scalar returns the first element of the current value, or 0 if the
// signal has never been set
func (s *Signal) Scalar() float64 {
	s.graph.mu.RLock()
	defer s.graph.mu.RUnlock()
	if !s.hasValue {
		return 0
	}
	return s.value[0]
}

// SetValue sets the signal's value and propagates it through any ready
// maps it feeds. A single element broadcasts across the signal's width.
// SetValue must be called from the polling goroutine; use Stage from
// anywhere else.
func (s *Signal) SetValue(v ...float64) {
	s.graph.mu.Lock()
	s.graph.applySetLocked(s, v)
	s.graph.mu.Unlock()
}

// Stage queues a value to be applied on the next Poll. Safe to call
// from any goroutine.
func (s *Signal) Stage(v ...float64) {
	vals := append([]float64(nil), v...)
	g := s.graph
	g.enqueue(func() { g.applySetLocked(s, vals) })
}

// write coerces v into the signal's value slot. Callers hold the graph
// lock.
func (s *Signal) write(v []float64) {
	if len(v) == 0 {
		return
	}
	if s.value == nil {
		s.value = make([]float64, s.width)
	}
	if len(v) == 1 && s.width > 1 {
		for i := range s.value {
			s.value[i] = s.coerce(v[0])
		}
	} else {
		n := len(v)
		if n > s.width {
			n = s.width
		}
		for i := 0; i < n; i++ {
			s.value[i] = s.coerce(v[i])
		}
	}
	s.hasValue = true
}

func (s *Signal) coerce(v float64) float64 {
	switch s.kind {
	case Int32:
		return math.Trunc(v)
	case Float32:
		return float64(float32(v))
	}
	return v
}
