package graph

import "testing"

func addSig(t *testing.T, d *Device, cfg SignalConfig) *Signal {
	t.Helper()
	s, err := d.AddSignal(cfg)
	if err != nil {
		t.Fatalf("AddSignal(%s): %v", cfg.Name, err)
	}
	return s
}

// drain polls until the bus is idle
func drain(g *Graph) {
	for g.Poll() > 0 {
	}
}

func TestAddSignal(t *testing.T) {
	g := New()
	d := NewDevice("test", g)

	s := addSig(t, d, SignalConfig{Name: "a", Kind: Float32})
	if got := g.FindSignal("a"); got != s {
		t.Fatalf("FindSignal returned %v, want %v", got, s)
	}
	if g.FindSignal("missing") != nil {
		t.Fatal("FindSignal found a signal that was never added")
	}

	if _, err := d.AddSignal(SignalConfig{Name: "a"}); err == nil {
		t.Fatal("duplicate name did not error")
	}
	if _, err := d.AddSignal(SignalConfig{}); err == nil {
		t.Fatal("empty name did not error")
	}
}

func TestSignalValue(t *testing.T) {
	g := New()
	d := NewDevice("test", g)

	s := addSig(t, d, SignalConfig{Name: "v", Kind: Float32, Width: 3})
	if s.HasValue() {
		t.Fatal("fresh signal has a value")
	}
	if s.Value() != nil {
		t.Fatal("fresh signal Value() != nil")
	}
	if s.Scalar() != 0 {
		t.Fatal("fresh signal Scalar() != 0")
	}

	s.SetValue(0.5)
	got := s.Value()
	if len(got) != 3 {
		t.Fatalf("Value() len = %d, want 3", len(got))
	}
	for i := range got {
		if got[i] != 0.5 {
			t.Fatalf("Value()[%d] = %v, want broadcast 0.5", i, got[i])
		}
	}

	s.SetValue(0.1, 0.2, 0.3)
	got = s.Value()
	got[0] = 99
	if s.Value()[0] == 99 {
		t.Fatal("Value() exposed internal storage")
	}

	n := addSig(t, d, SignalConfig{Name: "n", Kind: Int32})
	n.SetValue(2.7)
	if got := n.Scalar(); got != 2 {
		t.Fatalf("int signal Scalar() = %v, want 2", got)
	}
	n.SetValue(-1.9)
	if got := n.Scalar(); got != -1 {
		t.Fatalf("int signal Scalar() = %v, want -1", got)
	}
}

func TestObserveEvents(t *testing.T) {
	g := New()
	d := NewDevice("test", g)

	var events []Event
	g.Observe(func(e Event) { events = append(events, e) })

	s := addSig(t, d, SignalConfig{Name: "a"})
	if len(events) != 0 {
		t.Fatal("event delivered before poll")
	}
	drain(g)
	if len(events) != 1 || events[0].Kind != SignalAdded || events[0].Signal != s {
		t.Fatalf("got %v, want one SignalAdded for a", events)
	}

	d.RemoveSignal(s)
	drain(g)
	if len(events) != 2 || events[1].Kind != SignalRemoved {
		t.Fatalf("got %v, want SignalRemoved", events)
	}
}

func TestObserveReplaysExistingSignals(t *testing.T) {
	g := New()
	d := NewDevice("test", g)

	addSig(t, d, SignalConfig{Name: "a"})
	addSig(t, d, SignalConfig{Name: "b"})

	early := 0
	g.Observe(func(e Event) { early++ })
	drain(g)
	if early != 2 {
		t.Fatalf("first observer saw %d events, want 2", early)
	}

	var replayed []string
	g.Observe(func(e Event) {
		if e.Kind == SignalAdded {
			replayed = append(replayed, e.Signal.Name())
		}
	})
	drain(g)

	if len(replayed) != 2 || replayed[0] != "a" || replayed[1] != "b" {
		t.Fatalf("replay = %v, want [a b]", replayed)
	}
	if early != 2 {
		t.Fatalf("replay leaked to the first observer, count %d", early)
	}
}

func TestUnobserve(t *testing.T) {
	g := New()
	d := NewDevice("test", g)

	count := 0
	id := g.Observe(func(e Event) { count++ })
	drain(g)
	g.Unobserve(id)

	addSig(t, d, SignalConfig{Name: "a"})
	drain(g)
	if count != 0 {
		t.Fatalf("removed observer got %d events", count)
	}
}

func TestMapLifecycle(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	src := addSig(t, d, SignalConfig{Name: "src"})
	dst := addSig(t, d, SignalConfig{Name: "dst"})
	drain(g)

	var added []*Map
	g.Observe(func(e Event) {
		if e.Kind == MapAdded {
			added = append(added, e.Map)
		}
	})

	m, err := g.NewMap(MapConfig{Sources: []*Signal{src}, Destination: dst})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	if m.Ready() {
		t.Fatal("map ready before push")
	}

	src.SetValue(0.3)
	if dst.HasValue() {
		t.Fatal("unpushed map propagated a value")
	}

	m.Push()
	if m.Ready() {
		t.Fatal("map ready before poll")
	}
	drain(g)
	if !m.Ready() {
		t.Fatal("map not ready after poll")
	}
	if len(added) != 1 || added[0] != m {
		t.Fatalf("MapAdded events = %v", added)
	}

	src.SetValue(0.7)
	if got := dst.Scalar(); float32(got) != 0.7 {
		t.Fatalf("dst = %v, want 0.7", got)
	}

	m.Release()
	if !m.Released() {
		t.Fatal("map not released")
	}
	src.SetValue(0.1)
	if got := dst.Scalar(); float32(got) != 0.7 {
		t.Fatalf("released map still propagates, dst = %v", got)
	}
}

func TestMapValidation(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	src := addSig(t, d, SignalConfig{Name: "src"})
	dst := addSig(t, d, SignalConfig{Name: "dst"})

	if _, err := g.NewMap(MapConfig{Sources: []*Signal{src}}); err == nil {
		t.Fatal("nil destination did not error")
	}
	if _, err := g.NewMap(MapConfig{Destination: dst}); err == nil {
		t.Fatal("no sources did not error")
	}
	if _, err := g.NewMap(MapConfig{
		Sources: []*Signal{src}, Destination: dst, Triggers: []int{3},
	}); err == nil {
		t.Fatal("out of range trigger did not error")
	}
}

func TestMapTriggers(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	a := addSig(t, d, SignalConfig{Name: "a"})
	b := addSig(t, d, SignalConfig{Name: "b"})
	dst := addSig(t, d, SignalConfig{Name: "dst"})

	evals := 0
	m, err := g.NewMap(MapConfig{
		Sources:     []*Signal{a, b},
		Destination: dst,
		Triggers:    []int{1},
		Expr: func(src [][]float64, hist *History) []float64 {
			evals++
			return []float64{src[0][0] + src[1][0]}
		},
	})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	m.Push()
	drain(g)

	a.SetValue(1)
	if evals != 0 {
		t.Fatal("non-trigger source evaluated the map")
	}
	b.SetValue(2)
	if evals != 1 {
		t.Fatalf("evals = %d after trigger update, want 1", evals)
	}
	if got := dst.Scalar(); got != 3 {
		t.Fatalf("dst = %v, want 3", got)
	}
}

func TestMapHistory(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	src := addSig(t, d, SignalConfig{Name: "src"})
	dst := addSig(t, d, SignalConfig{Name: "dst"})

	// Accumulator: each update adds the source to the previous output.
	m, err := g.NewMap(MapConfig{
		Sources:     []*Signal{src},
		Destination: dst,
		HistoryLen:  4,
		Expr: func(s [][]float64, hist *History) []float64 {
			return []float64{hist.Past(1)[0] + s[0][0]}
		},
	})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	m.Push()
	drain(g)

	for i, want := range []float64{1, 2, 3} {
		src.SetValue(1)
		if got := dst.Scalar(); got != want {
			t.Fatalf("after update %d dst = %v, want %v", i+1, got, want)
		}
	}
}

func TestRemoveSignalReleasesMaps(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	src := addSig(t, d, SignalConfig{Name: "src"})
	dst := addSig(t, d, SignalConfig{Name: "dst"})

	m, _ := g.NewMap(MapConfig{Sources: []*Signal{src}, Destination: dst})
	m.Push()
	drain(g)

	removed := 0
	g.Observe(func(e Event) {
		if e.Kind == MapRemoved {
			removed++
		}
	})

	d.RemoveSignal(src)
	drain(g)
	if !m.Released() {
		t.Fatal("map survived its source")
	}
	if removed != 1 {
		t.Fatalf("MapRemoved count = %d, want 1", removed)
	}
	if len(g.Maps()) != 0 {
		t.Fatalf("Maps() = %v after release", g.Maps())
	}
}

func TestStageAppliesOnPoll(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	s := addSig(t, d, SignalConfig{Name: "s"})

	s.Stage(0.5)
	if s.HasValue() {
		t.Fatal("staged value applied before poll")
	}
	drain(g)
	if got := s.Scalar(); got != 0.5 {
		t.Fatalf("Scalar() = %v after poll, want 0.5", got)
	}
}

func TestUpdatesChannel(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	s := addSig(t, d, SignalConfig{Name: "s"})

	s.SetValue(1)
	select {
	case <-g.Updates():
	default:
		t.Fatal("no update notification after SetValue")
	}
}

func TestDeviceClose(t *testing.T) {
	g := New()
	d := NewDevice("test", g)
	addSig(t, d, SignalConfig{Name: "a"})
	addSig(t, d, SignalConfig{Name: "b"})

	d.Close()
	if len(g.Signals()) != 0 {
		t.Fatalf("Signals() = %v after close", g.Signals())
	}
	if _, err := d.AddSignal(SignalConfig{Name: "c"}); err == nil {
		t.Fatal("AddSignal on a closed device did not error")
	}
}
