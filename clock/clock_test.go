package clock

import (
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// fakeNow pins an Internal clock to a controllable instant
func fakeNow(c *Internal) func(d time.Duration) {
	base := time.Unix(0, 0)
	c.now = func() time.Time { return base }
	c.start = base
	return func(d time.Duration) { base = base.Add(d) }
}

func TestInternalBeats(t *testing.T) {
	c := NewInternal(120)
	advance := fakeNow(c)

	if got := c.Beats(); got != 0 {
		t.Fatalf("Beats() = %v at start, want 0", got)
	}
	advance(30 * time.Second)
	if got := c.Beats(); got != 60 {
		t.Fatalf("Beats() = %v after 30s at 120 BPM, want 60", got)
	}
	advance(time.Minute)
	if got := c.Beats(); got != 180 {
		t.Fatalf("Beats() = %v after 90s at 120 BPM, want 180", got)
	}
}

func TestSetTempoKeepsPosition(t *testing.T) {
	c := NewInternal(120)
	advance := fakeNow(c)

	advance(30 * time.Second) // 60 beats
	c.SetTempo(60)
	if got := c.Beats(); got != 60 {
		t.Fatalf("Beats() = %v right after tempo change, want 60", got)
	}
	advance(time.Minute) // 60 more at the new tempo
	if got := c.Beats(); got != 120 {
		t.Fatalf("Beats() = %v a minute after the change, want 120", got)
	}
	if got := c.Tempo(); got != 60 {
		t.Fatalf("Tempo() = %v, want 60", got)
	}
}

func TestTempoClamped(t *testing.T) {
	if got := NewInternal(1000).Tempo(); got != 300 {
		t.Fatalf("Tempo() = %v for 1000 BPM, want the 300 cap", got)
	}
	if got := NewInternal(0).Tempo(); got != 20 {
		t.Fatalf("Tempo() = %v for 0 BPM, want the 20 floor", got)
	}
	c := NewInternal(120)
	c.SetTempo(-5)
	if got := c.Tempo(); got != 20 {
		t.Fatalf("Tempo() = %v after SetTempo(-5), want 20", got)
	}
}

// Raw system realtime bytes, as delivered by the driver
var (
	msgClock    = gomidi.Message{0xF8}
	msgStart    = gomidi.Message{0xFA}
	msgContinue = gomidi.Message{0xFB}
	msgStop     = gomidi.Message{0xFC}
)

func pulse(m *MIDI, msg gomidi.Message, n int) {
	for i := 0; i < n; i++ {
		m.handle(msg, 0)
	}
}

func TestMIDIFollowsClock(t *testing.T) {
	m := &MIDI{}

	// Pulses before a start are ignored.
	pulse(m, msgClock, 24)
	if got := m.Beats(); got != 0 {
		t.Fatalf("Beats() = %v before start, want 0", got)
	}
	if m.Running() {
		t.Fatal("Running() before start")
	}

	m.handle(msgStart, 0)
	pulse(m, msgClock, 24)
	if got := m.Beats(); got != 1 {
		t.Fatalf("Beats() = %v after 24 pulses, want 1", got)
	}

	m.handle(msgStop, 0)
	pulse(m, msgClock, 12)
	if got := m.Beats(); got != 1 {
		t.Fatalf("Beats() = %v while stopped, want the frozen 1", got)
	}

	m.handle(msgContinue, 0)
	pulse(m, msgClock, 12)
	if got := m.Beats(); got != 1.5 {
		t.Fatalf("Beats() = %v after continue, want 1.5", got)
	}

	// Start rewinds to zero.
	m.handle(msgStart, 0)
	if got := m.Beats(); got != 0 {
		t.Fatalf("Beats() = %v after restart, want 0", got)
	}
}
