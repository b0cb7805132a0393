// Package clock provides beat position sources for driving track
// updates, either free-running at a set tempo or following an external
// MIDI beat clock.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/mathiasbredholt/GestureLooper/midi"
)

// Source yields a monotonically advancing beat position
type Source interface {
	Beats() float64
}

// Internal is a free-running tempo clock
type Internal struct {
	mu    sync.Mutex
	bpm   float64
	start time.Time
	base  float64 // beats accumulated before the last tempo change
	now   func() time.Time
}

// NewInternal returns a clock running at bpm, clamped to 20-300
func NewInternal(bpm float64) *Internal {
	c := &Internal{now: time.Now}
	c.start = c.now()
	c.bpm = clampTempo(bpm)
	return c
}

// Beats returns the beat position since creation
func (c *Internal) Beats() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + c.now().Sub(c.start).Minutes()*c.bpm
}

// SetTempo changes the tempo without jumping the beat position
func (c *Internal) SetTempo(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.base += now.Sub(c.start).Minutes() * c.bpm
	c.start = now
	c.bpm = clampTempo(bpm)
}

// Tempo returns the current tempo in BPM
func (c *Internal) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

func clampTempo(bpm float64) float64 {
	if bpm < 20 {
		return 20
	}
	if bpm > 300 {
		return 300
	}
	return bpm
}

// pulsesPerBeat is the MIDI beat clock rate
const pulsesPerBeat = 24

// MIDI follows an external MIDI beat clock. Start resets the position
// to zero, Stop freezes it and Continue resumes.
type MIDI struct {
	pulses  atomic.Int64
	running atomic.Bool
	stop    func()
}

// NewMIDI opens the first input port whose name contains portName and
// follows its beat clock
func NewMIDI(portName string) (*MIDI, error) {
	in, err := midi.FindInPort(portName)
	if err != nil {
		return nil, err
	}
	m := &MIDI{}
	stop, err := gomidi.ListenTo(in, m.handle, gomidi.UseTimeCode())
	if err != nil {
		return nil, err
	}
	m.stop = stop
	return m, nil
}

func (m *MIDI) handle(msg gomidi.Message, timestampms int32) {
	switch {
	case msg.Is(gomidi.TimingClockMsg):
		if m.running.Load() {
			m.pulses.Add(1)
		}
	case msg.Is(gomidi.StartMsg):
		m.pulses.Store(0)
		m.running.Store(true)
	case msg.Is(gomidi.ContinueMsg):
		m.running.Store(true)
	case msg.Is(gomidi.StopMsg):
		m.running.Store(false)
	}
}

// Beats returns the beat position of the external clock
func (m *MIDI) Beats() float64 {
	return float64(m.pulses.Load()) / pulsesPerBeat
}

// Running reports whether the external clock is advancing
func (m *MIDI) Running() bool { return m.running.Load() }

// Close stops listening to the input port
func (m *MIDI) Close() {
	if m.stop != nil {
		m.stop()
	}
}
