// Package looper implements a live-looping track on the shared signal
// graph. Each track owns nine bus endpoints, a feedback map that
// recirculates captured frames at a tempo-synced delay, and a set of
// late-binding requests that connect it to peer signals by name.
package looper

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/mathiasbredholt/GestureLooper/debug"
	"github.com/mathiasbredholt/GestureLooper/graph"
)

const (
	defaultLength   = 1.0  // beats
	defaultDivision = 16.0 // ticks per beat

	readyTimeout = 5 * time.Second
	readyStep    = 10 * time.Millisecond
)

// ErrReadyTimeout is returned when the feedback map never comes up
var ErrReadyTimeout = errors.New("looper: feedback map never became ready")

// Loop is one loop track
type Loop struct {
	name  string
	dev   *graph.Device
	g     *graph.Graph
	kind  graph.Kind
	width int

	sigRecord     *graph.Signal
	sigLength     *graph.Signal
	sigDivision   *graph.Signal
	sigModulation *graph.Signal
	sigMute       *graph.Signal
	sigIn         *graph.Signal
	sigOut        *graph.Signal
	sigLocalSend  *graph.Signal
	sigLocalRecv  *graph.Signal

	loopMap *graph.Map
	binder  *binder

	lastTick      int
	missed        atomic.Int64
	onMissedTicks func(count int)
	rng           *rand.Rand
	closed        bool
}

// NewLoop creates a track named name on dev. kind and width apply to
// the input, output and local pair; the controls are always scalar.
// Construction polls the bus until the feedback map is ready and only
// then sets length and division to their defaults, so the delay term
// never runs against a half-built track.
func NewLoop(name string, dev *graph.Device, kind graph.Kind, width int) (*Loop, error) {
	if width < 1 {
		width = 1
	}
	l := &Loop{
		name:  name,
		dev:   dev,
		g:     dev.Graph(),
		kind:  kind,
		width: width,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := l.addSignals(); err != nil {
		l.releaseSignals()
		return nil, fmt.Errorf("loop %s: %w", name, err)
	}

	m, err := l.g.NewMap(graph.MapConfig{
		Sources: []*graph.Signal{
			l.sigLength,
			l.sigDivision,
			l.sigRecord,
			l.sigLocalSend,
			l.sigRecord,
			l.sigModulation,
		},
		Destination: l.sigLocalRecv,
		Expr:        feedbackExpr(l.rng),
		HistoryLen:  historyLen,
		Triggers:    []int{srcSend},
	})
	if err != nil {
		l.releaseSignals()
		return nil, fmt.Errorf("loop %s: %w", name, err)
	}
	l.loopMap = m
	m.Push()

	deadline := time.Now().Add(readyTimeout)
	for !m.Ready() {
		if time.Now().After(deadline) {
			l.releaseSignals()
			return nil, ErrReadyTimeout
		}
		dev.Poll(readyStep)
	}

	l.sigLength.SetValue(defaultLength)
	l.sigDivision.SetValue(defaultDivision)

	l.binder = newBinder(l.g)
	debug.Log("loop", "%s up, width %d", name, width)
	return l, nil
}

func (l *Loop) addSignals() error {
	var err error
	add := func(sig **graph.Signal, cfg graph.SignalConfig) {
		if err != nil {
			return
		}
		*sig, err = l.dev.AddSignal(cfg)
	}

	add(&l.sigRecord, graph.SignalConfig{
		Name: l.name + "/control/record", Dir: graph.Publish,
		Kind: graph.Float32, Min: 0, Max: 1,
	})
	add(&l.sigLength, graph.SignalConfig{
		Name: l.name + "/control/length", Dir: graph.Publish,
		Kind: graph.Float32, Min: 0, Max: 100, Unit: "beats",
	})
	add(&l.sigDivision, graph.SignalConfig{
		Name: l.name + "/control/division", Dir: graph.Publish,
		Kind: graph.Float32, Min: 1, Max: 96, Unit: "ppqn",
	})
	add(&l.sigModulation, graph.SignalConfig{
		Name: l.name + "/control/modulation", Dir: graph.Publish,
		Kind: graph.Float32, Min: 0, Max: 1,
	})
	add(&l.sigMute, graph.SignalConfig{
		Name: l.name + "/control/mute", Dir: graph.Publish,
		Kind: graph.Int32, Min: 0, Max: 1,
	})
	add(&l.sigIn, graph.SignalConfig{
		Name: l.name + "/input", Dir: graph.Subscribe,
		Kind: l.kind, Width: l.width, Min: 0, Max: 1,
	})
	add(&l.sigOut, graph.SignalConfig{
		Name: l.name + "/output", Dir: graph.Publish,
		Kind: l.kind, Width: l.width, Min: 0, Max: 1,
	})
	add(&l.sigLocalSend, graph.SignalConfig{
		Name: l.name + "/local/send", Dir: graph.Publish,
		Kind: l.kind, Width: l.width, Min: 0, Max: 1,
	})
	add(&l.sigLocalRecv, graph.SignalConfig{
		Name: l.name + "/local/recv", Dir: graph.Subscribe,
		Kind: l.kind, Width: l.width, Min: 0, Max: 1,
	})
	if err != nil {
		return err
	}

	zeros := make([]float64, l.width)
	l.sigRecord.SetValue(0)
	l.sigModulation.SetValue(0)
	l.sigMute.SetValue(0)
	l.sigIn.SetValue(zeros...)
	l.sigOut.SetValue(zeros...)
	l.sigLocalSend.SetValue(zeros...)
	l.sigLocalRecv.SetValue(zeros...)
	return nil
}

// Update advances the track to the given beat position. Each new tick
// captures the input into the recirculation path; unless muted, the
// recirculated frame is then copied to the output. Ticks are derived
// from the current division, so changing division rescales the
// timeline. Beat positions that move backwards are ignored.
func (l *Loop) Update(beats float64) {
	if l.closed {
		return
	}
	tick := int(math.Floor(beats * l.sigDivision.Scalar()))
	if tick > l.lastTick {
		if missed := tick - l.lastTick - 1; missed > 0 {
			l.missed.Add(int64(missed))
			debug.Log("tick", "%s missed %d ticks", l.name, missed)
			if l.onMissedTicks != nil {
				l.onMissedTicks(missed)
			}
		}
		l.sigLocalSend.SetValue(l.sigIn.Value()...)
		l.lastTick = tick
	}
	if l.sigMute.Scalar() == 0 {
		l.sigOut.SetValue(l.sigLocalRecv.Value()...)
	}
}

// SetOnMissedTicks registers a hook called with the number of ticks
// skipped whenever the beat position jumps by more than one tick
func (l *Loop) SetOnMissedTicks(fn func(count int)) {
	l.onMissedTicks = fn
}

// MapRecord binds a peer signal named peer to the record control as
// soon as one exists. Like every binding request it fires at most
// once; rebinding after the peer goes away takes another call.
func (l *Loop) MapRecord(peer string) { l.binder.request(peer, l.sigRecord, bindFrom) }

// MapLength binds a peer signal to the length control
func (l *Loop) MapLength(peer string) { l.binder.request(peer, l.sigLength, bindFrom) }

// MapModulation binds a peer signal to the modulation control
func (l *Loop) MapModulation(peer string) { l.binder.request(peer, l.sigModulation, bindFrom) }

// MapInput binds a peer signal to the track input
func (l *Loop) MapInput(peer string) { l.binder.request(peer, l.sigIn, bindFrom) }

// MapOutput binds the track output to a peer signal
func (l *Loop) MapOutput(peer string) { l.binder.request(peer, l.sigOut, bindTo) }

// Params is a snapshot of the control endpoints
type Params struct {
	Record     float64
	Length     float64
	Division   float64
	Modulation float64
	Mute       bool
}

// Params returns the current control values
func (l *Loop) Params() Params {
	return Params{
		Record:     l.sigRecord.Scalar(),
		Length:     l.sigLength.Scalar(),
		Division:   l.sigDivision.Scalar(),
		Modulation: l.sigModulation.Scalar(),
		Mute:       l.sigMute.Scalar() != 0,
	}
}

func (l *Loop) Name() string { return l.name }

// LastTick returns the most recent tick the track advanced to
func (l *Loop) LastTick() int { return l.lastTick }

// MissedTicks returns the total number of ticks skipped in jumps of
// the beat position. Safe to read from any goroutine.
func (l *Loop) MissedTicks() int { return int(l.missed.Load()) }

func (l *Loop) RecordSignal() *graph.Signal     { return l.sigRecord }
func (l *Loop) LengthSignal() *graph.Signal     { return l.sigLength }
func (l *Loop) DivisionSignal() *graph.Signal   { return l.sigDivision }
func (l *Loop) ModulationSignal() *graph.Signal { return l.sigModulation }
func (l *Loop) MuteSignal() *graph.Signal       { return l.sigMute }
func (l *Loop) InputSignal() *graph.Signal      { return l.sigIn }
func (l *Loop) OutputSignal() *graph.Signal     { return l.sigOut }

// Close drops pending binding requests, releases the feedback map and
// retracts all nine endpoints
func (l *Loop) Close() {
	if l.closed {
		return
	}
	l.closed = true
	if l.binder != nil {
		l.binder.close()
	}
	if l.loopMap != nil {
		l.loopMap.Release()
	}
	l.releaseSignals()
	debug.Log("loop", "%s closed", l.name)
}

func (l *Loop) releaseSignals() {
	for _, s := range []*graph.Signal{
		l.sigRecord, l.sigLength, l.sigDivision, l.sigModulation,
		l.sigMute, l.sigIn, l.sigOut, l.sigLocalSend, l.sigLocalRecv,
	} {
		if s != nil {
			l.dev.RemoveSignal(s)
		}
	}
}
