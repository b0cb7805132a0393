package looper

import (
	"github.com/mathiasbredholt/GestureLooper/debug"
	"github.com/mathiasbredholt/GestureLooper/graph"
)

// bindDir tells which side of a late-bound connection the local
// endpoint is on
type bindDir int

const (
	bindFrom bindDir = iota // peer feeds the local endpoint
	bindTo                  // local endpoint feeds the peer
)

type bindRequest struct {
	peer  string
	local *graph.Signal
	dir   bindDir
}

// binder installs connections to peer signals by name. A request fires
// at most once: as soon as a signal with the requested name exists, a
// map is installed and the request is dropped. Requests still pending
// when the binder closes are discarded.
type binder struct {
	g       *graph.Graph
	obs     graph.ObserverID
	pending []bindRequest
}

func newBinder(g *graph.Graph) *binder {
	b := &binder{g: g}
	b.obs = g.Observe(b.onEvent)
	return b
}

// request connects the local endpoint to the peer signal named peer,
// now if it already exists, otherwise when it first appears
func (b *binder) request(peer string, local *graph.Signal, dir bindDir) {
	r := bindRequest{peer: peer, local: local, dir: dir}
	if sig := b.g.FindSignal(peer); sig != nil {
		b.install(r, sig)
		return
	}
	b.pending = append(b.pending, r)
}

func (b *binder) onEvent(e graph.Event) {
	if e.Kind != graph.SignalAdded {
		return
	}
	for i := 0; i < len(b.pending); i++ {
		r := b.pending[i]
		if r.peer != e.Signal.Name() {
			continue
		}
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		i--
		b.install(r, e.Signal)
	}
}

func (b *binder) install(r bindRequest, peer *graph.Signal) {
	src, dst := peer, r.local
	if r.dir == bindTo {
		src, dst = r.local, peer
	}
	m, err := b.g.NewMap(graph.MapConfig{
		Sources:     []*graph.Signal{src},
		Destination: dst,
	})
	if err != nil {
		debug.Log("bind", "%s -> %s: %v", src.Name(), dst.Name(), err)
		return
	}
	m.Push()
	debug.Log("bind", "bound %s -> %s", src.Name(), dst.Name())
}

func (b *binder) close() {
	b.pending = nil
	b.g.Unobserve(b.obs)
}
