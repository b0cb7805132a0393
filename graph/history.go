package graph

// History is a fixed-size ring of a map destination's past values. The
// ring starts zeroed, so lookbacks that reach before the first update
// read silence rather than garbage.
type History struct {
	buf  [][]float64
	head int // next slot to write
}

// NewHistory returns a ring holding n vectors of the given width.
// Capacities below 1 are raised to 1.
func NewHistory(n, width int) *History {
	if n < 1 {
		n = 1
	}
	if width < 1 {
		width = 1
	}
	buf := make([][]float64, n)
	for i := range buf {
		buf[i] = make([]float64, width)
	}
	return &History{buf: buf}
}

// Cap returns the ring capacity in samples
func (h *History) Cap() int { return len(h.buf) }

// Push records v as the newest sample, overwriting the oldest
func (h *History) Push(v []float64) {
	copy(h.buf[h.head], v)
	h.head = (h.head + 1) % len(h.buf)
}

// Past returns the sample n pushes ago. n is clamped to [1, Cap]:
// Past(1) is the newest sample and lookbacks beyond capacity read the
// oldest slot. The returned slice is owned by the ring; callers must
// not modify or retain it.
func (h *History) Past(n int) []float64 {
	if n < 1 {
		n = 1
	}
	if n > len(h.buf) {
		n = len(h.buf)
	}
	i := h.head - n
	if i < 0 {
		i += len(h.buf)
	}
	return h.buf[i]
}
