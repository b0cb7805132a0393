package looper

import (
	"math/rand"
	"testing"

	"github.com/mathiasbredholt/GestureLooper/graph"
)

// sources builds the feedback input vector in binding order
func sources(length, division, record, modulation float64, send []float64) [][]float64 {
	src := make([][]float64, numSources)
	src[srcLength] = []float64{length}
	src[srcDivision] = []float64{division}
	src[srcRecordCapture] = []float64{record}
	src[srcSend] = send
	src[srcRecordBlend] = []float64{record}
	src[srcModulation] = []float64{modulation}
	return src
}

func TestFeedbackPassThrough(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)
	hist.Push([]float64{42}) // stale history must not leak through

	got := expr(sources(1, 16, 1, 0, []float64{0.6}), hist)
	if len(got) != 1 || got[0] != 0.6 {
		t.Fatalf("record=1 output = %v, want [0.6]", got)
	}
}

func TestFeedbackRecirculates(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		hist.Push([]float64{v})
	}

	// length 1, division 3: read back 3 samples
	got := expr(sources(1, 3, 0, 0, []float64{99}), hist)
	if got[0] != 3 {
		t.Fatalf("record=0 output = %v, want the sample 3 back", got[0])
	}
}

func TestFeedbackBlend(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)
	hist.Push([]float64{1})
	hist.Push([]float64{8})
	hist.Push([]float64{9})

	// delay 2, record 0.25: 0.25*4 + 0.75*8
	got := expr(sources(2, 1, 0.25, 0, []float64{4}), hist)
	if got[0] != 7 {
		t.Fatalf("blend output = %v, want 7", got[0])
	}
}

func TestFeedbackDelayTruncates(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)
	hist.Push([]float64{5})

	// fractional delay below one sample reads the newest
	got := expr(sources(0.9, 1, 0, 0, []float64{99}), hist)
	if got[0] != 5 {
		t.Fatalf("sub-sample delay output = %v, want newest 5", got[0])
	}
}

func TestFeedbackDelayClampsToCapacity(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(4, 1)
	for _, v := range []float64{1, 2, 3, 4} {
		hist.Push([]float64{v})
	}

	// length 100 * division 96 is far past capacity: read the oldest
	got := expr(sources(100, 96, 0, 0, []float64{99}), hist)
	if got[0] != 1 {
		t.Fatalf("overlong delay output = %v, want oldest 1", got[0])
	}
}

func TestFeedbackNoiseBounds(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)

	// record 0 against silent history isolates the noise term
	seen := make(map[float64]bool)
	for i := 0; i < 100; i++ {
		got := expr(sources(1, 96, 0, 1, []float64{0}), hist)
		if got[0] < -1 || got[0] >= 1 {
			t.Fatalf("noise sample %v outside [-1, 1)", got[0])
		}
		seen[got[0]] = true
	}
	if len(seen) < 2 {
		t.Fatal("noise never varied")
	}
}

func TestFeedbackNoiseScales(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 1)

	for i := 0; i < 100; i++ {
		got := expr(sources(1, 96, 0, 0.25, []float64{0}), hist)
		if got[0] < -0.25 || got[0] >= 0.25 {
			t.Fatalf("noise sample %v outside [-0.25, 0.25)", got[0])
		}
	}
}

func TestFeedbackVector(t *testing.T) {
	expr := feedbackExpr(rand.New(rand.NewSource(1)))
	hist := graph.NewHistory(historyLen, 2)

	got := expr(sources(1, 16, 1, 0, []float64{0.25, 0.75}), hist)
	if len(got) != 2 || got[0] != 0.25 || got[1] != 0.75 {
		t.Fatalf("vector output = %v, want [0.25 0.75]", got)
	}
}
