package looper

import (
	"math/rand"

	"github.com/mathiasbredholt/GestureLooper/graph"
)

// Source indexes of the feedback map. The recurrence reads its inputs
// by position: the delay terms first, then the blend, the captured
// frame and the noise amount. Record is bound twice because it gates
// both the capture term and the playback term.
const (
	srcLength = iota
	srcDivision
	srcRecordCapture
	srcSend
	srcRecordBlend
	srcModulation
	numSources
)

// historyLen is the recirculation buffer capacity in ticks. Loops
// longer than this play back the oldest sample instead.
const historyLen = 100

// feedbackExpr returns the recurrence that turns local/send frames
// into local/recv frames:
//
//	delay = length * division
//	recv  = record*send + (1-record)*past(delay) + modulation*noise
//
// noise is uniform in [-1, 1). With record at 1 the captured frame
// passes straight through; at 0 the buffer recirculates with a period
// of one loop length.
func feedbackExpr(rng *rand.Rand) graph.ExprFunc {
	return func(src [][]float64, hist *graph.History) []float64 {
		delay := int(src[srcLength][0] * src[srcDivision][0])
		capture := src[srcRecordCapture][0]
		blend := src[srcRecordBlend][0]
		mod := src[srcModulation][0]
		send := src[srcSend]
		past := hist.Past(delay)

		out := make([]float64, len(send))
		for i := range out {
			out[i] = capture*send[i] + (1-blend)*past[i] + mod*(2*rng.Float64()-1)
		}
		return out
	}
}
