// Package audio implements stateful PCM16 resampling and telephony codec
// conversions (μ-law, A-law) used at every boundary where bytes cross
// between the switch, the transport, and the AI providers.
package audio

import "fmt"

// Resampler converts PCM16 samples between sample rates using linear
// interpolation, carrying state across chunk boundaries so that resampling
// C1 then C2 with carried state produces the same waveform (to within one
// sample of interpolation error) as resampling C1||C2 in one call.
//
// The carried state is the last input sample of the previous chunk. On the
// next call it is logically prepended to the new input and every output
// position is computed against that extended sequence, so the first new
// output sample interpolates smoothly across the chunk boundary. This is
// deliberate: an endpoint-normalized (linspace-style) resampler recomputes
// the input/output ratio per chunk and drifts out of phase, producing an
// audible ~50Hz buzz at typical 20ms chunk rates.
type Resampler struct {
	inRate  int
	outRate int

	havePrev bool
	prev     int16

	// pos is the fractional input-sample position of the next output
	// sample, measured from the start of the (virtual) prepended-prev
	// sequence. It persists across calls.
	pos float64
}

// NewResampler creates a Resampler converting from inRate to outRate, both
// in Hz. Both must be positive.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resampler rates in=%d out=%d", inRate, outRate)
	}
	return &Resampler{inRate: inRate, outRate: outRate}, nil
}

// OutputLen returns the exact number of output samples Process will produce
// for an input of length n, matching round(n * outRate / inRate).
func (r *Resampler) OutputLen(n int) int {
	if r.inRate == r.outRate {
		return n
	}
	return roundDiv(n*r.outRate, r.inRate)
}

// Reset clears carried state, as if resampling were starting fresh.
func (r *Resampler) Reset() {
	r.havePrev = false
	r.prev = 0
	r.pos = 0
}

// Process resamples in and returns exactly OutputLen(len(in)) samples,
// updating carried state for the next call.
func (r *Resampler) Process(in []int16) []int16 {
	if r.inRate == r.outRate {
		out := make([]int16, len(in))
		copy(out, in)
		if len(in) > 0 {
			r.prev = in[len(in)-1]
			r.havePrev = true
		}
		return out
	}
	if len(in) == 0 {
		return nil
	}

	step := float64(r.inRate) / float64(r.outRate)
	n := r.OutputLen(len(in))
	out := make([]int16, n)

	// Build the extended sequence conceptually: [prev?, in...]. Sample
	// positions are expressed relative to `in[0]` being at index 0 (and
	// prev, if present, at index -1).
	var start float64
	if r.havePrev {
		start = r.pos
	} else {
		// No carried state: first call, classic sample-and-hold start at 0.
		start = 0
	}

	get := func(idx int) float64 {
		if idx < 0 {
			if r.havePrev {
				return float64(r.prev)
			}
			return float64(in[0])
		}
		if idx >= len(in) {
			return float64(in[len(in)-1])
		}
		return float64(in[idx])
	}

	for i := 0; i < n; i++ {
		fpos := start + float64(i)*step
		i0 := int(fpos)
		frac := fpos - float64(i0)
		if frac < 0 {
			i0--
			frac += 1
		}
		s0 := get(i0)
		s1 := get(i0 + 1)
		v := s0 + (s1-s0)*frac
		out[i] = clampInt16(v)
	}

	// Carry state: the next call's position-zero should continue exactly
	// where this call left off. The next output sample after this chunk
	// would be at input-relative position `start + n*step`; subtract
	// len(in) to re-base it against the next chunk's in[0].
	r.pos = start + float64(n)*step - float64(len(in))
	r.prev = in[len(in)-1]
	r.havePrev = true

	return out
}

func roundDiv(num, den int) int {
	if den == 0 {
		return 0
	}
	q := num / den
	rem := num % den
	if rem*2 >= den {
		q++
	}
	return q
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
