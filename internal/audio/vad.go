package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	fluxRatio = 1.75
	fluxFloor = 1e-3
)

// FluxDetector flags speech onsets from jumps in spectral flux between
// consecutive frames.
type FluxDetector struct {
	prevMag []float64
	last    float64
}

func NewFluxDetector() *FluxDetector { return &FluxDetector{} }

// Flux returns the positive spectral difference between frame and the
// previous frame passed in.
func (d *FluxDetector) Flux(frame []float32) float64 {
	in := make([]float64, len(frame))
	for i, x := range frame {
		in[i] = float64(x)
	}

	spec := fft.FFTReal(in)
	half := len(spec)/2 + 1
	if half > len(spec) {
		half = len(spec)
	}

	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spec[i])
	}

	var flux float64
	if len(d.prevMag) == len(mag) {
		for i := range mag {
			if diff := mag[i] - d.prevMag[i]; diff > 0 {
				flux += diff
			}
		}
	} else {
		for _, m := range mag {
			flux += m
		}
	}
	d.prevMag = mag

	return flux
}

// Onset reports whether frame starts a burst of energy compared to the
// frames before it.
func (d *FluxDetector) Onset(frame []float32) bool {
	flux := d.Flux(frame)
	prev := d.last
	d.last = flux
	return flux >= math.Max(prev, fluxFloor)*fluxRatio
}

func (d *FluxDetector) Reset() {
	d.prevMag = nil
	d.last = 0
}
