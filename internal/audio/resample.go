package audio

import "math"

// Resample converts w to rate with linear interpolation. It returns w
// unchanged when the rate already matches.
func Resample(w *Waveform, rate int) *Waveform {
	if w == nil || w.SampleRate == rate || w.SampleRate <= 0 || rate <= 0 {
		return w
	}

	n := len(w.Samples)
	outLen := int(math.Round(float64(n) * float64(rate) / float64(w.SampleRate)))
	out := make([]float32, outLen)
	step := float64(w.SampleRate) / float64(rate)

	for i := range out {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= n-1 {
			out[i] = w.Samples[n-1]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = w.Samples[i0]*(1-frac) + w.Samples[i0+1]*frac
	}

	return &Waveform{Samples: out, SampleRate: rate}
}
