package metrics

import (
	"fmt"
	"time"
)

// RTF returns the real-time factor of one transcription: wall-clock
// processing time divided by the audio duration. Values below 1.0 are
// faster than real time.
func RTF(elapsed, audio time.Duration) (float64, error) {
	if audio <= 0 {
		return 0, fmt.Errorf("metrics: rtf: audio duration must be positive, got %s", audio)
	}
	return elapsed.Seconds() / audio.Seconds(), nil
}

// MeanRTF returns the arithmetic mean of per-sample RTF values, or 0 for none.
func MeanRTF(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
