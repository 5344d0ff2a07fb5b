package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// FeaturesPerChannel is the number of time-domain features extracted from
// each channel.
const FeaturesPerChannel = 4

// zcThreshold suppresses zero crossings and slope changes caused by noise
// around the (normalized) baseline.
const zcThreshold = 0.01

// Features extracts the Hudgins time-domain set from a normalized window:
// per channel mean absolute value, waveform length, zero crossing rate and
// slope sign change rate. The result is laid out channel by channel.
func Features(w emg.Window, channels int) []float64 {
	out := make([]float64, 0, channels*FeaturesPerChannel)
	n := len(w.Samples)
	if n < 3 {
		return make([]float64, channels*FeaturesPerChannel)
	}
	diff := make([]float64, n-1)
	for c := 0; c < channels; c++ {
		col := w.Column(c)
		floats.SubTo(diff, col[1:], col[:n-1])

		mav := floats.Norm(col, 1) / float64(n)
		wl := floats.Norm(diff, 1) / float64(n-1)

		zc, ssc := 0, 0
		for i := 1; i < n; i++ {
			if col[i-1]*col[i] < 0 && math.Abs(col[i-1]-col[i]) >= zcThreshold {
				zc++
			}
		}
		for i := 1; i < n-1; i++ {
			if diff[i-1]*diff[i] < 0 && (math.Abs(diff[i-1]) >= zcThreshold || math.Abs(diff[i]) >= zcThreshold) {
				ssc++
			}
		}
		out = append(out, mav, wl, float64(zc)/float64(n-1), float64(ssc)/float64(n-2))
	}
	return out
}
