// Package normalize applies the per-window, per-channel z-score transform used
// identically at training and inference time.
package normalize

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// flatTolerance scales with the channel mean so that a constant channel whose
// mean is not exactly representable still counts as flat.
const flatTolerance = 1e-12

// ZScore returns a copy of w where each channel is replaced by
// (value - mean) / std, with mean and population std taken over that window
// alone. w must be exactly (windowSize, channels) or a *emg.ShapeError is
// returned. Constant channels are rejected with *emg.ZeroVarianceError naming
// every flat channel.
func ZScore(w emg.Window, windowSize, channels int) (emg.Window, error) {
	if err := CheckShape(w, windowSize, channels); err != nil {
		return emg.Window{}, err
	}

	out := emg.Window{Start: w.Start, Label: w.Label, Samples: make([][]float64, windowSize)}
	for i := range out.Samples {
		out.Samples[i] = make([]float64, channels)
	}

	var flat []int
	col := make([]float64, windowSize)
	for c := 0; c < channels; c++ {
		for i, s := range w.Samples {
			col[i] = s[c]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std <= flatTolerance*math.Max(1, math.Abs(mean)) || math.IsNaN(std) {
			flat = append(flat, c)
			continue
		}
		for i, v := range col {
			out.Samples[i][c] = (v - mean) / std
		}
	}
	if len(flat) > 0 {
		return emg.Window{}, &emg.ZeroVarianceError{Channels: flat}
	}
	return out, nil
}

// CheckShape verifies that every row of w has exactly channels readings and
// that there are exactly windowSize rows.
func CheckShape(w emg.Window, windowSize, channels int) error {
	if len(w.Samples) != windowSize {
		return &emg.ShapeError{
			Expected: emg.Shape{windowSize, channels},
			Actual:   w.Shape(),
		}
	}
	for _, s := range w.Samples {
		if len(s) != channels {
			return &emg.ShapeError{
				Expected: emg.Shape{windowSize, channels},
				Actual:   emg.Shape{windowSize, len(s)},
			}
		}
	}
	return nil
}

// Batch wraps a normalized window as a batch of one: (1, windowSize, channels).
func Batch(w emg.Window) [][][]float64 {
	return [][][]float64{w.Samples}
}
