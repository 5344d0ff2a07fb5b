// Package segment cuts continuous recordings into fixed-length training
// windows and, upstream of that, splits a protocol recording into per-label
// super-segments.
package segment

import (
	"fmt"
	"iter"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// Params fixes the window geometry in samples. StepSize smaller than
// WindowSize gives overlapping windows.
type Params struct {
	WindowSize int `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	StepSize   int `json:"step_size" yaml:"step_size" mapstructure:"step_size"`
}

// DefaultParams returns 1.5 s windows every 0.25 s at 2 kHz.
func DefaultParams() Params {
	return Params{WindowSize: emg.DefaultWindowSize, StepSize: emg.DefaultStepSize}
}

// ParamsFromDuration converts window and step lengths in seconds to samples.
func ParamsFromDuration(sampleRate, window, step float64) Params {
	return Params{WindowSize: int(window * sampleRate), StepSize: int(step * sampleRate)}
}

// Validate checks that both sizes are positive.
func (p Params) Validate() error {
	if p.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", p.WindowSize)
	}
	if p.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %d", p.StepSize)
	}
	return nil
}

// Count returns how many windows Windows yields for a recording of length n:
// floor((n-size)/step)+1 when n >= size, else 0.
func Count(n, size, step int) int {
	if size <= 0 || step <= 0 || n < size {
		return 0
	}
	return (n-size)/step + 1
}

// Windows yields (k, window) pairs where window k covers samples
// [k*step, k*step+size). The tail that cannot fill a whole window is dropped.
// The sequence is a pure function of its inputs and may be ranged over again.
// Window samples alias the recording's rows.
func Windows(rec *emg.Recording, size, step int) iter.Seq2[int, emg.Window] {
	return func(yield func(int, emg.Window) bool) {
		if size <= 0 || step <= 0 {
			return
		}
		n := rec.Len()
		for k, start := 0, 0; start+size <= n; k, start = k+1, start+step {
			w := emg.Window{Start: start, Samples: rec.Samples[start : start+size]}
			if !yield(k, w) {
				return
			}
		}
	}
}

// Labeled is Windows with every window tagged with label.
func Labeled(rec *emg.Recording, label string, p Params) iter.Seq2[int, emg.Window] {
	return func(yield func(int, emg.Window) bool) {
		for k, w := range Windows(rec, p.WindowSize, p.StepSize) {
			w.Label = label
			if !yield(k, w) {
				return
			}
		}
	}
}
