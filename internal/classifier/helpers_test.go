package classifier

import (
	"math"
	"math/rand"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// synthWindow returns a raw window for class cls: channel cls oscillates fast,
// the others slowly, all with noise and a per-channel offset and gain so that
// only the per-window normalization makes them comparable.
func synthWindow(rng *rand.Rand, cls, n, channels int) emg.Window {
	w := emg.Window{Samples: make([][]float64, n)}
	phase := make([]float64, channels)
	for c := range phase {
		phase[c] = rng.Float64() * 2 * math.Pi
	}
	for i := range w.Samples {
		s := make([]float64, channels)
		for c := range s {
			cycles := 3.0
			if c == cls {
				cycles = 40
			}
			gain := 0.2 + float64(c)
			s[c] = 50*float64(c) + gain*(math.Sin(2*math.Pi*cycles*float64(i)/float64(n)+phase[c])+0.05*rng.NormFloat64())
		}
		w.Samples[i] = s
	}
	return w
}

// fixedPredictor returns the same output for every call.
type fixedPredictor struct {
	labels LabelSet
	out    []float64
	calls  int
}

func (f *fixedPredictor) Predict(batch [][][]float64) ([][]float64, error) {
	f.calls++
	rows := make([][]float64, len(batch))
	for i := range rows {
		rows[i] = append([]float64(nil), f.out...)
	}
	return rows, nil
}

func (f *fixedPredictor) Labels() LabelSet { return f.labels }
