package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

func TestFeaturesAlternatingSignal(t *testing.T) {
	// +1,-1,+1,... crosses zero and changes slope at every step.
	w := emg.Window{Samples: make([][]float64, 10)}
	for i := range w.Samples {
		v := 1.0
		if i%2 == 1 {
			v = -1
		}
		w.Samples[i] = []float64{v}
	}
	f := Features(w, 1)
	require.Len(t, f, FeaturesPerChannel)
	assert.InDelta(t, 1.0, f[0], 1e-12, "mean absolute value")
	assert.InDelta(t, 2.0, f[1], 1e-12, "waveform length")
	assert.InDelta(t, 1.0, f[2], 1e-12, "zero crossing rate")
	assert.InDelta(t, 1.0, f[3], 1e-12, "slope sign change rate")
}

func TestFeaturesRampHasNoCrossings(t *testing.T) {
	w := emg.Window{Samples: make([][]float64, 20)}
	for i := range w.Samples {
		w.Samples[i] = []float64{float64(i + 1), -float64(i + 1)}
	}
	f := Features(w, 2)
	require.Len(t, f, 2*FeaturesPerChannel)
	assert.Zero(t, f[2])
	assert.Zero(t, f[3])
	assert.Zero(t, f[FeaturesPerChannel+2])
}

func TestFeaturesTinyWindow(t *testing.T) {
	f := Features(emg.Window{Samples: [][]float64{{1, 2}}}, 2)
	assert.Equal(t, make([]float64, 2*FeaturesPerChannel), f)
}
