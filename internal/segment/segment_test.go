package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// ramp returns a recording whose channel c at sample i is i*10+c, so every
// value identifies its position.
func ramp(n, channels int) *emg.Recording {
	rec := emg.NewRecording(channels)
	for i := 0; i < n; i++ {
		s := make([]float64, channels)
		for c := range s {
			s[c] = float64(i*10 + c)
		}
		rec.Samples = append(rec.Samples, s)
	}
	return rec
}

func collect(rec *emg.Recording, size, step int) []emg.Window {
	var out []emg.Window
	for _, w := range Windows(rec, size, step) {
		out = append(out, w)
	}
	return out
}

func TestWindowsCountFormula(t *testing.T) {
	tests := []struct {
		n, size, step int
	}{
		{3500, 3000, 500},
		{2999, 3000, 500},
		{3000, 3000, 500},
		{10, 3, 1},
		{10, 3, 3},
		{10, 3, 5},
		{10, 10, 1},
		{0, 1, 1},
		{17, 4, 7},
	}
	for _, tt := range tests {
		ws := collect(ramp(tt.n, 2), tt.size, tt.step)
		want := 0
		if tt.n >= tt.size {
			want = (tt.n-tt.size)/tt.step + 1
		}
		assert.Equal(t, want, len(ws), "n=%d size=%d step=%d", tt.n, tt.size, tt.step)
		assert.Equal(t, want, Count(tt.n, tt.size, tt.step))
		for k, w := range ws {
			assert.Equal(t, k*tt.step, w.Start)
			assert.Len(t, w.Samples, tt.size)
			assert.Equal(t, float64(k*tt.step*10), w.Samples[0][0])
		}
	}
}

func TestWindowsDefaultGeometry(t *testing.T) {
	ws := collect(ramp(3500, 4), 3000, 500)
	require.Len(t, ws, 2)
	assert.Equal(t, 0, ws[0].Start)
	assert.Equal(t, 500, ws[1].Start)
	assert.Equal(t, float64(3499*10+3), ws[1].Samples[2999][3])
}

func TestWindowsShortRecordingIsEmpty(t *testing.T) {
	assert.Empty(t, collect(ramp(2999, 4), 3000, 500))
}

func TestWindowsRestartableAndStoppable(t *testing.T) {
	rec := ramp(100, 1)
	seq := Windows(rec, 10, 10)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, 10, first)
	assert.Equal(t, first, second)

	seen := 0
	for k := range seq {
		seen++
		if k == 2 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestWindowsInvalidGeometryYieldsNothing(t *testing.T) {
	assert.Empty(t, collect(ramp(10, 1), 0, 1))
	assert.Empty(t, collect(ramp(10, 1), 3, 0))
	assert.Equal(t, 0, Count(10, 3, 0))
}

func TestLabeledTagsWindows(t *testing.T) {
	for _, w := range Labeled(ramp(20, 2), "h", Params{WindowSize: 5, StepSize: 5}) {
		assert.Equal(t, "h", w.Label)
	}
}

func TestParams(t *testing.T) {
	assert.Equal(t, Params{WindowSize: 3000, StepSize: 500}, DefaultParams())
	assert.Equal(t, DefaultParams(), ParamsFromDuration(2000, 1.5, 0.25))
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{WindowSize: 0, StepSize: 1}.Validate())
	assert.Error(t, Params{WindowSize: 1, StepSize: -1}.Validate())
}
