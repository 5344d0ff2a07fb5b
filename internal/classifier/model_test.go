package classifier

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/emg.gesture/internal/normalize"
)

func trainedModel(t *testing.T) *Model {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	ds := &Dataset{Labels: NewLabelSet("i", "b", "h", "e")}
	for cls := 0; cls < 4; cls++ {
		for k := 0; k < 15; k++ {
			w, err := normalize.ZScore(synthWindow(rng, cls, 200, 4), 200, 4)
			require.NoError(t, err)
			ds.Add(w, cls)
		}
	}
	m, err := Train(ds, 200, 4, TrainOptions{Epochs: 200, LearningRate: 0.5, L2: 1e-3})
	require.NoError(t, err)
	return m
}

func TestModelSaveLoadPreservesLabelOrder(t *testing.T) {
	m := trainedModel(t)
	path := filepath.Join(t.TempDir(), "models", "emg.json")
	require.NoError(t, m.Save(path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "b", "h", "e"}, loaded.Labels().Names)
	if diff := cmp.Diff(m.Weights, loaded.Weights); diff != "" {
		t.Errorf("weights changed on reload (-want +got):\n%s", diff)
	}
	w, c := loaded.InputShape()
	assert.Equal(t, 200, w)
	assert.Equal(t, 4, c)
}

func TestModelPredictDistribution(t *testing.T) {
	m := trainedModel(t)
	rng := rand.New(rand.NewSource(9))
	for cls := 0; cls < 4; cls++ {
		w, err := normalize.ZScore(synthWindow(rng, cls, 200, 4), 200, 4)
		require.NoError(t, err)
		out, err := m.Predict(normalize.Batch(w))
		require.NoError(t, err)
		require.Len(t, out, 1)
		require.Len(t, out[0], 4)
		assert.InDelta(t, 1, floats.Sum(out[0]), 1e-5)
		assert.Equal(t, cls, floats.MaxIdx(out[0]))
	}
}

func TestModelPredictRejectsWrongWindow(t *testing.T) {
	m := trainedModel(t)
	_, err := m.Predict([][][]float64{make([][]float64, 10)})
	assert.Error(t, err)
}

func TestModelValidate(t *testing.T) {
	good := trainedModel(t)
	require.NoError(t, good.Validate())

	tests := []struct {
		name   string
		mutate func(m *Model)
	}{
		{"format", func(m *Model) { m.FormatVersion = 99 }},
		{"labels", func(m *Model) { m.Classes = NewLabelSet("a", "a", "b", "c") }},
		{"shape", func(m *Model) { m.WindowSize = 0 }},
		{"stats", func(m *Model) { m.FeatureMean = m.FeatureMean[:3] }},
		{"weights", func(m *Model) { m.Weights = m.Weights[:2] }},
		{"row", func(m *Model) { m.Weights[1] = m.Weights[1][:1] }},
		{"std", func(m *Model) { m.FeatureStd[0] = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := trainedModel(t)
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadModel(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadModel(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"format_version":1}`), 0o644))
	_, err = LoadModel(invalid)
	assert.Error(t, err)
}
