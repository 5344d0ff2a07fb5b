package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/classifier"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeCaptures writes four single-column captures at rate Hz covering
// periods protocol cycles. During each gesture hold one channel carries a
// fast oscillation.
func writeCaptures(t *testing.T, dir string, rate float64, periods int) []string {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	n := int(16 * rate * float64(periods))
	cols := make([]strings.Builder, 4)
	for i := 0; i < n; i++ {
		sec := math.Mod(float64(i)/rate, 16)
		active := -1
		if math.Mod(sec, 4) < 2 {
			active = int(sec / 4)
		}
		for c := range cols {
			v := 0.1*rng.NormFloat64() + 0.2*math.Sin(2*math.Pi*float64(i)/50+float64(c))
			if c == active {
				v += math.Sin(2 * math.Pi * float64(i) / 4)
			}
			fmt.Fprintf(&cols[c], "%g\n", 1+v)
		}
	}
	paths := make([]string, 4)
	for c := range cols {
		paths[c] = filepath.Join(dir, fmt.Sprintf("ch%d.csv", c+1))
		require.NoError(t, os.WriteFile(paths[c], []byte(cols[c].String()), 0o644))
	}
	return paths
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "absent.yaml")
	captures := writeCaptures(t, dir, 100, 3)

	extracted := filepath.Join(dir, "extracted")
	out, err := run(t, append([]string{"extract", "--config", cfg, "--rate", "100", "--out", extracted}, captures...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "b: 600 samples")

	windows := filepath.Join(dir, "windows")
	var recs []string
	for _, l := range []string{"i", "b", "h", "e"} {
		recs = append(recs, filepath.Join(extracted, l+".csv"))
	}
	out, err = run(t, append([]string{"segment", "--config", cfg, "--window", "100", "--step", "20", "--out", windows}, recs...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "e: 600 samples -> 26 windows")

	model := filepath.Join(dir, "model.json")
	out, err = run(t, "train", "--config", cfg, "--data", windows, "--out", model,
		"--window", "100", "--channels", "4", "--epochs", "300")
	require.NoError(t, err, out)
	m, err := classifier.LoadModel(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"i", "b", "h", "e"}, m.Classes.Names)
	assert.GreaterOrEqual(t, m.Accuracy, 0.75)

	out, err = run(t, "predict", "--config", cfg, "--model", model, filepath.Join(windows, "h", "h_0003.csv"))
	require.NoError(t, err, out)
	var res predictResult
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &res))
	assert.Equal(t, "h", res.Best)
	assert.Len(t, res.Probabilities, 4)
}

func TestPredictReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "absent.yaml")
	m := &classifier.Model{
		FormatVersion: classifier.ModelFormatVersion,
		Classes:       classifier.NewLabelSet("i", "b"),
		WindowSize:    10,
		Channels:      1,
		FeatureMean:   make([]float64, classifier.FeaturesPerChannel),
		FeatureStd:    []float64{1, 1, 1, 1},
		Weights:       [][]float64{make([]float64, classifier.FeaturesPerChannel), make([]float64, classifier.FeaturesPerChannel)},
		Bias:          []float64{0, 0},
	}
	model := filepath.Join(dir, "model.json")
	require.NoError(t, m.Save(model))

	short := filepath.Join(dir, "short.csv")
	require.NoError(t, os.WriteFile(short, []byte("1\n2\n3\n"), 0o644))

	out, err := run(t, "predict", "--config", cfg, "--model", model, short)
	require.Error(t, err)
	assert.Contains(t, out, `"error"`)
}

func TestMigrateStatus(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "absent.yaml")
	dbPath := filepath.Join(dir, "emg.db")

	out, err := run(t, "migrate", "status", "--config", cfg, "--db", dbPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "version 0 of")
	assert.Contains(t, out, "pending")

	out, err = run(t, "migrate", "up", "--config", cfg, "--db", dbPath)
	require.NoError(t, err, out)
	assert.NotContains(t, out, "pending")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "emgctl dev"), out)
}

func TestInvalidConfigFails(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "emg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("segment:\n  window_size: -1\n"), 0o644))
	_, err := run(t, "segment", "--config", cfg, "x.csv")
	assert.ErrorContains(t, err, "segment window")
}
