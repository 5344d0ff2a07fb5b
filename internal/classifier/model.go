package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// ModelFormatVersion is the artifact layout written by Save.
const ModelFormatVersion = 1

// Predictor is the contract any gesture model must meet: a batch of
// normalized windows (batch, windowSize, channels) in, one probability vector
// per window out, ordered as Labels().
type Predictor interface {
	Predict(batch [][][]float64) ([][]float64, error)
	Labels() LabelSet
}

// InputShaper is implemented by predictors that know the window geometry they
// were trained on.
type InputShaper interface {
	InputShape() (windowSize, channels int)
}

// Model is the on-disk gesture model: a softmax layer over standardized
// time-domain features. Weights is (classes x features).
type Model struct {
	FormatVersion int         `json:"format_version"`
	Classes       LabelSet    `json:"labels"`
	WindowSize    int         `json:"window_size"`
	Channels      int         `json:"channels"`
	FeatureMean   []float64   `json:"feature_mean"`
	FeatureStd    []float64   `json:"feature_std"`
	Weights       [][]float64 `json:"weights"`
	Bias          []float64   `json:"bias"`
	TrainedAt     time.Time   `json:"trained_at"`
	Accuracy      float64     `json:"accuracy,omitempty"`
}

// Labels returns the class order of the output layer.
func (m *Model) Labels() LabelSet { return m.Classes }

// InputShape returns the window geometry the model was trained on.
func (m *Model) InputShape() (int, int) { return m.WindowSize, m.Channels }

// NumFeatures returns the input width of the softmax layer.
func (m *Model) NumFeatures() int { return m.Channels * FeaturesPerChannel }

// Validate checks the artifact is internally consistent.
func (m *Model) Validate() error {
	if m.FormatVersion != ModelFormatVersion {
		return fmt.Errorf("unsupported model format version %d", m.FormatVersion)
	}
	if err := m.Classes.Validate(); err != nil {
		return fmt.Errorf("model labels: %w", err)
	}
	if m.WindowSize <= 0 || m.Channels <= 0 {
		return fmt.Errorf("model input shape (%d, %d) is invalid", m.WindowSize, m.Channels)
	}
	d, k := m.NumFeatures(), m.Classes.Len()
	if len(m.FeatureMean) != d || len(m.FeatureStd) != d {
		return fmt.Errorf("model feature statistics have %d/%d entries, want %d",
			len(m.FeatureMean), len(m.FeatureStd), d)
	}
	if len(m.Weights) != k || len(m.Bias) != k {
		return fmt.Errorf("model has %d weight rows and %d biases, want %d", len(m.Weights), len(m.Bias), k)
	}
	for i, row := range m.Weights {
		if len(row) != d {
			return fmt.Errorf("weight row %d has %d entries, want %d", i, len(row), d)
		}
	}
	for i, s := range m.FeatureStd {
		if s <= 0 {
			return fmt.Errorf("feature %d has non-positive std %g", i, s)
		}
	}
	return nil
}

// Predict returns class probabilities for each window in the batch.
func (m *Model) Predict(batch [][][]float64) ([][]float64, error) {
	k, d := m.Classes.Len(), m.NumFeatures()
	w := mat.NewDense(k, d, nil)
	for i, row := range m.Weights {
		w.SetRow(i, row)
	}

	out := make([][]float64, len(batch))
	for b, samples := range batch {
		win := emg.Window{Samples: samples}
		if len(samples) != m.WindowSize {
			return nil, &emg.ShapeError{
				Expected: emg.Shape{len(batch), m.WindowSize, m.Channels},
				Actual:   emg.Shape{len(batch), len(samples), win.Shape()[1]},
			}
		}
		x := mat.NewVecDense(d, m.standardize(Features(win, m.Channels)))
		logits := mat.NewVecDense(k, nil)
		logits.MulVec(w, x)
		logits.AddVec(logits, mat.NewVecDense(k, append([]float64(nil), m.Bias...)))
		out[b] = softmax(logits.RawVector().Data)
	}
	return out, nil
}

func (m *Model) standardize(f []float64) []float64 {
	for i := range f {
		f[i] = (f[i] - m.FeatureMean[i]) / m.FeatureStd[i]
	}
	return f
}

// softmax returns exp(z)/sum(exp(z)) computed with the max subtracted.
func softmax(z []float64) []float64 {
	p := make([]float64, len(z))
	maxZ := floats.Max(z)
	for i, v := range z {
		p[i] = math.Exp(v - maxZ)
	}
	floats.Scale(1/floats.Sum(p), p)
	return p
}

// LoadModel reads and validates a model artifact.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &emg.FileIOError{Op: "read model", Path: path, Err: err}
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the artifact as indented JSON.
func (m *Model) Save(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &emg.FileIOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &emg.FileIOError{Op: "write model", Path: path, Err: err}
	}
	return nil
}
