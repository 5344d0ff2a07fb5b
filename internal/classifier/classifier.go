// Package classifier maps normalized EMG windows to gesture labels. The model
// itself is an artifact loaded from disk; this package owns the input contract
// (shape, normalization) and the output contract (label order, probabilities).
package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/normalize"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

// probabilityTolerance bounds how far a distribution may sum away from 1.
const probabilityTolerance = 1e-5

// ErrInvalidDistribution is returned when a model emits something that is not
// a probability distribution over its label set.
var ErrInvalidDistribution = errors.New("invalid probability distribution")

// Prediction is the outcome of one inference call.
type Prediction struct {
	// Label is the predicted class, or Unknown below the confidence floor.
	Label string `json:"label"`
	// Best is the arg-max class regardless of the confidence floor.
	Best string `json:"best"`
	// Confidence is the probability assigned to Best.
	Confidence float64 `json:"confidence"`
	// Probabilities has one entry per class in the label set.
	Probabilities map[string]float64 `json:"probabilities"`
}

// Known reports whether a gesture was recognized.
func (p Prediction) Known() bool {
	return p.Label != "" && p.Label != Unknown
}

// Options configure a Classifier.
type Options struct {
	WindowSize int
	Channels   int
	// MinConfidence is the probability below which a prediction is
	// reported as Unknown. Zero disables the floor.
	MinConfidence float64
}

// Classifier applies the shared preprocessing and maps model output indices
// to label names.
type Classifier struct {
	model  Predictor
	labels LabelSet
	opts   Options
}

// New wraps a predictor. If the predictor records its input shape, it must
// match opts.
func New(model Predictor, opts Options) (*Classifier, error) {
	labels := model.Labels()
	if err := labels.Validate(); err != nil {
		return nil, err
	}
	if opts.WindowSize <= 0 || opts.Channels <= 0 {
		return nil, fmt.Errorf("classifier input shape (%d, %d) is invalid", opts.WindowSize, opts.Channels)
	}
	if s, ok := model.(InputShaper); ok {
		w, c := s.InputShape()
		if w != opts.WindowSize || c != opts.Channels {
			return nil, &emg.ShapeError{
				Expected: emg.Shape{w, c},
				Actual:   emg.Shape{opts.WindowSize, opts.Channels},
			}
		}
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence must be within [0, 1], got %g", opts.MinConfidence)
	}
	return &Classifier{model: model, labels: labels, opts: opts}, nil
}

// Load reads a model artifact and wraps it. The window geometry comes from
// the artifact.
func Load(path string, minConfidence float64) (*Classifier, error) {
	m, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return New(m, Options{WindowSize: m.WindowSize, Channels: m.Channels, MinConfidence: minConfidence})
}

// Labels returns the label order used to decode predictions.
func (c *Classifier) Labels() LabelSet { return c.labels }

// InputShape returns (windowSize, channels).
func (c *Classifier) InputShape() (int, int) { return c.opts.WindowSize, c.opts.Channels }

// Preprocess checks the raw window shape and returns the normalized batch of
// one, (1, windowSize, channels).
func (c *Classifier) Preprocess(raw emg.Window) ([][][]float64, error) {
	w, err := normalize.ZScore(raw, c.opts.WindowSize, c.opts.Channels)
	if err != nil {
		return nil, err
	}
	return normalize.Batch(w), nil
}

// Predict runs the model on a preprocessed batch of exactly one window.
func (c *Classifier) Predict(batch [][][]float64) (Prediction, error) {
	if err := c.checkBatch(batch); err != nil {
		return Prediction{}, err
	}
	out, err := c.model.Predict(batch)
	if err != nil {
		return Prediction{}, fmt.Errorf("model inference: %w", err)
	}
	if len(out) != 1 {
		return Prediction{}, fmt.Errorf("%w: model returned %d rows for a batch of 1", ErrInvalidDistribution, len(out))
	}
	return c.decode(out[0])
}

// Recognize normalizes a raw window and predicts its gesture.
func (c *Classifier) Recognize(raw emg.Window) (Prediction, error) {
	batch, err := c.Preprocess(raw)
	if err != nil {
		return Prediction{}, err
	}
	return c.Predict(batch)
}

// PredictCSV reads a headerless window CSV and predicts its gesture.
func (c *Classifier) PredictCSV(path string) (Prediction, error) {
	rec, err := recording.ReadCSV(path)
	if err != nil {
		return Prediction{}, err
	}
	return c.Recognize(emg.Window{Samples: rec.Samples})
}

func (c *Classifier) checkBatch(batch [][][]float64) error {
	want := emg.Shape{1, c.opts.WindowSize, c.opts.Channels}
	got := emg.Shape{len(batch), 0, 0}
	if len(batch) > 0 {
		got[1] = len(batch[0])
		if len(batch[0]) > 0 {
			got[2] = len(batch[0][0])
		}
	}
	if !got.Equal(want) {
		return &emg.ShapeError{Expected: want, Actual: got}
	}
	for _, row := range batch[0] {
		if len(row) != c.opts.Channels {
			return &emg.ShapeError{Expected: want, Actual: emg.Shape{1, c.opts.WindowSize, len(row)}}
		}
	}
	return nil
}

func (c *Classifier) decode(probs []float64) (Prediction, error) {
	if len(probs) != c.labels.Len() {
		return Prediction{}, fmt.Errorf("%w: %d probabilities for %d labels",
			ErrInvalidDistribution, len(probs), c.labels.Len())
	}
	sum, best := 0.0, 0
	for i, p := range probs {
		if p < 0 || math.IsNaN(p) {
			return Prediction{}, fmt.Errorf("%w: probability %d is %g", ErrInvalidDistribution, i, p)
		}
		sum += p
		if p > probs[best] {
			best = i
		}
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return Prediction{}, fmt.Errorf("%w: probabilities sum to %g", ErrInvalidDistribution, sum)
	}

	pred := Prediction{
		Best:          c.labels.Name(best),
		Confidence:    probs[best],
		Probabilities: make(map[string]float64, len(probs)),
	}
	for i, p := range probs {
		pred.Probabilities[c.labels.Name(i)] = p
	}
	pred.Label = pred.Best
	if pred.Confidence < c.opts.MinConfidence {
		pred.Label = Unknown
	}
	return pred, nil
}
