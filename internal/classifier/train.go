package classifier

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/emg.gesture/internal/monitoring"
)

// TrainOptions control the softmax fit.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
	// LogEvery logs the training loss every n epochs; zero disables.
	LogEvery int
}

// DefaultTrainOptions returns settings that converge on the rig's data.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Epochs: 500, LearningRate: 0.5, L2: 1e-3}
}

// Train fits a softmax layer on the Hudgins features of the dataset's
// windows by full-batch gradient descent.
func Train(ds *Dataset, windowSize, channels int, opts TrainOptions) (*Model, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("training set is empty")
	}
	if opts.Epochs <= 0 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("epochs and learning rate must be positive")
	}
	k := ds.Labels.Len()
	d := channels * FeaturesPerChannel
	n := ds.Len()

	x := mat.NewDense(n, d, nil)
	for i, w := range ds.Windows {
		x.SetRow(i, Features(w, channels))
	}

	mean := make([]float64, d)
	std := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
		if std[j] == 0 || math.IsNaN(std[j]) {
			std[j] = 1
		}
		for i := 0; i < n; i++ {
			x.Set(i, j, (x.At(i, j)-mean[j])/std[j])
		}
	}

	y := mat.NewDense(n, k, nil)
	for i, t := range ds.Targets {
		if t < 0 || t >= k {
			return nil, fmt.Errorf("sample %d has target %d outside %d classes", i, t, k)
		}
		y.Set(i, t, 1)
	}

	w := mat.NewDense(k, d, nil)
	b := make([]float64, k)
	logits := mat.NewDense(n, k, nil)
	grad := mat.NewDense(n, k, nil)
	gradW := mat.NewDense(k, d, nil)

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		logits.Mul(x, w.T())
		loss := 0.0
		for i := 0; i < n; i++ {
			row := logits.RawRowView(i)
			for j := range row {
				row[j] += b[j]
			}
			p := softmax(row)
			for j := range p {
				grad.Set(i, j, (p[j]-y.At(i, j))/float64(n))
			}
			loss -= math.Log(math.Max(p[ds.Targets[i]], 1e-12))
		}

		gradW.Mul(grad.T(), x)
		gradW.Apply(func(i, j int, v float64) float64 { return v + opts.L2*w.At(i, j) }, gradW)
		gradW.Scale(opts.LearningRate, gradW)
		w.Sub(w, gradW)
		for j := 0; j < k; j++ {
			b[j] -= opts.LearningRate * mat.Sum(grad.ColView(j))
		}

		if opts.LogEvery > 0 && epoch%opts.LogEvery == 0 {
			monitoring.Logf("train: epoch %d loss %.4f", epoch, loss/float64(n))
		}
	}

	m := &Model{
		FormatVersion: ModelFormatVersion,
		Classes:       ds.Labels,
		WindowSize:    windowSize,
		Channels:      channels,
		FeatureMean:   mean,
		FeatureStd:    std,
		Weights:       make([][]float64, k),
		Bias:          b,
		TrainedAt:     time.Now().UTC(),
	}
	for i := range m.Weights {
		m.Weights[i] = mat.Row(nil, i, w)
	}
	return m, m.Validate()
}

// Evaluate returns the fraction of the dataset the predictor classifies
// correctly by arg-max.
func Evaluate(p Predictor, ds *Dataset) (float64, error) {
	if ds.Len() == 0 {
		return 0, fmt.Errorf("evaluation set is empty")
	}
	if err := p.Labels().Check(ds.Labels); err != nil {
		return 0, err
	}
	correct := 0
	for i, w := range ds.Windows {
		out, err := p.Predict([][][]float64{w.Samples})
		if err != nil {
			return 0, err
		}
		best := 0
		for j, v := range out[0] {
			if v > out[0][best] {
				best = j
			}
		}
		if best == ds.Targets[i] {
			correct++
		}
	}
	return float64(correct) / float64(ds.Len()), nil
}
