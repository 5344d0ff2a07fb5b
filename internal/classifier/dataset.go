package classifier

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/normalize"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

// Dataset is a set of normalized windows with their class indices.
type Dataset struct {
	Labels  LabelSet
	Windows []emg.Window
	Targets []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Windows) }

// Add appends a normalized window for class index target.
func (d *Dataset) Add(w emg.Window, target int) {
	d.Windows = append(d.Windows, w)
	d.Targets = append(d.Targets, target)
}

// LoadStats counts what LoadDataset kept and skipped.
type LoadStats struct {
	Loaded    int
	WrongSize int
	Flat      int
}

// LoadDataset reads baseDir/<label>/*.csv for each label in order. Files that
// do not have exactly windowSize rows of channels columns are skipped, as are
// windows with a constant channel. Windows are normalized on load.
func LoadDataset(baseDir string, labels LabelSet, windowSize, channels int) (*Dataset, LoadStats, error) {
	var stats LoadStats
	if err := labels.Validate(); err != nil {
		return nil, stats, err
	}
	ds := &Dataset{Labels: labels}
	for idx, label := range labels.Names {
		dir := filepath.Join(baseDir, label)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, stats, &emg.FileIOError{Op: "read dir", Path: dir, Err: err}
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
				names = append(names, e.Name())
			}
		}
		slices.Sort(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			rec, err := recording.ReadCSV(path)
			if err != nil {
				return nil, stats, err
			}
			w, err := normalize.ZScore(emg.Window{Label: label, Samples: rec.Samples}, windowSize, channels)
			var se *emg.ShapeError
			var zv *emg.ZeroVarianceError
			switch {
			case errors.As(err, &se):
				stats.WrongSize++
				monitoring.Logf("dataset: skipping %s: %v", path, err)
				continue
			case errors.As(err, &zv):
				stats.Flat++
				monitoring.Logf("dataset: skipping %s: %v", path, err)
				continue
			case err != nil:
				return nil, stats, fmt.Errorf("%s: %w", path, err)
			}
			ds.Add(w, idx)
			stats.Loaded++
		}
	}
	return ds, stats, nil
}

// SplitStratified partitions the dataset so each class contributes
// testFraction of its samples to the test set. The shuffle is seeded.
func SplitStratified(ds *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be within (0, 1), got %g", testFraction)
	}
	rng := rand.New(rand.NewSource(seed))
	byClass := make([][]int, ds.Labels.Len())
	for i, t := range ds.Targets {
		byClass[t] = append(byClass[t], i)
	}

	train = &Dataset{Labels: ds.Labels}
	test = &Dataset{Labels: ds.Labels}
	for _, idxs := range byClass {
		rng.Shuffle(len(idxs), func(i, j int) { idxs[i], idxs[j] = idxs[j], idxs[i] })
		nTest := int(float64(len(idxs))*testFraction + 0.5)
		if nTest == len(idxs) && len(idxs) > 1 {
			nTest--
		}
		for k, i := range idxs {
			if k < nTest {
				test.Add(ds.Windows[i], ds.Targets[i])
			} else {
				train.Add(ds.Windows[i], ds.Targets[i])
			}
		}
	}
	return train, test, nil
}
