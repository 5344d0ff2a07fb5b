package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/security"
)

// WindowFileName is the per-window file name: label plus zero-padded index.
func WindowFileName(label string, k int) string {
	return fmt.Sprintf("%s_%04d.csv", label, k)
}

// WriteWindows writes every window of rec as a headerless CSV under
// dir/label/ and returns how many were written.
func WriteWindows(dir, label string, rec *emg.Recording, p Params) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	out, err := security.ResolveWithin(dir, label)
	if err != nil {
		return 0, &emg.FileIOError{Op: "resolve", Path: label, Err: err}
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return 0, &emg.FileIOError{Op: "mkdir", Path: out, Err: err}
	}

	n := 0
	for k, w := range Windows(rec, p.WindowSize, p.StepSize) {
		if err := recording.WriteCSV(filepath.Join(out, WindowFileName(label, k)), w.Samples); err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		monitoring.Logf("segment: %s has %d samples, shorter than window %d; no windows written",
			label, rec.Len(), p.WindowSize)
	}
	return n, nil
}
