package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/security"
)

func TestWriteWindows(t *testing.T) {
	dir := t.TempDir()
	n, err := WriteWindows(dir, "i", ramp(35, 4), Params{WindowSize: 30, StepSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(filepath.Join(dir, "i"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"i_0000.csv", "i_0001.csv"}, names)

	rec, err := recording.ReadCSV(filepath.Join(dir, "i", "i_0001.csv"))
	require.NoError(t, err)
	assert.Equal(t, 30, rec.Len())
	assert.Equal(t, 50.0, rec.Samples[0][0])
}

func TestWriteWindowsShortRecording(t *testing.T) {
	n, err := WriteWindows(t.TempDir(), "e", ramp(10, 4), Params{WindowSize: 30, StepSize: 5})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWriteWindowsBadParams(t *testing.T) {
	_, err := WriteWindows(t.TempDir(), "e", ramp(10, 4), Params{})
	assert.Error(t, err)
}

func TestWindowFileName(t *testing.T) {
	assert.Equal(t, "gesture_b_0042.csv", WindowFileName("gesture_b", 42))
}

func TestWriteWindowsRejectsEscapingLabel(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteWindows(filepath.Join(dir, "out"), "../escape", ramp(35, 4), Params{WindowSize: 30, StepSize: 5})
	require.Error(t, err)
	var fe *emg.FileIOError
	assert.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, security.ErrOutsideDir)
	assert.NoDirExists(t, filepath.Join(dir, "escape"))
}
