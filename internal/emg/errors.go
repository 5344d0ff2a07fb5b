package emg

import (
	"errors"
	"fmt"
	"strings"
)

// ErrReadTimeout is wrapped by HardwareReadError when a live read does not
// complete within its deadline.
var ErrReadTimeout = errors.New("hardware read timed out")

// ShapeError reports an input whose dimensions do not match the fixed shape
// expected by the pipeline.
type ShapeError struct {
	Expected Shape
	Actual   Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ZeroVarianceError reports channels that are constant within a window, for
// which a z-score is undefined.
type ZeroVarianceError struct {
	Channels []int
}

func (e *ZeroVarianceError) Error() string {
	parts := make([]string, len(e.Channels))
	for i, c := range e.Channels {
		parts[i] = fmt.Sprintf("%d", c)
	}
	return fmt.Sprintf("zero variance in channel(s) %s", strings.Join(parts, ","))
}

// HardwareReadError wraps a failed or timed out read from a live source.
type HardwareReadError struct {
	Op  string
	Err error
}

func (e *HardwareReadError) Error() string {
	return fmt.Sprintf("hardware %s: %v", e.Op, e.Err)
}

func (e *HardwareReadError) Unwrap() error { return e.Err }

// Timeout reports whether the read failed because its deadline passed.
func (e *HardwareReadError) Timeout() bool {
	return errors.Is(e.Err, ErrReadTimeout)
}

// FileIOError wraps any persistence failure together with the path involved.
type FileIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }
