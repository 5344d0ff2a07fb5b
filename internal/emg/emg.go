// Package emg defines the data types shared by the segmentation, training and
// live recognition paths: recordings, windows, hardware blocks and the error
// kinds they can raise.
package emg

import "fmt"

const (
	// DefaultChannels is the electrode count of the acquisition rig.
	DefaultChannels = 4
	// DefaultSampleRate is the rate (Hz) the training recordings were taken at.
	DefaultSampleRate = 2000
	// DefaultWindowSize is 1.5 s at DefaultSampleRate.
	DefaultWindowSize = 3000
	// DefaultStepSize is 0.25 s at DefaultSampleRate.
	DefaultStepSize = 500
)

// Recording is an ordered sequence of samples. Each sample holds one reading
// per channel, in a fixed channel order.
type Recording struct {
	Channels int
	Samples  [][]float64
}

// NewRecording returns an empty recording for the given channel count.
func NewRecording(channels int) *Recording {
	return &Recording{Channels: channels}
}

// Len returns the number of samples.
func (r *Recording) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Samples)
}

// Append adds one sample. The sample must have exactly Channels readings.
func (r *Recording) Append(sample []float64) error {
	if len(sample) != r.Channels {
		return &ShapeError{
			Expected: Shape{1, r.Channels},
			Actual:   Shape{1, len(sample)},
		}
	}
	r.Samples = append(r.Samples, sample)
	return nil
}

// Validate checks that every sample has the recording's channel count.
func (r *Recording) Validate() error {
	if r.Channels <= 0 {
		return fmt.Errorf("recording has invalid channel count %d", r.Channels)
	}
	for i, s := range r.Samples {
		if len(s) != r.Channels {
			return fmt.Errorf("sample %d: %w", i, &ShapeError{
				Expected: Shape{1, r.Channels},
				Actual:   Shape{1, len(s)},
			})
		}
	}
	return nil
}

// Slice returns samples [start, end) as a new recording sharing storage with r.
func (r *Recording) Slice(start, end int) *Recording {
	return &Recording{Channels: r.Channels, Samples: r.Samples[start:end]}
}

// Window is a contiguous run of samples cut from a recording. Label is empty
// for windows taken from a live source.
type Window struct {
	Start   int
	Label   string
	Samples [][]float64
}

// Shape returns (samples, channels) of the window. Ragged windows report the
// channel count of the first row; use normalize.ZScore for a strict check.
func (w Window) Shape() Shape {
	if len(w.Samples) == 0 {
		return Shape{0, 0}
	}
	return Shape{len(w.Samples), len(w.Samples[0])}
}

// Column copies channel c out of the window.
func (w Window) Column(c int) []float64 {
	col := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		col[i] = s[c]
	}
	return col
}

// Clone deep-copies the window.
func (w Window) Clone() Window {
	out := Window{Start: w.Start, Label: w.Label, Samples: make([][]float64, len(w.Samples))}
	for i, s := range w.Samples {
		out.Samples[i] = append([]float64(nil), s...)
	}
	return out
}

// Block is one hardware read: Data[channel][sample]. Every channel row holds
// the same number of samples.
type Block struct {
	Data [][]float64
}

// NewBlock allocates a zeroed block of the given shape.
func NewBlock(channels, n int) Block {
	data := make([][]float64, channels)
	for c := range data {
		data[c] = make([]float64, n)
	}
	return Block{Data: data}
}

// Channels returns the number of channel rows.
func (b Block) Channels() int { return len(b.Data) }

// Len returns the number of samples per channel.
func (b Block) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Validate checks that the block is (channels, n).
func (b Block) Validate(channels, n int) error {
	if b.Channels() != channels {
		return &ShapeError{Expected: Shape{channels, n}, Actual: Shape{b.Channels(), b.Len()}}
	}
	for _, row := range b.Data {
		if len(row) != n {
			return &ShapeError{Expected: Shape{channels, n}, Actual: Shape{channels, len(row)}}
		}
	}
	return nil
}

// Rows transposes the block into sample-major rows.
func (b Block) Rows() [][]float64 {
	n := b.Len()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(b.Data))
		for c := range b.Data {
			row[c] = b.Data[c][i]
		}
		rows[i] = row
	}
	return rows
}

// Shape is an array shape, outermost dimension first.
type Shape []int

func (s Shape) String() string {
	out := "("
	for i, d := range s {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d", d)
	}
	return out + ")"
}

// Equal reports whether two shapes match dimension by dimension.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
