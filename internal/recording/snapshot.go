package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// ErrEmptySnapshot is returned when an NPY dump is requested for a buffer
// holding no samples.
var ErrEmptySnapshot = errors.New("snapshot holds no samples")

// Format selects the on-disk layout of a snapshot.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTXT Format = "txt"
	FormatNPY Format = "npy"
)

// ParseFormat accepts a format name or a file extension (with or without the dot).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatCSV, FormatTXT, FormatNPY:
		return f, nil
	}
	return "", fmt.Errorf("unsupported snapshot format %q: expected csv, txt or npy", s)
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string { return "." + string(f) }

// Snapshot is a time-stamped copy of the live buffer: Data[channel][sample]
// with one time value per sample.
type Snapshot struct {
	Time []float64
	Data [][]float64
}

// Len returns the number of samples.
func (s Snapshot) Len() int { return len(s.Time) }

// Header returns the column names: Time followed by Channel1..N.
func (s Snapshot) Header() []string {
	h := []string{"Time"}
	for c := range s.Data {
		h = append(h, fmt.Sprintf("Channel%d", c+1))
	}
	return h
}

// Slice returns samples [start, end).
func (s Snapshot) Slice(start, end int) Snapshot {
	out := Snapshot{Time: s.Time[start:end], Data: make([][]float64, len(s.Data))}
	for c := range s.Data {
		out.Data[c] = s.Data[c][start:end]
	}
	return out
}

func (s Snapshot) validate() error {
	for c, row := range s.Data {
		if len(row) != len(s.Time) {
			return &emg.ShapeError{
				Expected: emg.Shape{len(s.Data), len(s.Time)},
				Actual:   emg.Shape{c + 1, len(row)},
			}
		}
	}
	return nil
}

// SaveSnapshot writes s to path in the given format.
func SaveSnapshot(path string, format Format, s Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return &emg.FileIOError{Op: "create", Path: path, Err: err}
	}
	if err := EncodeSnapshot(f, format, s); err != nil {
		f.Close()
		return &emg.FileIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &emg.FileIOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// EncodeSnapshot writes s to w. CSV and TXT carry a header row and use comma
// and tab delimiters; NPY is a (samples, 1+channels) float64 array.
func EncodeSnapshot(w io.Writer, format Format, s Snapshot) error {
	if err := s.validate(); err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return encodeDelimited(w, ",", s)
	case FormatTXT:
		return encodeDelimited(w, "\t", s)
	case FormatNPY:
		if s.Len() == 0 {
			return ErrEmptySnapshot
		}
		return npyio.Write(w, s.matrix())
	}
	return fmt.Errorf("unsupported snapshot format %q", format)
}

// LoadNPY reads a snapshot previously written with FormatNPY.
func LoadNPY(r io.Reader) (Snapshot, error) {
	var m mat.Dense
	if err := npyio.Read(r, &m); err != nil {
		return Snapshot{}, err
	}
	rows, cols := m.Dims()
	if cols < 1 {
		return Snapshot{}, fmt.Errorf("npy array has no columns")
	}
	s := Snapshot{Time: make([]float64, rows), Data: make([][]float64, cols-1)}
	for c := range s.Data {
		s.Data[c] = make([]float64, rows)
	}
	for i := 0; i < rows; i++ {
		s.Time[i] = m.At(i, 0)
		for c := range s.Data {
			s.Data[c][i] = m.At(i, c+1)
		}
	}
	return s, nil
}

func (s Snapshot) matrix() *mat.Dense {
	m := mat.NewDense(s.Len(), 1+len(s.Data), nil)
	for i := range s.Time {
		m.Set(i, 0, s.Time[i])
		for c := range s.Data {
			m.Set(i, c+1, s.Data[c][i])
		}
	}
	return m
}

func encodeDelimited(w io.Writer, sep string, s Snapshot) error {
	bw := bufio.NewWriter(w)
	if _, err := io.WriteString(bw, strings.Join(s.Header(), sep)+"\n"); err != nil {
		return err
	}
	row := make([]string, 1+len(s.Data))
	for i := range s.Time {
		row[0] = formatFloat(s.Time[i])
		for c := range s.Data {
			row[c+1] = formatFloat(s.Data[c][i])
		}
		if _, err := io.WriteString(bw, strings.Join(row, sep)+"\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
