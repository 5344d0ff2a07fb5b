// Package recording reads and writes EMG recordings and windows as flat files:
// headerless training CSVs, single-column per-electrode captures, and the
// operator snapshot formats (CSV, TXT, NPY).
package recording

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// ReadCSV reads a headerless CSV with one row per sample and one column per
// channel. All rows must have the same number of columns.
func ReadCSV(path string) (*emg.Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &emg.FileIOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	rec, err := DecodeCSV(f)
	if err != nil {
		return nil, &emg.FileIOError{Op: "read", Path: path, Err: err}
	}
	return rec, nil
}

// DecodeCSV parses headerless CSV rows from r.
func DecodeCSV(r io.Reader) (*emg.Recording, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	var rec *emg.Recording
	line := 0
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, err
		}
		if rec == nil {
			rec = emg.NewRecording(len(fields))
		}
		sample := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			sample[i] = v
		}
		if err := rec.Append(sample); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if rec == nil {
		return nil, fmt.Errorf("no samples")
	}
	return rec, nil
}

// WriteCSV writes samples as a headerless CSV, creating parent directories.
func WriteCSV(path string, samples [][]float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &emg.FileIOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &emg.FileIOError{Op: "create", Path: path, Err: err}
	}
	if err := EncodeCSV(f, samples); err != nil {
		f.Close()
		return &emg.FileIOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &emg.FileIOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// EncodeCSV writes samples to w, one row per sample.
func EncodeCSV(w io.Writer, samples [][]float64) error {
	cw := csv.NewWriter(w)
	var fields []string
	for _, s := range samples {
		fields = fields[:0]
		for _, v := range s {
			fields = append(fields, formatFloat(v))
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadChannelColumns merges single-column captures, one file per electrode,
// into one multi-channel recording. Channel order follows paths. The result is
// truncated to the shortest column.
func ReadChannelColumns(paths []string) (*emg.Recording, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no channel files given")
	}
	columns := make([][]float64, len(paths))
	shortest := -1
	for i, p := range paths {
		col, err := ReadCSV(p)
		if err != nil {
			return nil, err
		}
		if col.Channels != 1 {
			return nil, &emg.FileIOError{Op: "read", Path: p, Err: &emg.ShapeError{
				Expected: emg.Shape{col.Len(), 1},
				Actual:   emg.Shape{col.Len(), col.Channels},
			}}
		}
		columns[i] = make([]float64, col.Len())
		for j, s := range col.Samples {
			columns[i][j] = s[0]
		}
		if shortest < 0 || col.Len() < shortest {
			shortest = col.Len()
		}
	}

	rec := emg.NewRecording(len(paths))
	rec.Samples = make([][]float64, shortest)
	for j := 0; j < shortest; j++ {
		s := make([]float64, len(paths))
		for c := range columns {
			s[c] = columns[c][j]
		}
		rec.Samples[j] = s
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
