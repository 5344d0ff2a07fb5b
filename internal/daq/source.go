// Package daq owns the live signal source: the device abstraction, the
// exclusive handle shared by the acquisition loop and recognition sessions,
// and the serial and synthetic device implementations.
package daq

import (
	"context"
	"fmt"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// Settings configures a source before the first read.
type Settings struct {
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels       int     `json:"channels" yaml:"channels" mapstructure:"channels"`
	SamplesPerRead int     `json:"samples_per_read" yaml:"samples_per_read" mapstructure:"samples_per_read"`
}

// DefaultSettings returns 4 channels at 2 kHz read 500 samples at a time.
func DefaultSettings() Settings {
	return Settings{
		SampleRate:     emg.DefaultSampleRate,
		Channels:       emg.DefaultChannels,
		SamplesPerRead: emg.DefaultStepSize,
	}
}

// Validate rejects non-positive values.
func (s Settings) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", s.SampleRate)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", s.Channels)
	}
	if s.SamplesPerRead <= 0 {
		return fmt.Errorf("samples per read must be positive, got %d", s.SamplesPerRead)
	}
	return nil
}

// Source is a multi-channel analog input device.
type Source interface {
	// Configure applies rate and channel count. It may be called again to
	// reconfigure a running device.
	Configure(Settings) error
	// Read blocks until n samples per channel are available or ctx is done,
	// and returns them as a (channels, n) block.
	Read(ctx context.Context, n int) (emg.Block, error)
	Close() error
}

// Flusher is implemented by sources that queue samples between reads.
// Flush discards the queue and returns how many samples it held.
type Flusher interface {
	Flush() int
}

// Commander is implemented by sources that accept raw device commands.
type Commander interface {
	SendCommand(string) error
}
