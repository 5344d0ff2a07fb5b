// Package autosave periodically writes the live buffer to disk.
package autosave

import (
	"fmt"
	"time"

	"github.com/banshee-data/emg.gesture/internal/recording"
)

// Settings are the operator-editable auto-save options.
type Settings struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// IntervalSeconds between saves, 1 to 3600.
	IntervalSeconds int    `json:"interval_seconds" yaml:"interval_seconds" mapstructure:"interval_seconds"`
	Dir             string `json:"path" yaml:"path" mapstructure:"path"`
	// MaxFileSizeMB splits a save into parts no larger than this.
	MaxFileSizeMB int              `json:"max_file_size_mb" yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	Format        recording.Format `json:"format" yaml:"format" mapstructure:"format"`
}

// DefaultSettings mirrors the recorder's factory settings: off, every 5 s,
// 100 MB parts, NPY files in ./recordings.
func DefaultSettings() Settings {
	return Settings{
		Enabled:         false,
		IntervalSeconds: 5,
		Dir:             "recordings",
		MaxFileSizeMB:   100,
		Format:          recording.FormatNPY,
	}
}

// Interval returns IntervalSeconds as a duration.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// MaxBytes returns the part size limit in bytes.
func (s Settings) MaxBytes() int64 { return int64(s.MaxFileSizeMB) << 20 }

// Validate checks ranges and the format name.
func (s Settings) Validate() error {
	if s.IntervalSeconds < 1 || s.IntervalSeconds > 3600 {
		return fmt.Errorf("auto-save interval must be between 1 and 3600 seconds, got %d", s.IntervalSeconds)
	}
	if s.Dir == "" {
		return fmt.Errorf("auto-save path must not be empty")
	}
	if s.MaxFileSizeMB < 1 {
		return fmt.Errorf("max file size must be at least 1 MB, got %d", s.MaxFileSizeMB)
	}
	if _, err := recording.ParseFormat(string(s.Format)); err != nil {
		return err
	}
	return nil
}
