// Package config holds the service configuration. It is read from a YAML
// file with EMG_* environment overrides and written back when the operator
// edits auto-save settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/emg.gesture/internal/autosave"
	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/emg"
)

// DefaultConfigPath is used when no --config flag is given.
const DefaultConfigPath = "emg.yaml"

// Source names for Device.Source.
const (
	SourceMock   = "mock"
	SourceSerial = "serial"
)

// Device selects and configures the DAQ source.
type Device struct {
	Source string          `json:"source" yaml:"source" mapstructure:"source"`
	Port   string          `json:"port" yaml:"port" mapstructure:"port"`
	Serial daq.PortOptions `json:"serial" yaml:"serial" mapstructure:"serial"`
	// Seed drives the mock source.
	Seed     int64        `json:"seed" yaml:"seed" mapstructure:"seed"`
	Settings daq.Settings `json:"settings" yaml:"settings" mapstructure:"settings"`
	// ReadTimeout is a duration string like "2s".
	ReadTimeout string `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
}

// Acquisition configures the display loop.
type Acquisition struct {
	// TickInterval is a duration string like "200ms".
	TickInterval string `json:"tick_interval" yaml:"tick_interval" mapstructure:"tick_interval"`
	HistorySize  int    `json:"history_size" yaml:"history_size" mapstructure:"history_size"`
}

// Recognition configures the classifier and sessions.
type Recognition struct {
	ModelPath     string  `json:"model_path" yaml:"model_path" mapstructure:"model_path"`
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxAttempts   int     `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Segment configures offline windowing.
type Segment struct {
	WindowSize int `json:"window_size" yaml:"window_size" mapstructure:"window_size"`
	StepSize   int `json:"step_size" yaml:"step_size" mapstructure:"step_size"`
}

// Storage locates the session database.
type Storage struct {
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`
}

// HTTP configures the operator API.
type HTTP struct {
	Listen string `json:"listen" yaml:"listen" mapstructure:"listen"`
}

// MQTT configures result publishing.
type MQTT struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Broker      string `json:"broker" yaml:"broker" mapstructure:"broker"`
	ClientID    string `json:"client_id" yaml:"client_id" mapstructure:"client_id"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix" mapstructure:"topic_prefix"`
	QoS         int    `json:"qos" yaml:"qos" mapstructure:"qos"`
}

// Log configures the logger.
type Log struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	JSON  bool   `json:"json" yaml:"json" mapstructure:"json"`
}

// Config is the root of the configuration file.
type Config struct {
	Device      Device            `json:"device" yaml:"device" mapstructure:"device"`
	Acquisition Acquisition       `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	Recognition Recognition       `json:"recognition" yaml:"recognition" mapstructure:"recognition"`
	Segment     Segment           `json:"segment" yaml:"segment" mapstructure:"segment"`
	AutoSave    autosave.Settings `json:"autosave" yaml:"autosave" mapstructure:"autosave"`
	Storage     Storage           `json:"storage" yaml:"storage" mapstructure:"storage"`
	HTTP        HTTP              `json:"http" yaml:"http" mapstructure:"http"`
	MQTT        MQTT              `json:"mqtt" yaml:"mqtt" mapstructure:"mqtt"`
	Log         Log               `json:"log" yaml:"log" mapstructure:"log"`
}

// Defaults returns a configuration that runs against the mock device.
func Defaults() *Config {
	return &Config{
		Device: Device{
			Source:      SourceMock,
			Serial:      daq.PortOptions{BaudRate: daq.DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"},
			Seed:        1,
			Settings:    daq.DefaultSettings(),
			ReadTimeout: "2s",
		},
		Acquisition: Acquisition{
			TickInterval: "200ms",
			HistorySize:  1000,
		},
		Recognition: Recognition{
			ModelPath:     "model.json",
			MinConfidence: 0.5,
		},
		Segment: Segment{
			WindowSize: emg.DefaultWindowSize,
			StepSize:   emg.DefaultStepSize,
		},
		AutoSave: autosave.DefaultSettings(),
		Storage:  Storage{DBPath: "emg.db"},
		HTTP:     HTTP{Listen: ":8080"},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "emg-gesture",
			TopicPrefix: "emg",
		},
		Log: Log{Level: "info"},
	}
}

// GetReadTimeout parses Device.ReadTimeout.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Device.ReadTimeout, 2*time.Second)
}

// GetTickInterval parses Acquisition.TickInterval.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.Acquisition.TickInterval, 200*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Device.Source {
	case SourceMock:
	case SourceSerial:
		if c.Device.Port == "" {
			errs = append(errs, errors.New("device.port is required for the serial source"))
		}
		if _, err := c.Device.Serial.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("device.serial: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("device.source must be %q or %q, got %q", SourceMock, SourceSerial, c.Device.Source))
	}
	if err := c.Device.Settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("device.settings: %w", err))
	}
	if err := positiveDuration("device.read_timeout", c.Device.ReadTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := positiveDuration("acquisition.tick_interval", c.Acquisition.TickInterval); err != nil {
		errs = append(errs, err)
	}
	if c.Acquisition.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("acquisition.history_size must be positive, got %d", c.Acquisition.HistorySize))
	}
	if c.Recognition.MinConfidence < 0 || c.Recognition.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("recognition.min_confidence must be within [0, 1], got %g", c.Recognition.MinConfidence))
	}
	if c.Recognition.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_attempts must not be negative, got %d", c.Recognition.MaxAttempts))
	}
	if c.Segment.WindowSize <= 0 || c.Segment.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("segment window and step must be positive, got %d and %d", c.Segment.WindowSize, c.Segment.StepSize))
	}
	if err := c.AutoSave.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("autosave: %w", err))
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path must not be empty"))
	}
	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen must not be empty"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	}
	return errors.Join(errs...)
}

func positiveDuration(key, s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return nil
}
