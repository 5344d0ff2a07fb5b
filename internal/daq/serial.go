package daq

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
)

// ErrWriteFailed is returned when a command is only partially written.
var ErrWriteFailed = errors.New("failed to write to serial port")

// sampleBacklog is how many parsed samples are queued while nobody reads.
// When it fills the oldest samples are dropped. Reads take the oldest queued
// sample first, so the queue is flushed whenever a new reader takes over.
const sampleBacklog = 1 << 15

// SerialPorter is the part of a serial port the source needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialSource reads a DAQ board that streams one text line per sample,
// channel readings separated by commas, and accepts the line commands
// RATE=<hz>, CHANNELS=<n>, START and STOP.
type SerialSource struct {
	port SerialPorter

	cmdMu sync.Mutex

	mu       sync.Mutex
	channels int
	started  bool
	samples  chan []float64
	done     chan struct{}
	cancel   context.CancelFunc
	scanErr  error
	dropped  int64
	rejected int64
}

// OpenSerial opens the device at path and wraps it in a SerialSource.
func OpenSerial(path string, opts PortOptions) (*SerialSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &emg.HardwareReadError{Op: "open " + path, Err: err}
	}
	return NewSerialSource(port), nil
}

// NewSerialSource wraps an already open port.
func NewSerialSource(port SerialPorter) *SerialSource {
	return &SerialSource{
		port:    port,
		samples: make(chan []float64, sampleBacklog),
	}
}

// SendCommand writes one newline-terminated command line.
func (s *SerialSource) SendCommand(command string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Configure stops streaming, applies rate and channel count, and restarts
// streaming. The line monitor starts on the first call.
func (s *SerialSource) Configure(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	for _, cmd := range []string{
		"STOP",
		fmt.Sprintf("RATE=%s", strconv.FormatFloat(settings.SampleRate, 'f', -1, 64)),
		fmt.Sprintf("CHANNELS=%d", settings.Channels),
		"START",
	} {
		if err := s.SendCommand(cmd); err != nil {
			return fmt.Errorf("failed to send %q: %w", cmd, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = settings.Channels
	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		s.started = true
		go s.monitor(ctx)
	}
	return nil
}

// monitor scans sample lines until the port closes or ctx is cancelled.
func (s *SerialSource) monitor(ctx context.Context) {
	defer close(s.done)
	scan := bufio.NewScanner(s.port)
	for scan.Scan() {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		channels := s.channels
		s.mu.Unlock()

		sample, err := ParseSampleLine(scan.Text(), channels)
		if err != nil {
			s.mu.Lock()
			s.rejected++
			n := s.rejected
			s.mu.Unlock()
			if n == 1 || n%1000 == 0 {
				monitoring.Logf("daq: ignoring line %q: %v (%d rejected)", scan.Text(), err, n)
			}
			continue
		}
		s.push(sample)
	}
	s.mu.Lock()
	s.scanErr = scan.Err()
	if s.scanErr == nil {
		s.scanErr = io.EOF
	}
	s.mu.Unlock()
}

func (s *SerialSource) push(sample []float64) {
	for {
		select {
		case s.samples <- sample:
			return
		default:
		}
		select {
		case <-s.samples:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		default:
		}
	}
}

// Read collects n samples into a (channels, n) block.
func (s *SerialSource) Read(ctx context.Context, n int) (emg.Block, error) {
	s.mu.Lock()
	channels, done := s.channels, s.done
	s.mu.Unlock()
	if done == nil {
		return emg.Block{}, errors.New("serial source is not configured")
	}

	b := emg.NewBlock(channels, n)
	for i := 0; i < n; i++ {
		var sample []float64
		select {
		case sample = <-s.samples:
		case <-ctx.Done():
			return emg.Block{}, ctx.Err()
		case <-done:
			// Drain what the monitor queued before it exited.
			select {
			case sample = <-s.samples:
			default:
				s.mu.Lock()
				err := s.scanErr
				s.mu.Unlock()
				return emg.Block{}, fmt.Errorf("serial stream ended: %w", err)
			}
		}
		if len(sample) != channels {
			// Reconfigured mid-read.
			return emg.Block{}, &emg.ShapeError{Expected: emg.Shape{channels}, Actual: emg.Shape{len(sample)}}
		}
		for c, v := range sample {
			b.Data[c][i] = v
		}
	}
	return b, nil
}

// Flush discards every queued sample and returns how many were dropped, so
// the next Read starts at the newest signal.
func (s *SerialSource) Flush() int {
	n := 0
	for {
		select {
		case <-s.samples:
			n++
		default:
			s.mu.Lock()
			s.dropped += int64(n)
			s.mu.Unlock()
			return n
		}
	}
}

// Dropped returns how many samples were discarded because nobody read them.
func (s *SerialSource) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close sends STOP, closes the port and waits for the monitor to exit.
func (s *SerialSource) Close() error {
	if err := s.SendCommand("STOP"); err != nil {
		monitoring.Logf("daq: failed to stop streaming: %v", err)
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := s.port.Close()
	if done != nil {
		<-done
	}
	return err
}

// ParseSampleLine parses "v1,v2,...,vn" into exactly channels readings.
func ParseSampleLine(line string, channels int) ([]float64, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != channels {
		return nil, &emg.ShapeError{Expected: emg.Shape{channels}, Actual: emg.Shape{len(fields)}}
	}
	sample := make([]float64, channels)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		sample[i] = v
	}
	return sample, nil
}
