package daq

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// SyntheticSource generates EMG-like signal for running without hardware:
// low-level noise on every channel with a burst of fast activity that moves
// from channel to channel every BurstPeriod.
type SyntheticSource struct {
	// Realtime paces reads at the configured sample rate.
	Realtime bool
	// BurstPeriod is how long each channel stays active.
	BurstPeriod time.Duration

	mu       sync.Mutex
	settings Settings
	rng      *rand.Rand
	pos      int64
	closed   bool
}

// NewSyntheticSource returns a deterministic source for the given seed.
func NewSyntheticSource(seed int64, realtime bool) *SyntheticSource {
	return &SyntheticSource{
		Realtime:    realtime,
		BurstPeriod: 2 * time.Second,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (s *SyntheticSource) Configure(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

func (s *SyntheticSource) Read(ctx context.Context, n int) (emg.Block, error) {
	s.mu.Lock()
	settings, closed := s.settings, s.closed
	s.mu.Unlock()
	if closed {
		return emg.Block{}, ErrClosed
	}
	if settings.Channels == 0 {
		return emg.Block{}, errors.New("synthetic source is not configured")
	}
	if s.Realtime {
		wait := time.Duration(float64(n) / settings.SampleRate * float64(time.Second))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return emg.Block{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	burst := int64(s.BurstPeriod.Seconds() * settings.SampleRate)
	if burst <= 0 {
		burst = 1
	}
	b := emg.NewBlock(settings.Channels, n)
	for i := 0; i < n; i++ {
		t := float64(s.pos) / settings.SampleRate
		active := int((s.pos / burst) % int64(settings.Channels))
		for c := range b.Data {
			v := 0.02 * s.rng.NormFloat64()
			if c == active {
				v += 0.5 * math.Sin(2*math.Pi*150*t) * (1 + 0.3*s.rng.NormFloat64())
			} else {
				v += 0.05 * math.Sin(2*math.Pi*(5+float64(c))*t)
			}
			b.Data[c][i] = 1.5 + v
		}
		s.pos++
	}
	return b, nil
}

func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// ScriptedRead is one canned response of a ScriptedSource.
type ScriptedRead struct {
	Block emg.Block
	Err   error
	// Block until ctx is done instead of returning.
	Hang bool
}

// ScriptedSource replays canned reads in order and then repeats the last
// one. It records every read for assertions.
type ScriptedSource struct {
	mu         sync.Mutex
	script     []ScriptedRead
	reads      int
	configured []Settings
	closed     bool
	onRead     func(n int)
	queued     int
	flushes    int
}

// NewScriptedSource returns a source that replays script.
func NewScriptedSource(script ...ScriptedRead) *ScriptedSource {
	return &ScriptedSource{script: script}
}

// OnRead registers a hook called after each read with the read count.
func (s *ScriptedSource) OnRead(f func(n int)) {
	s.mu.Lock()
	s.onRead = f
	s.mu.Unlock()
}

func (s *ScriptedSource) Configure(settings Settings) error {
	s.mu.Lock()
	s.configured = append(s.configured, settings)
	s.mu.Unlock()
	return nil
}

func (s *ScriptedSource) Read(ctx context.Context, n int) (emg.Block, error) {
	s.mu.Lock()
	if len(s.script) == 0 {
		s.mu.Unlock()
		return emg.Block{}, errors.New("scripted source has no reads")
	}
	step := s.script[min(s.reads, len(s.script)-1)]
	s.reads++
	count, hook := s.reads, s.onRead
	s.mu.Unlock()

	if step.Hang {
		<-ctx.Done()
		step.Err = ctx.Err()
	}
	if hook != nil {
		hook(count)
	}
	return step.Block, step.Err
}

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Queue pretends n samples are waiting to be read, for Flush to discard.
func (s *ScriptedSource) Queue(n int) {
	s.mu.Lock()
	s.queued = n
	s.mu.Unlock()
}

// Flush discards the queued count set by Queue.
func (s *ScriptedSource) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	n := s.queued
	s.queued = 0
	return n
}

// Flushes returns how many times Flush was called.
func (s *ScriptedSource) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Reads returns how many reads were made.
func (s *ScriptedSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Configured returns every Settings passed to Configure.
func (s *ScriptedSource) Configured() []Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Settings(nil), s.configured...)
}

// Closed reports whether Close was called.
func (s *ScriptedSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ConstantBlock returns a (channels, n) block filled by f(channel, i).
func ConstantBlock(channels, n int, f func(c, i int) float64) emg.Block {
	b := emg.NewBlock(channels, n)
	for c := range b.Data {
		for i := range b.Data[c] {
			b.Data[c][i] = f(c, i)
		}
	}
	return b
}
