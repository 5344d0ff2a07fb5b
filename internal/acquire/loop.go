package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/timeutil"
)

// Display receives a copy of the rolling buffer after every successful tick.
type Display interface {
	Update(recording.Snapshot)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(recording.Snapshot)

func (f DisplayFunc) Update(s recording.Snapshot) { f(s) }

// Config describes a Loop.
type Config struct {
	Handle  *daq.Handle
	History *History
	// Interval between ticks, typically 200ms.
	Interval time.Duration
	// SamplesPerRead defaults to the handle's setting.
	SamplesPerRead int
	Display        Display
	// Clock defaults to timeutil.RealClock.
	Clock timeutil.Clock
}

// Stats counts tick outcomes.
type Stats struct {
	Ticks   int64 `json:"ticks"`
	Reads   int64 `json:"reads"`
	Failed  int64 `json:"failed"`
	Busy    int64 `json:"busy"`
	Skipped int64 `json:"skipped"`
}

// Status is reported by GET /api/acquisition.
type Status struct {
	Running  bool    `json:"running"`
	Paused   bool    `json:"paused"`
	Buffered int     `json:"buffered"`
	Now      float64 `json:"now"`
	Stats
}

// Loop reads one block per tick. Ticks run on a single goroutine; a tick
// that falls due while another is in progress is dropped.
type Loop struct {
	handle   *daq.Handle
	history  *History
	interval time.Duration
	samples  int
	display  Display
	clock    timeutil.Clock

	mu      sync.Mutex
	paused  bool
	running bool
	stats   Stats
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop validates cfg and returns a stopped loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Handle == nil || cfg.History == nil {
		return nil, errors.New("acquisition loop needs a handle and a history")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("acquisition interval must be positive, got %s", cfg.Interval)
	}
	if cfg.SamplesPerRead <= 0 {
		cfg.SamplesPerRead = cfg.Handle.Settings().SamplesPerRead
	}
	if cfg.History.Channels() != cfg.Handle.Settings().Channels {
		return nil, fmt.Errorf("history has %d channels, device has %d",
			cfg.History.Channels(), cfg.Handle.Settings().Channels)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Loop{
		handle:   cfg.Handle,
		history:  cfg.History,
		interval: cfg.Interval,
		samples:  cfg.SamplesPerRead,
		display:  cfg.Display,
		clock:    cfg.Clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// History returns the rolling buffer.
func (l *Loop) History() *History { return l.history }

// Run ticks until ctx is cancelled or Stop is called. Per-tick errors are
// logged and never returned.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("acquisition loop is already running")
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		close(doneCh)
	}()

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()
	monitoring.Logf("acquisition started: interval=%s samples_per_read=%d", l.interval, l.samples)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("acquisition stopping: %v", ctx.Err())
			return nil
		case <-stopCh:
			monitoring.Logf("acquisition stopping")
			return nil
		case <-ticker.C():
			if err := l.Tick(ctx); err != nil && !errors.Is(err, daq.ErrBusy) && ctx.Err() == nil {
				monitoring.Logf("acquisition: read failed, skipping tick: %v", err)
			}
		}
	}
}

// Stop ends Run and waits for it to return. Safe to call when not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	doneCh := l.doneCh
	l.mu.Unlock()
	<-doneCh
}

// Tick performs one acquisition step: read, append, publish. A paused loop
// does nothing. The returned error is informational; the history is left
// unchanged when it is non-nil.
func (l *Loop) Tick(ctx context.Context) error {
	l.mu.Lock()
	l.stats.Ticks++
	if l.paused {
		l.stats.Skipped++
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	b, err := l.handle.Read(ctx, daq.OwnerDisplay, l.samples)
	if err == nil {
		err = l.history.Append(b)
	}
	l.mu.Lock()
	switch {
	case errors.Is(err, daq.ErrBusy):
		l.stats.Busy++
	case err != nil:
		l.stats.Failed++
	default:
		l.stats.Reads++
	}
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if l.display != nil {
		l.display.Update(l.history.Snapshot())
	}
	return nil
}

// Pause suspends reads; ticks keep firing and are skipped.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume re-enables reads. Signal the device queued while paused is dropped.
func (l *Loop) Resume() {
	l.mu.Lock()
	was := l.paused
	l.paused = false
	l.mu.Unlock()
	if was {
		l.handle.Flush()
	}
}

// Paused reports whether the loop is paused.
func (l *Loop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Snapshot returns a copy of the current buffer for savers.
func (l *Loop) Snapshot() recording.Snapshot { return l.history.Snapshot() }

// Status reports state and counters.
func (l *Loop) Status() Status {
	l.mu.Lock()
	s := Status{Running: l.running, Paused: l.paused, Stats: l.stats}
	l.mu.Unlock()
	s.Buffered = l.history.Len()
	s.Now = l.history.Now()
	return s
}
