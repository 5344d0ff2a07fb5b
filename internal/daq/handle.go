package daq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// DefaultReadTimeout bounds every read when no timeout is configured.
const DefaultReadTimeout = 2 * time.Second

// Handle owners used by the application.
const (
	OwnerDisplay     = "display"
	OwnerRecognition = "recognition"
)

var (
	// ErrBusy is returned when another owner holds the lease.
	ErrBusy = errors.New("daq handle is leased by another owner")
	// ErrClosed is returned once the handle has been closed.
	ErrClosed = errors.New("daq handle is closed")
)

// Handle is the single owner of a Source. Reads are serialized, and one
// owner at a time may take an exclusive lease that makes reads by any other
// owner fail fast with ErrBusy.
type Handle struct {
	src      Source
	settings Settings
	timeout  time.Duration

	readMu sync.Mutex

	mu     sync.Mutex
	owner  string
	closed bool
	stats  Status
}

// Status is a point-in-time view of the handle for the debug page.
type Status struct {
	Owner     string    `json:"owner,omitempty"`
	Reads     int64     `json:"reads"`
	Samples   int64     `json:"samples"`
	Errors    int64     `json:"errors"`
	Busy      int64     `json:"busy"`
	Flushed   int64     `json:"flushed"`
	LastError string    `json:"last_error,omitempty"`
	LastRead  time.Time `json:"last_read,omitempty"`
}

// NewHandle configures src and wraps it. A zero timeout selects
// DefaultReadTimeout.
func NewHandle(src Source, settings Settings, timeout time.Duration) (*Handle, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := src.Configure(settings); err != nil {
		return nil, &emg.HardwareReadError{Op: "configure", Err: err}
	}
	return &Handle{src: src, settings: settings, timeout: timeout}, nil
}

// Settings returns the configuration applied to the source.
func (h *Handle) Settings() Settings { return h.settings }

// Source returns the wrapped device.
func (h *Handle) Source() Source { return h.src }

// Acquire takes the exclusive lease for owner. Acquiring a lease already
// held by the same owner is a no-op. A new holder starts from fresh signal:
// samples the source queued before the lease changed hands are discarded.
func (h *Handle) Acquire(owner string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.owner != "" && h.owner != owner {
		h.mu.Unlock()
		return fmt.Errorf("%w (%s)", ErrBusy, h.owner)
	}
	changed := h.owner != owner
	h.owner = owner
	h.mu.Unlock()

	if changed {
		h.Flush()
	}
	return nil
}

// Flush discards samples the source has queued but nobody has read. It is a
// no-op for sources that do not queue.
func (h *Handle) Flush() int {
	f, ok := h.src.(Flusher)
	if !ok {
		return 0
	}
	n := f.Flush()
	h.mu.Lock()
	h.stats.Flushed += int64(n)
	h.mu.Unlock()
	return n
}

// Release drops the lease if owner holds it.
func (h *Handle) Release(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.owner == owner {
		h.owner = ""
	}
}

// Owner returns the current lease holder, or "" when the lease is free.
func (h *Handle) Owner() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.owner
}

// Read reads n samples per channel on behalf of owner. The read is bounded
// by the handle timeout; a timeout is reported as a HardwareReadError
// wrapping emg.ErrReadTimeout.
func (h *Handle) Read(ctx context.Context, owner string, n int) (emg.Block, error) {
	if err := h.admit(owner); err != nil {
		return emg.Block{}, err
	}

	h.readMu.Lock()
	defer h.readMu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	b, err := h.src.Read(rctx, n)
	if err == nil {
		err = b.Validate(h.settings.Channels, n)
	}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded):
		err = &emg.HardwareReadError{Op: "read", Err: fmt.Errorf("%w after %s", emg.ErrReadTimeout, h.timeout)}
	default:
		var hre *emg.HardwareReadError
		if !errors.As(err, &hre) {
			err = &emg.HardwareReadError{Op: "read", Err: err}
		}
	}
	h.record(b, err)
	if err != nil {
		return emg.Block{}, err
	}
	return b, nil
}

func (h *Handle) admit(owner string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.owner != "" && h.owner != owner {
		h.stats.Busy++
		return ErrBusy
	}
	return nil
}

func (h *Handle) record(b emg.Block, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Reads++
	if err != nil {
		h.stats.Errors++
		h.stats.LastError = err.Error()
		return
	}
	h.stats.Samples += int64(b.Len())
	h.stats.LastRead = time.Now()
}

// Status returns read counters and the lease holder.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.stats
	s.Owner = h.owner
	return s
}

// Close closes the source. Pending reads finish first.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.readMu.Lock()
	defer h.readMu.Unlock()
	return h.src.Close()
}
