// Package acquire runs the live acquisition loop: periodic reads from the
// DAQ handle into a bounded rolling history that feeds the live display.
package acquire

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

// History is a per-channel rolling buffer capped at a fixed number of
// samples. Global sample k is stamped k/rate seconds.
type History struct {
	mu       sync.RWMutex
	capacity int
	rate     float64
	data     [][]float64
	total    int64
}

// NewHistory returns an empty history of the given shape.
func NewHistory(channels, capacity int, rate float64) (*History, error) {
	if channels <= 0 || capacity <= 0 || rate <= 0 {
		return nil, fmt.Errorf("invalid history shape: %d channels, %d points at %g Hz", channels, capacity, rate)
	}
	return &History{
		capacity: capacity,
		rate:     rate,
		data:     make([][]float64, channels),
	}, nil
}

// Capacity returns the maximum number of buffered samples per channel.
func (h *History) Capacity() int { return h.capacity }

// Channels returns the channel count.
func (h *History) Channels() int { return len(h.data) }

// Len returns the number of buffered samples per channel.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.data[0])
}

// Total returns how many samples were appended since creation or Reset.
func (h *History) Total() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Append adds a (channels, n) block and evicts the oldest samples beyond
// capacity.
func (h *History) Append(b emg.Block) error {
	if err := b.Validate(len(h.data), b.Len()); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c, row := range b.Data {
		buf := append(h.data[c], row...)
		if over := len(buf) - h.capacity; over > 0 {
			// Copy down so the backing array does not grow without bound.
			buf = append(buf[:0], buf[over:]...)
		}
		h.data[c] = buf
	}
	h.total += int64(b.Len())
	return nil
}

// Now returns the timestamp of the newest sample, 0 when empty.
func (h *History) Now() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.now()
}

func (h *History) now() float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.total-1) / h.rate
}

// TimeAxis spans [max(0, t - capacity/rate), t] evenly over the buffered
// samples, t being the newest timestamp.
func (h *History) TimeAxis() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.timeAxis()
}

func (h *History) timeAxis() []float64 {
	n := len(h.data[0])
	if n == 0 {
		return []float64{}
	}
	t := h.now()
	axis := make([]float64, n)
	if n == 1 {
		axis[0] = t
		return axis
	}
	return floats.Span(axis, math.Max(0, t-float64(h.capacity)/h.rate), t)
}

// Snapshot returns a copy of the time axis and buffered data.
func (h *History) Snapshot() recording.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := recording.Snapshot{Time: h.timeAxis(), Data: make([][]float64, len(h.data))}
	for c, row := range h.data {
		s.Data[c] = append([]float64(nil), row...)
	}
	return s
}

// Reset empties the buffer and restarts the clock at 0.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.data {
		h.data[c] = nil
	}
	h.total = 0
}
