package segment

import (
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

// Interval is a span inside one protocol period, in seconds from the start of
// the period.
type Interval struct {
	Offset   float64 `json:"offset" yaml:"offset"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// Protocol is the data-collection schedule: each label is performed during
// the same interval of every period, up to Total seconds.
type Protocol struct {
	Period    float64             `json:"period" yaml:"period"`
	Total     float64             `json:"total" yaml:"total"`
	Intervals map[string]Interval `json:"intervals" yaml:"intervals"`
}

// DefaultProtocol is the four-gesture schedule the rig was recorded with:
// a 16 s cycle of 2 s holds separated by 2 s rests, 32 cycles.
func DefaultProtocol() Protocol {
	return Protocol{
		Period: 16,
		Total:  512,
		Intervals: map[string]Interval{
			"i": {Offset: 0, Duration: 2},
			"b": {Offset: 4, Duration: 2},
			"h": {Offset: 8, Duration: 2},
			"e": {Offset: 12, Duration: 2},
		},
	}
}

// Labels returns the protocol labels in sorted order.
func (p Protocol) Labels() []string {
	labels := make([]string, 0, len(p.Intervals))
	for l := range p.Intervals {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// Validate checks the schedule is usable.
func (p Protocol) Validate() error {
	if p.Period <= 0 {
		return fmt.Errorf("protocol period must be positive, got %g", p.Period)
	}
	if len(p.Intervals) == 0 {
		return fmt.Errorf("protocol has no intervals")
	}
	for label, iv := range p.Intervals {
		if label == "" {
			return fmt.Errorf("protocol interval has empty label")
		}
		if iv.Offset < 0 || iv.Duration <= 0 || iv.Offset+iv.Duration > p.Period {
			return fmt.Errorf("interval %q (offset %g, duration %g) does not fit period %g",
				label, iv.Offset, iv.Duration, p.Period)
		}
	}
	return nil
}

// Spans returns the [start, end) sample ranges for label across the
// recording. Ranges ending past Total (when set) are dropped. A range that
// runs past the end of the recording is cut short at n.
func (p Protocol) Spans(label string, sampleRate float64, n int) [][2]int {
	iv, ok := p.Intervals[label]
	if !ok || p.Period <= 0 || sampleRate <= 0 {
		return nil
	}
	var spans [][2]int
	for k := 0; ; k++ {
		startSec := iv.Offset + float64(k)*p.Period
		endSec := startSec + iv.Duration
		if p.Total > 0 && endSec > p.Total {
			break
		}
		start := int(math.Round(startSec * sampleRate))
		if start >= n {
			break
		}
		end := min(int(math.Round(endSec*sampleRate)), n)
		spans = append(spans, [2]int{start, end})
	}
	return spans
}

// Extract concatenates, per label, every scheduled interval of rec into one
// super-segment.
func Extract(rec *emg.Recording, sampleRate float64, p Protocol) (map[string]*emg.Recording, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	out := make(map[string]*emg.Recording, len(p.Intervals))
	for _, label := range p.Labels() {
		seg := emg.NewRecording(rec.Channels)
		for _, span := range p.Spans(label, sampleRate, rec.Len()) {
			seg.Samples = append(seg.Samples, rec.Samples[span[0]:span[1]]...)
		}
		out[label] = seg
	}
	return out, nil
}
