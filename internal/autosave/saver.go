package autosave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/security"
	"github.com/banshee-data/emg.gesture/internal/timeutil"
)

// ErrNothingToSave is returned when the buffer is empty.
var ErrNothingToSave = errors.New("live buffer is empty")

// Source supplies the buffer to save.
type Source interface {
	Snapshot() recording.Snapshot
	Paused() bool
}

// SavedFile describes one written file.
type SavedFile struct {
	Path    string           `json:"path"`
	Format  recording.Format `json:"format"`
	Samples int              `json:"samples"`
	Bytes   int64            `json:"bytes"`
	SavedAt time.Time        `json:"saved_at"`
	Auto    bool             `json:"auto"`
}

// Status is reported by GET /api/autosave.
type Status struct {
	Settings
	Running  bool       `json:"running"`
	Saves    int64      `json:"saves"`
	Failures int64      `json:"failures"`
	LastSave *SavedFile `json:"last_save,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
}

// Saver writes the buffer every interval while enabled and the source is
// not paused.
type Saver struct {
	src   Source
	clock timeutil.Clock

	mu       sync.Mutex
	settings Settings
	seq      int
	status   Status
	handlers []func([]SavedFile)
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	resetCh  chan struct{}
}

// NewSaver returns a stopped saver. A nil clock uses the wall clock.
func NewSaver(src Source, settings Settings, clock timeutil.Clock) (*Saver, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Saver{
		src:      src,
		clock:    clock,
		settings: settings,
		resetCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// OnSave registers a handler called with the files of every save.
func (s *Saver) OnSave(f func([]SavedFile)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, f)
	s.mu.Unlock()
}

// Settings returns the current settings.
func (s *Saver) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update replaces the settings; a running saver restarts its interval.
func (s *Saver) Update(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	select {
	case s.resetCh <- struct{}{}:
	default:
	}
	monitoring.Logf("auto-save settings: enabled=%t interval=%ds path=%s max=%dMB format=%s",
		settings.Enabled, settings.IntervalSeconds, settings.Dir, settings.MaxFileSizeMB, settings.Format)
	return nil
}

// Run saves on every interval until ctx is cancelled or Stop is called.
func (s *Saver) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("auto-saver is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	interval := s.settings.Interval()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-s.resetCh:
			ticker.Reset(s.Settings().Interval())
		case <-ticker.C():
			s.tick()
		}
	}
}

// Stop ends Run and waits for it to return.
func (s *Saver) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	doneCh := s.doneCh
	s.mu.Unlock()
	<-doneCh
}

func (s *Saver) tick() {
	settings := s.Settings()
	if !settings.Enabled || s.src.Paused() {
		return
	}
	if _, err := s.save(settings, settings.Format, true); err != nil && !errors.Is(err, ErrNothingToSave) {
		monitoring.Logf("auto-save failed: %v", err)
	}
}

// SaveNow writes the buffer immediately in format, or the configured format
// when format is empty.
func (s *Saver) SaveNow(format recording.Format) ([]SavedFile, error) {
	settings := s.Settings()
	if format == "" {
		format = settings.Format
	}
	if _, err := recording.ParseFormat(string(format)); err != nil {
		return nil, err
	}
	return s.save(settings, format, false)
}

func (s *Saver) save(settings Settings, format recording.Format, auto bool) ([]SavedFile, error) {
	snap := s.src.Snapshot()
	if snap.Len() == 0 {
		return nil, ErrNothingToSave
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.seq++
	base := fmt.Sprintf("emg_%s_%04d", now.Format("20060102_150405"), s.seq)
	s.mu.Unlock()

	files, err := WriteParts(settings.Dir, base, format, snap, settings.MaxBytes())
	for i := range files {
		files[i].SavedAt = now
		files[i].Auto = auto
	}

	s.mu.Lock()
	if err != nil {
		s.status.Failures++
		s.status.LastErr = err.Error()
	} else {
		s.status.Saves++
		s.status.LastErr = ""
		last := files[len(files)-1]
		s.status.LastSave = &last
	}
	handlers := append([]func([]SavedFile){}, s.handlers...)
	s.mu.Unlock()

	if err != nil {
		return files, err
	}
	for _, h := range handlers {
		h(files)
	}
	return files, nil
}

// Status reports settings and counters.
func (s *Saver) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Settings = s.settings
	st.Running = s.running
	return st
}

// WriteParts encodes snap and writes it to dir/base.<ext>. When the encoding
// exceeds maxBytes the samples are split evenly into the fewest parts that
// fit, written as base_partNN.<ext>.
func WriteParts(dir, base string, format recording.Format, snap recording.Snapshot, maxBytes int64) ([]SavedFile, error) {
	clean, err := security.EnsureDir(dir)
	if err != nil {
		return nil, &emg.FileIOError{Op: "mkdir", Path: dir, Err: err}
	}
	dir = clean
	base = security.SanitizeFilename(base)

	var buf bytes.Buffer
	if err := recording.EncodeSnapshot(&buf, format, snap); err != nil {
		return nil, err
	}
	if maxBytes <= 0 || int64(buf.Len()) <= maxBytes {
		path := filepath.Join(dir, base+format.Ext())
		if err := writeFile(path, buf.Bytes()); err != nil {
			return nil, err
		}
		return []SavedFile{{Path: path, Format: format, Samples: snap.Len(), Bytes: int64(buf.Len())}}, nil
	}

	n := snap.Len()
	parts := int((int64(buf.Len()) + maxBytes - 1) / maxBytes)
	for {
		if parts >= n {
			parts = n
			break
		}
		per := (n + parts - 1) / parts
		// Headers and uneven rows can push a part over the limit; grow the
		// part count until the largest part fits.
		buf.Reset()
		if err := recording.EncodeSnapshot(&buf, format, snap.Slice(0, per)); err != nil {
			return nil, err
		}
		if int64(buf.Len()) <= maxBytes {
			break
		}
		parts++
	}

	per := (n + parts - 1) / parts
	var files []SavedFile
	for p, start := 0, 0; start < n; p, start = p+1, start+per {
		part := snap.Slice(start, min(start+per, n))
		buf.Reset()
		if err := recording.EncodeSnapshot(&buf, format, part); err != nil {
			return files, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_part%02d%s", base, p+1, format.Ext()))
		if err := writeFile(path, buf.Bytes()); err != nil {
			return files, err
		}
		files = append(files, SavedFile{Path: path, Format: format, Samples: part.Len(), Bytes: int64(buf.Len())})
	}
	return files, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &emg.FileIOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
