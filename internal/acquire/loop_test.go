package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/daq"
	"github.com/banshee-data/emg.gesture/internal/emg"
	"github.com/banshee-data/emg.gesture/internal/recording"
	"github.com/banshee-data/emg.gesture/internal/timeutil"
)

type recordingDisplay struct {
	mu     sync.Mutex
	frames []recording.Snapshot
	ch     chan struct{}
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{ch: make(chan struct{}, 16)}
}

func (d *recordingDisplay) Update(s recording.Snapshot) {
	d.mu.Lock()
	d.frames = append(d.frames, s)
	d.mu.Unlock()
	d.ch <- struct{}{}
}

func (d *recordingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.frames)
}

func newTestLoop(t *testing.T, clock timeutil.Clock, script ...daq.ScriptedRead) (*Loop, *daq.Handle, *recordingDisplay) {
	t.Helper()
	settings := daq.Settings{SampleRate: 100, Channels: 2, SamplesPerRead: 4}
	h, err := daq.NewHandle(daq.NewScriptedSource(script...), settings, time.Second)
	require.NoError(t, err)
	hist, err := NewHistory(2, 10, settings.SampleRate)
	require.NoError(t, err)
	disp := newRecordingDisplay()
	l, err := NewLoop(Config{Handle: h, History: hist, Interval: 40 * time.Millisecond, Display: disp, Clock: clock})
	require.NoError(t, err)
	return l, h, disp
}

func TestNewLoopValidates(t *testing.T) {
	h, err := daq.NewHandle(daq.NewScriptedSource(), daq.Settings{SampleRate: 1, Channels: 2, SamplesPerRead: 1}, 0)
	require.NoError(t, err)
	hist, err := NewHistory(3, 10, 1)
	require.NoError(t, err)

	_, err = NewLoop(Config{Handle: h, History: hist, Interval: time.Second})
	assert.Error(t, err, "channel mismatch")
	_, err = NewLoop(Config{History: hist, Interval: time.Second})
	assert.Error(t, err)
	_, err = NewLoop(Config{Handle: h, History: hist})
	assert.Error(t, err)
}

func TestTickAppendsAndDisplays(t *testing.T) {
	l, _, disp := newTestLoop(t, nil, daq.ScriptedRead{Block: seqBlock(2, 4, 0)})
	require.NoError(t, l.Tick(context.Background()))
	require.NoError(t, l.Tick(context.Background()))

	require.Equal(t, 2, disp.count())
	last := disp.frames[1]
	assert.Len(t, last.Time, 8)
	assert.Equal(t, []float64{0, 1, 2, 3, 0, 1, 2, 3}, last.Data[0])
	assert.InDelta(t, 0.07, last.Time[7], 1e-12)
	assert.Equal(t, Stats{Ticks: 2, Reads: 2}, l.Status().Stats)
}

func TestTickSkipsFailedRead(t *testing.T) {
	boom := errors.New("adc fault")
	l, _, disp := newTestLoop(t, nil,
		daq.ScriptedRead{Block: seqBlock(2, 4, 0)},
		daq.ScriptedRead{Err: boom},
		daq.ScriptedRead{Block: seqBlock(2, 4, 4)},
	)
	ctx := context.Background()
	require.NoError(t, l.Tick(ctx))

	err := l.Tick(ctx)
	var hre *emg.HardwareReadError
	require.ErrorAs(t, err, &hre)
	assert.Equal(t, 4, l.History().Len(), "failed tick leaves the buffer alone")

	require.NoError(t, l.Tick(ctx))
	assert.Equal(t, 8, l.History().Len())
	assert.Equal(t, 2, disp.count())
	assert.Equal(t, Stats{Ticks: 3, Reads: 2, Failed: 1}, l.Status().Stats)
}

func TestTickSkipsWhileDeviceLeased(t *testing.T) {
	l, h, disp := newTestLoop(t, nil, daq.ScriptedRead{Block: seqBlock(2, 4, 0)})
	require.NoError(t, h.Acquire(daq.OwnerRecognition))

	assert.ErrorIs(t, l.Tick(context.Background()), daq.ErrBusy)
	assert.Zero(t, disp.count())

	h.Release(daq.OwnerRecognition)
	require.NoError(t, l.Tick(context.Background()))
	assert.Equal(t, Stats{Ticks: 2, Reads: 1, Busy: 1}, l.Status().Stats)
}

func TestPauseResume(t *testing.T) {
	l, _, disp := newTestLoop(t, nil, daq.ScriptedRead{Block: seqBlock(2, 4, 0)})
	l.Pause()
	assert.True(t, l.Paused())
	require.NoError(t, l.Tick(context.Background()))
	assert.Zero(t, disp.count())
	assert.Zero(t, l.History().Len())

	l.Resume()
	require.NoError(t, l.Tick(context.Background()))
	assert.Equal(t, 1, disp.count())
	assert.EqualValues(t, 1, l.Status().Skipped)
}

func TestResumeDropsSignalQueuedWhilePaused(t *testing.T) {
	src := daq.NewScriptedSource(daq.ScriptedRead{Block: seqBlock(2, 4, 0)})
	h, err := daq.NewHandle(src, daq.Settings{SampleRate: 100, Channels: 2, SamplesPerRead: 4}, time.Second)
	require.NoError(t, err)
	hist, err := NewHistory(2, 10, 100)
	require.NoError(t, err)
	l, err := NewLoop(Config{Handle: h, History: hist, Interval: 40 * time.Millisecond})
	require.NoError(t, err)

	l.Resume()
	assert.Zero(t, src.Flushes(), "resuming a running loop keeps the queue")

	l.Pause()
	src.Queue(300)
	l.Resume()
	assert.Equal(t, 1, src.Flushes())
	assert.EqualValues(t, 300, h.Status().Flushed)
}

func TestRunTicksOnClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, _, disp := newTestLoop(t, clock, daq.ScriptedRead{Block: seqBlock(2, 4, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	require.True(t, clock.WaitForTickers(1, time.Second))

	for i := 1; i <= 3; i++ {
		clock.Advance(40 * time.Millisecond)
		select {
		case <-disp.ch:
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
	}
	assert.True(t, l.Status().Running)
	assert.Error(t, l.Run(ctx), "second Run is refused")

	l.Stop()
	require.NoError(t, <-errCh)
	assert.False(t, l.Status().Running)
	assert.Equal(t, 3, disp.count())
	l.Stop()
}

func TestRunStopsOnContext(t *testing.T) {
	l, _, _ := newTestLoop(t, timeutil.NewMockClock(time.Now()), daq.ScriptedRead{Block: seqBlock(2, 4, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
