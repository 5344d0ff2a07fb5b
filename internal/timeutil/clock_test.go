package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func TestRealClockTicker(t *testing.T) {
	clock := RealClock{}
	assert.WithinDuration(t, time.Now(), clock.Now(), time.Second)
	assert.GreaterOrEqual(t, clock.Since(time.Now().Add(-time.Second)), time.Second)

	ticker := clock.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockAdvance(t *testing.T) {
	clock := NewMockClock(epoch)
	clock.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), clock.Now())
	assert.Equal(t, 90*time.Second, clock.Since(epoch))

	later := epoch.Add(time.Hour)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestMockClockAfter(t *testing.T) {
	clock := NewMockClock(epoch)
	ch := clock.After(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case got := <-ch:
		assert.Equal(t, epoch.Add(time.Second), got)
	default:
		t.Fatal("did not fire at deadline")
	}

	select {
	case <-clock.After(0):
	default:
		t.Fatal("zero duration must fire immediately")
	}
}

func TestMockTickerDropsLateTicks(t *testing.T) {
	clock := NewMockClock(epoch)
	ticker := clock.NewTicker(100 * time.Millisecond)

	clock.Advance(50 * time.Millisecond)
	assert.Empty(t, ticker.C())

	// Five periods elapse with nobody reading: only one tick is buffered.
	clock.Advance(500 * time.Millisecond)
	assert.Len(t, ticker.C(), 1)
	<-ticker.C()

	clock.Advance(100 * time.Millisecond)
	assert.Len(t, ticker.C(), 1)
	<-ticker.C()

	ticker.Stop()
	clock.Advance(time.Second)
	assert.Empty(t, ticker.C())

	ticker.Reset(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	assert.Len(t, ticker.C(), 1)
}

func TestMockTickerTrigger(t *testing.T) {
	clock := NewMockClock(epoch)
	ticker := clock.NewTicker(time.Hour).(*MockTicker)
	ticker.Trigger(epoch)
	ticker.Trigger(epoch)
	assert.Len(t, ticker.C(), 1)
}

func TestWaitForTickers(t *testing.T) {
	clock := NewMockClock(epoch)
	assert.False(t, clock.WaitForTickers(1, 10*time.Millisecond))

	go func() {
		time.Sleep(5 * time.Millisecond)
		clock.NewTicker(time.Second)
	}()
	require.True(t, clock.WaitForTickers(1, time.Second))
}

func TestNewTickerPanicsOnZeroPeriod(t *testing.T) {
	assert.Panics(t, func() { NewMockClock(epoch).NewTicker(0) })
}
