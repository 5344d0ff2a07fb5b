package daq

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/emg"
)

func TestParseSampleLine(t *testing.T) {
	tests := []struct {
		line    string
		want    []float64
		wantErr bool
	}{
		{"1.5,2,-3,0.25", []float64{1.5, 2, -3, 0.25}, false},
		{" 1, 2 ,3,4\r", []float64{1, 2, 3, 4}, false},
		{"1,2,3", nil, true},
		{"1,2,x,4", nil, true},
		{"", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseSampleLine(tt.line, 4)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSerialSourceConfigureSendsCommands(t *testing.T) {
	port := newPipePort()
	src := NewSerialSource(port)
	require.NoError(t, src.Configure(Settings{SampleRate: 2000, Channels: 4, SamplesPerRead: 500}))
	assert.Equal(t, "STOP\nRATE=2000\nCHANNELS=4\nSTART\n", port.Written())

	require.NoError(t, src.Close())
	assert.Contains(t, port.Written(), "START\nSTOP\n")
}

func TestSerialSourceRead(t *testing.T) {
	port := newPipePort()
	src := NewSerialSource(port)
	require.NoError(t, src.Configure(Settings{SampleRate: 1000, Channels: 2, SamplesPerRead: 3}))
	defer src.Close()

	go func() {
		fmt.Fprint(port.device, "1,10\nnoise\n2,20\n3,30\n4,40\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := src.Read(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {10, 20, 30}}, b.Data)
}

func TestSerialSourceReadHonoursContext(t *testing.T) {
	port := newPipePort()
	src := NewSerialSource(port)
	require.NoError(t, src.Configure(Settings{SampleRate: 1000, Channels: 2, SamplesPerRead: 3}))
	defer src.Close()

	h := &Handle{src: src, settings: Settings{SampleRate: 1000, Channels: 2, SamplesPerRead: 3}, timeout: 20 * time.Millisecond}
	_, err := h.Read(context.Background(), OwnerDisplay, 3)
	assert.ErrorIs(t, err, emg.ErrReadTimeout)
}

func TestSerialSourceStreamEnd(t *testing.T) {
	port := newPipePort()
	src := NewSerialSource(port)
	require.NoError(t, src.Configure(Settings{SampleRate: 1000, Channels: 1, SamplesPerRead: 2}))

	go func() {
		fmt.Fprint(port.device, "7\n")
		port.device.Close()
	}()
	_, err := src.Read(context.Background(), 2)
	assert.ErrorContains(t, err, "serial stream ended")
	require.NoError(t, src.Close())
}

func TestSerialSourceLeaseStartsAtNewestSample(t *testing.T) {
	port := newPipePort()
	src := NewSerialSource(port)
	settings := Settings{SampleRate: 2000, Channels: 1, SamplesPerRead: 500}
	h, err := NewHandle(src, settings, 5*time.Second)
	require.NoError(t, err)
	defer h.Close()

	// Ten seconds of signal arrive while nobody reads.
	var backlog strings.Builder
	for i := 0; i < 20000; i++ {
		fmt.Fprintf(&backlog, "%d\n", i)
	}
	_, err = io.WriteString(port.device, backlog.String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(src.samples) == 20000 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, h.Acquire(OwnerRecognition))
	assert.Zero(t, len(src.samples))
	assert.EqualValues(t, 20000, src.Dropped())
	assert.EqualValues(t, 20000, h.Status().Flushed)

	go func() {
		for i := 20000; i < 20500; i++ {
			fmt.Fprintf(port.device, "%d\n", i)
		}
	}()
	b, err := h.Read(context.Background(), OwnerRecognition, 500)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, b.Data[0][0])
	assert.Equal(t, 20499.0, b.Data[0][499])
}

func TestSerialSourceReadBeforeConfigure(t *testing.T) {
	_, err := NewSerialSource(newPipePort()).Read(context.Background(), 1)
	assert.Error(t, err)
}

func TestPortOptionsNormalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: " even "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", got.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}

	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
}
