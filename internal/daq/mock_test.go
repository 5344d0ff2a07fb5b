package daq

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestSyntheticSourceIsDeterministic(t *testing.T) {
	settings := Settings{SampleRate: 1000, Channels: 4, SamplesPerRead: 250}
	a, b := NewSyntheticSource(7, false), NewSyntheticSource(7, false)
	require.NoError(t, a.Configure(settings))
	require.NoError(t, b.Configure(settings))

	ba, err := a.Read(context.Background(), 250)
	require.NoError(t, err)
	bb, err := b.Read(context.Background(), 250)
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
	require.NoError(t, ba.Validate(4, 250))

	// Channel 0 carries the burst at the start.
	assert.Greater(t, stat.Variance(ba.Data[0], nil), 10*stat.Variance(ba.Data[1], nil))
}

func TestSyntheticSourceBurstMoves(t *testing.T) {
	src := NewSyntheticSource(1, false)
	src.BurstPeriod = 100 * time.Millisecond
	require.NoError(t, src.Configure(Settings{SampleRate: 1000, Channels: 2, SamplesPerRead: 100}))

	_, err := src.Read(context.Background(), 100)
	require.NoError(t, err)
	b, err := src.Read(context.Background(), 100)
	require.NoError(t, err)
	assert.Greater(t, stat.Variance(b.Data[1], nil), 10*stat.Variance(b.Data[0], nil))
}

func TestSyntheticSourceRealtime(t *testing.T) {
	src := NewSyntheticSource(1, true)
	require.NoError(t, src.Configure(Settings{SampleRate: 1000, Channels: 1, SamplesPerRead: 10}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := src.Read(ctx, 1000)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, src.Close())
	_, err = src.Read(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScriptedSourceRepeatsLastRead(t *testing.T) {
	src := NewScriptedSource(ScriptedRead{Block: rampBlock()}, ScriptedRead{Err: assert.AnError})
	var seen []int
	src.OnRead(func(n int) { seen = append(seen, n) })

	_, err := src.Read(context.Background(), 3)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = src.Read(context.Background(), 3)
		assert.ErrorIs(t, err, assert.AnError)
	}
	assert.Equal(t, 3, src.Reads())
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestAdminRoutes(t *testing.T) {
	port := newPipePort()
	serialSrc := NewSerialSource(port)
	h, err := NewHandle(serialSrc, testSettings(), time.Second)
	require.NoError(t, err)
	defer h.Close()

	mux := http.NewServeMux()
	h.AttachAdminRoutes(mux)

	rec := httptestRecorder(mux, localHostRequest(http.MethodGet, "/debug/daq", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sample_rate": 1000`)

	form := url.Values{"command": {"RATE=500"}}
	req := localHostRequest(http.MethodPost, "/debug/daq-command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptestRecorder(mux, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, port.Written(), "RATE=500\n")

	rec = httptestRecorder(mux, localHostRequest(http.MethodPost, "/debug/daq-command", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptestRecorder(mux, localHostRequest(http.MethodGet, "/debug/daq-command", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
