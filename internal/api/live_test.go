package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/acquire"
	"github.com/banshee-data/emg.gesture/internal/recording"
)

var _ acquire.Display = (*Hub)(nil)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHubStreamsFrames(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(LoggingMiddleware(NewServer(Options{Live: hub, Acquisition: &fakeAcquisition{}}).ServeMux()))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)

	hub.Update(testSnapshot(3))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(msg, &f))
	assert.Equal(t, []float64{0, 0.01, 0.02}, f.Time)
	require.Len(t, f.Channels, 2)
	assert.Equal(t, []float64{0, -1, -2}, f.Channels[1])
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub()
	c := &liveClient{send: make(chan []byte, clientQueue)}
	hub.clients[c] = struct{}{}

	for range clientQueue + 3 {
		hub.Update(testSnapshot(2))
	}
	assert.Len(t, c.send, clientQueue)
	assert.EqualValues(t, 3, hub.Dropped())
}

func TestHubUpdateWithoutClients(t *testing.T) {
	hub := NewHub()
	hub.Update(recording.Snapshot{})
	assert.Zero(t, hub.Dropped())
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(Options{Live: hub, Acquisition: &fakeAcquisition{}}).ServeMux())
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewServer(Options{Live: hub, Acquisition: &fakeAcquisition{}}).ServeMux())
	defer srv.Close()

	conn := dialHub(t, srv)
	waitClients(t, hub, 1)
	hub.Close()
	assert.Zero(t, hub.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
