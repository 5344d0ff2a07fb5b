package publish

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emg.gesture/internal/classifier"
	"github.com/banshee-data/emg.gesture/internal/recognition"
)

type fakeToken struct {
	done   bool
	err    error
	doneCh chan struct{}
}

func newToken(done bool, err error) *fakeToken {
	t := &fakeToken{done: done, err: err, doneCh: make(chan struct{})}
	if done {
		close(t.doneCh)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{}          { return t.doneCh }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

// fakeClient records publishes. Methods not overridden panic via the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	sent         []message
	token        *fakeToken
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, message{topic: topic, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return newToken(true, nil)
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func succeeded() recognition.Result {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return recognition.Result{
		SessionID: "s1",
		State:     recognition.Succeeded,
		Prediction: &classifier.Prediction{
			Label:         "b",
			Best:          "b",
			Confidence:    0.9,
			Probabilities: map[string]float64{"i": 0.05, "b": 0.9, "h": 0.03, "e": 0.02},
		},
		Attempts:   4,
		Reads:      4,
		StartedAt:  at.Add(-time.Second),
		FinishedAt: at,
	}
}

func TestPublishRecognizedGesture(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, Options{TopicPrefix: "lab/emg/"})

	require.NoError(t, p.Publish(succeeded()))
	require.Len(t, client.sent, 2)
	assert.Equal(t, "lab/emg/gesture", client.sent[0].topic)
	assert.Equal(t, "lab/emg/session", client.sent[1].topic)

	var g Gesture
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &g))
	assert.Equal(t, "b", g.Label)
	assert.Equal(t, "s1", g.SessionID)
	assert.InDelta(t, 0.9, g.Confidence, 1e-12)

	var res map[string]any
	require.NoError(t, json.Unmarshal(client.sent[1].payload, &res))
	assert.Equal(t, "succeeded", res["state"])

	p.Close()
	assert.True(t, client.disconnected)
}

func TestPublishCancelledSessionOnly(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, Options{})

	res := recognition.Result{SessionID: "s2", State: recognition.Cancelled}
	require.NoError(t, p.Publish(res))
	require.Len(t, client.sent, 1)
	assert.Equal(t, "emg/session", client.sent[0].topic)
}

func TestPublishErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		client := &fakeClient{token: newToken(false, nil)}
		p := NewMQTTPublisher(client, Options{Timeout: time.Millisecond})
		err := p.Publish(succeeded())
		assert.ErrorIs(t, err, ErrPublishTimeout)
		assert.Len(t, client.sent, 1, "gesture failure stops before the session message")
	})
	t.Run("broker error", func(t *testing.T) {
		boom := errors.New("not authorized")
		client := &fakeClient{token: newToken(true, boom)}
		p := NewMQTTPublisher(client, Options{})
		assert.ErrorIs(t, p.Publish(recognition.Result{State: recognition.Failed}), boom)
	})
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(succeeded()))
	p.Close()
}
