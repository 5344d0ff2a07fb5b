// Package publish forwards recognition results to an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/emg.gesture/internal/monitoring"
	"github.com/banshee-data/emg.gesture/internal/recognition"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Publisher receives every finished session.
type Publisher interface {
	Publish(recognition.Result) error
	Close()
}

// NopPublisher drops everything. It is used when MQTT is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(recognition.Result) error { return nil }
func (NopPublisher) Close()                           {}

// Options configure the MQTT connection.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Gesture is the payload of <prefix>/gesture.
type Gesture struct {
	SessionID     string             `json:"session_id"`
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	At            time.Time          `json:"at"`
}

// MQTTPublisher publishes recognized gestures to <prefix>/gesture and every
// session result to <prefix>/session.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// Dial connects to the broker and returns a publisher for it.
func Dial(opts Options) (*MQTTPublisher, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqtt connection lost: %v", err)
		})
	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(timeoutOrDefault(opts.Timeout)) {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, err)
	}
	monitoring.Logf("connected to MQTT broker %s", opts.Broker)
	return NewMQTTPublisher(client, opts), nil
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client mqtt.Client, opts Options) *MQTTPublisher {
	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = "emg"
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  prefix,
		qos:     opts.QoS,
		timeout: timeoutOrDefault(opts.Timeout),
	}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}

// GestureTopic is where recognized gestures go.
func (p *MQTTPublisher) GestureTopic() string { return p.prefix + "/gesture" }

// SessionTopic is where every session result goes.
func (p *MQTTPublisher) SessionTopic() string { return p.prefix + "/session" }

// Publish sends the session result and, when a gesture was recognized, the
// gesture event.
func (p *MQTTPublisher) Publish(res recognition.Result) error {
	if res.State == recognition.Succeeded && res.Prediction != nil && res.Prediction.Known() {
		g := Gesture{
			SessionID:     res.SessionID,
			Label:         res.Prediction.Label,
			Confidence:    res.Prediction.Confidence,
			Probabilities: res.Prediction.Probabilities,
			At:            res.FinishedAt,
		}
		if err := p.send(p.GestureTopic(), g); err != nil {
			return err
		}
	}
	return p.send(p.SessionTopic(), res)
}

func (p *MQTTPublisher) send(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing a quarter second for in-flight messages.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
