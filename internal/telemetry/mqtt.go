package telemetry

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"oven_controller/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTConfig configures MQTTPublisher.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
}

// MQTTPublisher publishes to a real broker.
type MQTTPublisher struct {
	client paho.Client
	topic  string
}

var _ Publisher = (*MQTTPublisher)(nil)

// NewMQTTPublisher connects to the broker. The client reconnects on its own
// after the first successful connect.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "oven-controller"
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTPublisher{client: client, topic: cfg.Topic}, nil
}

// PublishState sends a retained state snapshot so new subscribers see the
// current oven state immediately.
func (p *MQTTPublisher) PublishState(st models.OvenState) error {
	payload, err := FormatState(st, time.Now())
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	return p.publish(StateTopic(p.topic), 0, true, payload)
}

// PublishEvent sends an event with QoS 1.
func (p *MQTTPublisher) PublishEvent(e models.OvenEvent) error {
	payload, err := FormatEvent(e)
	if err != nil {
		return fmt.Errorf("format event: %w", err)
	}
	return p.publish(EventTopic(p.topic), 1, false, payload)
}

func (p *MQTTPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
