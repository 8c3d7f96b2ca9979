package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTTransport publishes each report line as one message on
// parking/<space>/state. Paho's own reconnect is disabled; the session
// owns the backoff.
type MQTTTransport struct {
	Broker         string
	ClientID       string
	Topic          string
	QoS            byte
	PublishTimeout time.Duration

	// NewClient builds the paho client. Defaults to mqtt.NewClient.
	NewClient func(*mqtt.ClientOptions) mqtt.Client
}

// StateTopic returns the topic reports for a space are published on.
func StateTopic(spaceID int) string {
	return fmt.Sprintf("parking/%d/state", spaceID)
}

// NewMQTTTransport creates a QoS 1 transport for the given space.
func NewMQTTTransport(broker, clientID string, spaceID int) *MQTTTransport {
	return &MQTTTransport{
		Broker:         broker,
		ClientID:       clientID,
		Topic:          StateTopic(spaceID),
		QoS:            1,
		PublishTimeout: time.Second,
		NewClient:      mqtt.NewClient,
	}
}

func (t *MQTTTransport) String() string { return t.Broker + "/" + t.Topic }

// Dial connects to the broker, giving up when ctx is done.
func (t *MQTTTransport) Dial(ctx context.Context) (Conn, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(t.Broker).
		SetClientID(t.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true)
	if dl, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(dl))
	}

	newClient := t.NewClient
	if newClient == nil {
		newClient = mqtt.NewClient
	}
	client := newClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	timeout := t.PublishTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &mqttConn{client: client, topic: t.Topic, qos: t.QoS, timeout: timeout}, nil
}

type mqttConn struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func (c *mqttConn) Write(p []byte) (int, error) {
	payload := bytes.TrimRight(p, "\n")
	token := c.client.Publish(c.topic, c.qos, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return 0, fmt.Errorf("publish to %s timed out after %v", c.topic, c.timeout)
	}
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *mqttConn) Live() bool { return c.client.IsConnectionOpen() }

func (c *mqttConn) Close() error {
	c.client.Disconnect(250)
	return nil
}
