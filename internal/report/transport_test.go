package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}, got)

	for _, bad := range []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.OddParity}, mode)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

type fakePort struct {
	bytes.Buffer
	err    error
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	return p.Buffer.Write(b)
}

func (p *fakePort) Close() error { p.closed = true; return nil }

func TestSerialTransport(t *testing.T) {
	quiet(t)
	port := &fakePort{}
	var gotPath string
	var gotMode *serial.Mode
	tr := NewSerialTransport("/dev/ttyUSB0", PortOptions{BaudRate: 57600})
	tr.Open = func(path string, mode *serial.Mode) (io.WriteCloser, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}
	assert.Equal(t, "serial:///dev/ttyUSB0", tr.String())

	s := NewSession(tr, DefaultSessionConfig())
	require.NoError(t, s.Maintain(context.Background(), t0))
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 57600, gotMode.BaudRate)

	require.NoError(t, s.Send(Report{SpaceID: 1, DistanceCM: 80, Timestamp: 5}))
	assert.Equal(t, `{"parkingId":1,"occupied":false,"distance":80.0,"timestamp":5}`+"\n", port.String())

	port.err = errors.New("device unplugged")
	assert.Error(t, s.Send(Report{SpaceID: 1}))
	assert.False(t, s.Connected())
	assert.True(t, port.closed)
}

func TestSerialTransport_OpenError(t *testing.T) {
	tr := NewSerialTransport("/dev/missing", PortOptions{})
	tr.Open = func(string, *serial.Mode) (io.WriteCloser, error) {
		return nil, errors.New("no such file")
	}
	_, err := tr.Dial(context.Background())
	assert.ErrorContains(t, err, "/dev/missing")
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type publish struct {
	topic   string
	qos     byte
	payload string
}

type fakeMQTT struct {
	mqtt.Client
	connectErr   error
	open         bool
	published    []publish
	disconnected bool
}

func (c *fakeMQTT) Connect() mqtt.Token {
	c.open = c.connectErr == nil
	return doneToken(c.connectErr)
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, publish{topic: topic, qos: qos, payload: string(payload.([]byte))})
	return doneToken(nil)
}

func (c *fakeMQTT) IsConnectionOpen() bool { return c.open }
func (c *fakeMQTT) Disconnect(uint)       { c.open = false; c.disconnected = true }

func TestMQTTTransport_Publish(t *testing.T) {
	quiet(t)
	client := &fakeMQTT{}
	var opts *mqtt.ClientOptions
	tr := NewMQTTTransport("tcp://broker:1883", "parking-4", 4)
	tr.NewClient = func(o *mqtt.ClientOptions) mqtt.Client {
		opts = o
		return client
	}

	s := NewSession(tr, DefaultSessionConfig())
	require.NoError(t, s.Maintain(context.Background(), t0))
	assert.Equal(t, "parking-4", opts.ClientID)
	assert.False(t, opts.AutoReconnect)

	require.NoError(t, s.Send(Report{SpaceID: 4, Occupied: true, DistanceCM: 22, Timestamp: 7}))
	require.Len(t, client.published, 1)
	assert.Equal(t, publish{
		topic:   "parking/4/state",
		qos:     1,
		payload: `{"parkingId":4,"occupied":true,"distance":22.0,"timestamp":7}`,
	}, client.published[0])

	client.open = false
	assert.ErrorIs(t, s.Send(Report{SpaceID: 4}), ErrConnectionLost)
	assert.True(t, client.disconnected)
}

func TestMQTTTransport_ConnectError(t *testing.T) {
	tr := NewMQTTTransport("tcp://broker:1883", "parking-1", 1)
	tr.NewClient = func(*mqtt.ClientOptions) mqtt.Client {
		return &fakeMQTT{connectErr: errors.New("not authorised")}
	}
	_, err := tr.Dial(context.Background())
	assert.EqualError(t, err, "not authorised")
}
