package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// PortOptions describes the UART parameters of a serial-attached gateway.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills defaults (115200 8N1).
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial expects.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// OpenFunc opens a serial port. It matches serial.Open.
type OpenFunc func(path string, mode *serial.Mode) (io.WriteCloser, error)

func openSerial(path string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(path, mode)
}

// SerialTransport writes report lines to a UART. A serial link has no peer
// close, so the connection is considered live until a write fails.
type SerialTransport struct {
	Path    string
	Options PortOptions
	Open    OpenFunc
}

// NewSerialTransport creates a transport for the port at path.
func NewSerialTransport(path string, opts PortOptions) *SerialTransport {
	return &SerialTransport{Path: path, Options: opts, Open: openSerial}
}

func (t *SerialTransport) String() string { return "serial://" + t.Path }

// Dial opens the port. The open call itself is not cancellable; the context
// is only checked beforehand.
func (t *SerialTransport) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode, err := t.Options.SerialMode()
	if err != nil {
		return nil, err
	}
	open := t.Open
	if open == nil {
		open = openSerial
	}
	port, err := open(t.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", t.Path, err)
	}
	return &serialConn{port: port}, nil
}

type serialConn struct {
	mu     sync.Mutex
	port   io.WriteCloser
	failed bool
}

func (c *serialConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.port.Write(p)
	if err != nil {
		c.failed = true
	}
	return n, err
}

func (c *serialConn) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.failed
}

func (c *serialConn) Close() error { return c.port.Close() }
