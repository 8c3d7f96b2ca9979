package report

import (
	"context"
	"errors"
	"net"
	"time"
)

// liveProbeWindow is how long Live waits for a pending EOF or reset.
const liveProbeWindow = time.Millisecond

// TCPTransport dials the aggregator over TCP.
type TCPTransport struct {
	Addr         string
	WriteTimeout time.Duration
}

// NewTCPTransport creates a TCP transport for host:port with a 1s write
// bound.
func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{Addr: addr, WriteTimeout: time.Second}
}

func (t *TCPTransport) String() string { return "tcp://" + t.Addr }

// Dial connects, bounded by the context deadline.
func (t *TCPTransport) Dial(ctx context.Context) (Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, err
	}
	return &tcpConn{Conn: c, writeTimeout: t.WriteTimeout}, nil
}

type tcpConn struct {
	net.Conn
	writeTimeout time.Duration
}

func (c *tcpConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// Live performs a short read. A timeout means the peer is idle but present;
// EOF or a reset means it has gone. Bytes sent by the aggregator on the
// report stream carry nothing for the sensor and are discarded.
func (c *tcpConn) Live() bool {
	if err := c.Conn.SetReadDeadline(time.Now().Add(liveProbeWindow)); err != nil {
		return false
	}
	defer c.Conn.SetReadDeadline(time.Time{})

	var buf [64]byte
	_, err := c.Conn.Read(buf[:])
	if err == nil {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
