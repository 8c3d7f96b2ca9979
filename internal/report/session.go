package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

var (
	// ErrNotConnected is returned by Send while the session is disconnected.
	// The report is dropped; the caller must not wait for connectivity.
	ErrNotConnected = errors.New("report session not connected")
	// ErrConnectionLost is returned by Send when the write succeeded but the
	// channel was found dead immediately afterwards, so delivery is unknown.
	ErrConnectionLost = errors.New("report connection lost after write")
)

// ConnectError is a failed reconnect attempt. It is never fatal: the next
// attempt happens once the reconnect interval has elapsed.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Conn is an established stream to the aggregator.
type Conn interface {
	io.Writer
	// Live reports whether the peer is still reachable. It must return
	// quickly.
	Live() bool
	Close() error
}

// Transport opens connections. Implementations must honour the context
// deadline so a connect attempt cannot stall the caller.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// ConnectionState is the session's connectivity bookkeeping.
type ConnectionState struct {
	Connected   bool
	LastAttempt time.Time
}

// SessionConfig holds the session timing.
type SessionConfig struct {
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
}

// DefaultSessionConfig returns a 5s reconnect backoff and a 2s dial bound.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReconnectInterval: 5 * time.Second,
		ConnectTimeout:    2 * time.Second,
	}
}

// Session owns the transport connection. It is driven from a single loop and
// is not safe for concurrent use.
type Session struct {
	transport Transport
	cfg       SessionConfig
	conn      Conn
	state     ConnectionState
	attempted bool

	sent    int
	dropped int
}

// NewSession creates a disconnected session. The first Maintain call
// attempts to connect immediately.
func NewSession(t Transport, cfg SessionConfig) *Session {
	return &Session{transport: t, cfg: cfg}
}

// Maintain reconnects when disconnected and at least ReconnectInterval has
// passed since the previous attempt. Every attempt updates LastAttempt
// whatever its outcome. A failed attempt is returned as *ConnectError.
func (s *Session) Maintain(ctx context.Context, now time.Time) error {
	if s.conn != nil {
		return nil
	}
	if s.attempted && now.Sub(s.state.LastAttempt) < s.cfg.ReconnectInterval {
		return nil
	}

	s.attempted = true
	s.state.LastAttempt = now

	dialCtx := ctx
	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	monitoring.Logf("connecting to %s...", s.transport)
	conn, err := s.transport.Dial(dialCtx)
	if err != nil {
		return &ConnectError{Endpoint: s.transport.String(), Err: err}
	}
	s.conn = conn
	s.state.Connected = true
	monitoring.Logf("✅ connected to %s", s.transport)
	return nil
}

// Send writes one report line. It never blocks waiting for connectivity.
func (s *Session) Send(r Report) error {
	if s.conn == nil {
		s.dropped++
		return ErrNotConnected
	}

	line, err := r.Line()
	if err != nil {
		s.dropped++
		return err
	}

	if _, err := s.conn.Write(line); err != nil {
		s.dropped++
		s.disconnect()
		return fmt.Errorf("failed to write report: %w", err)
	}
	s.sent++

	if !s.conn.Live() {
		s.disconnect()
		monitoring.Logf("⚠️ connection to %s lost", s.transport)
		return ErrConnectionLost
	}
	return nil
}

// Connected reports whether a connection is established.
func (s *Session) Connected() bool { return s.conn != nil }

// State returns the connectivity bookkeeping.
func (s *Session) State() ConnectionState { return s.state }

// Counts returns how many reports were written and dropped.
func (s *Session) Counts() (sent, dropped int) { return s.sent, s.dropped }

// Transport returns the current transport.
func (s *Session) Transport() Transport { return s.transport }

// SetTransport switches to a new endpoint. The current connection is closed
// and the next Maintain call reconnects without waiting for the backoff.
func (s *Session) SetTransport(t Transport) {
	s.disconnect()
	s.transport = t
	s.attempted = false
}

// Close drops the connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.state.Connected = false
	return err
}

func (s *Session) disconnect() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			monitoring.Logf("failed to close connection to %s: %v", s.transport, err)
		}
	}
	s.conn = nil
	s.state.Connected = false
}
