// Package aggregator receives report lines, images and commands from
// parking sensors over newline-framed TCP streams.
package aggregator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/report"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

const (
	commandPrefix = "COMMAND:"
	// MaxLineBytes bounds one stream line; an image line carries the whole
	// base64 encoded still.
	MaxLineBytes = 16 << 20
)

// Store persists what the server receives.
type Store interface {
	UpsertSpace(ctx context.Context, r db.SpaceReport) error
	RecordCapture(ctx context.Context, c db.CaptureRecord) error
}

// Server accepts sensor connections. Each connection is handled on its own
// goroutine.
type Server struct {
	store     Store
	imagesDir string
	clock     timeutil.Clock
	startedAt time.Time

	// NewID generates capture ids. Defaults to uuid.New.
	NewID func() uuid.UUID

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// NewServer creates a server storing images under imagesDir.
func NewServer(store Store, imagesDir string, clock timeutil.Clock) *Server {
	return &Server{
		store:     store,
		imagesDir: imagesDir,
		clock:     clock,
		startedAt: clock.Now(),
		NewID:     uuid.New,
		clients:   make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes every
// client and waits for the handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		ln.Close()
		return fmt.Errorf("failed to create images directory: %w", err)
	}
	monitoring.Logf("🚀 aggregator listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeClients()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.closeClients()
			s.wg.Wait()
			return err
		}
		s.track(conn)
		if ctx.Err() != nil {
			conn.Close()
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// ClientsConnected is the number of open sensor connections.
func (s *Server) ClientsConnected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	source := hostOf(conn.RemoteAddr())
	monitoring.Logf("🔌 sensor connected: %s", conn.RemoteAddr())
	defer func() {
		s.untrack(conn)
		conn.Close()
		monitoring.Logf("🔌 sensor disconnected: %s", conn.RemoteAddr())
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), MaxLineBytes)
	for scanner.Scan() {
		reply := s.HandleLine(ctx, scanner.Bytes(), source)
		if reply == nil {
			continue
		}
		if _, err := conn.Write(reply); err != nil {
			monitoring.Logf("failed to reply to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		monitoring.Logf("⚠️ connection %s: %v", conn.RemoteAddr(), err)
	}
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// HandleLine processes one stream line and returns the newline-terminated
// reply, or nil when the line gets none.
func (s *Server) HandleLine(ctx context.Context, line []byte, source string) []byte {
	line = bytes.TrimSpace(line)
	switch {
	case len(line) == 0:
		return nil
	case line[0] == '{':
		s.handleReport(ctx, line, source)
		return nil
	case bytes.HasPrefix(line, []byte(capture.ImagePrefix)):
		return encodeReply(s.handleImage(ctx, line[len(capture.ImagePrefix):], source))
	case bytes.HasPrefix(line, []byte(commandPrefix)):
		return encodeReply(s.handleCommand(string(line[len(commandPrefix):]), source))
	default:
		monitoring.Logf("📝 text from %s: %s", source, line)
		return nil
	}
}

func (s *Server) handleReport(ctx context.Context, line []byte, source string) {
	r, err := report.Parse(line)
	if err != nil {
		monitoring.Logf("❌ bad report from %s: %v", source, err)
		return
	}
	label := "🟢 VACANT"
	if r.Occupied {
		label = "🔴 OCCUPIED"
	}
	monitoring.Logf("📊 space %d %s %.1f cm (from %s)", r.SpaceID, label, r.DistanceCM, source)

	err = s.store.UpsertSpace(ctx, db.SpaceReport{
		SpaceID:    r.SpaceID,
		Occupied:   r.Occupied,
		DistanceCM: r.DistanceCM,
		ReportedMS: r.Timestamp,
		ReceivedAt: s.clock.Now(),
		Source:     source,
	})
	if err != nil {
		monitoring.Logf("❌ failed to store report for space %d: %v", r.SpaceID, err)
	}
}

// ImageFilename names a stored still.
func ImageFilename(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("parking_%s_%s.jpg", at.Format("20060102_150405"), id.String()[:8])
}

func (s *Server) handleImage(ctx context.Context, payload []byte, source string) capture.Ack {
	data := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(data, payload)
	if err != nil {
		monitoring.Logf("❌ bad image from %s: %v", source, err)
		return capture.Ack{Status: "error", Message: fmt.Sprintf("invalid base64 image: %v", err)}
	}
	data = data[:n]
	if len(data) == 0 {
		return capture.Ack{Status: "error", Message: "empty image"}
	}

	now := s.clock.Now()
	id := s.NewID()
	filename := ImageFilename(now, id)
	if err := os.WriteFile(filepath.Join(s.imagesDir, filename), data, 0o644); err != nil {
		monitoring.Logf("❌ failed to save image: %v", err)
		return capture.Ack{Status: "error", Message: "failed to save image"}
	}
	err = s.store.RecordCapture(ctx, db.CaptureRecord{
		ID:         id.String(),
		Filename:   filename,
		SizeBytes:  len(data),
		Source:     source,
		ReceivedAt: now,
	})
	if err != nil {
		monitoring.Logf("⚠️ failed to index image %s: %v", filename, err)
	}

	monitoring.Logf("📸 image saved: %s (%d bytes from %s)", filename, len(data), source)
	return capture.Ack{Status: "success", Message: "Image received", Filename: filename}
}

type statusReply struct {
	Status           string  `json:"status"`
	ClientsConnected int     `json:"clients_connected"`
	Uptime           float64 `json:"uptime"`
}

func (s *Server) handleCommand(cmd, source string) any {
	monitoring.Logf("⚡ command from %s: %s", source, cmd)
	switch cmd {
	case "STATUS":
		return statusReply{
			Status:           "running",
			ClientsConnected: s.ClientsConnected(),
			Uptime:           s.clock.Since(s.startedAt).Seconds(),
		}
	case "PING":
		return map[string]string{"status": "pong"}
	default:
		return map[string]string{"status": "unknown_command"}
	}
}

func encodeReply(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"status":"error","message":"internal error"}`)
	}
	return append(b, '\n')
}
