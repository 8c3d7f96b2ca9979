package supervisor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// DefaultCameraTestInterval is how often the camera monitor takes a test
// still.
const DefaultCameraTestInterval = time.Minute

// MonitorConfig holds the camera monitor timing.
type MonitorConfig struct {
	LoopPeriod     time.Duration
	StatusInterval time.Duration
	TestInterval   time.Duration
	CaptureTimeout time.Duration
}

// CameraMonitor is the camera-only variant. It test-captures at start and
// every TestInterval, and logs its health every StatusInterval.
type CameraMonitor struct {
	clock    timeutil.Clock
	cfg      MonitorConfig
	capturer capture.Capturer

	startedAt  time.Time
	nextTest   time.Time
	nextStatus time.Time

	mu     sync.Mutex
	status monitoring.CameraStatus
}

// NewCameraMonitor creates a monitor that tests immediately on the first
// tick.
func NewCameraMonitor(clock timeutil.Clock, cfg MonitorConfig, c capture.Capturer) *CameraMonitor {
	if cfg.TestInterval <= 0 {
		cfg.TestInterval = DefaultCameraTestInterval
	}
	now := clock.Now()
	return &CameraMonitor{
		clock:      clock,
		cfg:        cfg,
		capturer:   c,
		startedAt:  now,
		nextTest:   now,
		nextStatus: now.Add(cfg.StatusInterval),
		status:     monitoring.CameraStatus{Camera: "untested"},
	}
}

// Run drives Tick until ctx is cancelled.
func (m *CameraMonitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.cfg.LoopPeriod)
	defer ticker.Stop()

	m.Tick(ctx, m.clock.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			m.Tick(ctx, now)
		}
	}
}

// Tick runs one monitor iteration.
func (m *CameraMonitor) Tick(ctx context.Context, now time.Time) {
	if !now.Before(m.nextTest) {
		m.TestCamera(ctx)
		m.nextTest = now.Add(m.cfg.TestInterval)
	}
	if !now.Before(m.nextStatus) {
		m.nextStatus = now.Add(m.cfg.StatusInterval)
		for _, line := range monitoring.FormatCameraStatus(m.Status()) {
			monitoring.Logf("%s", line)
		}
	}
}

// TestCamera takes one still and records the outcome.
func (m *CameraMonitor) TestCamera(ctx context.Context) error {
	if m.cfg.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.CaptureTimeout)
		defer cancel()
	}
	img, err := m.capturer.Capture(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Tests++
	if err != nil {
		m.status.Failures++
		m.status.Camera = "error: " + err.Error()
		monitoring.Logf("❌ camera test failed: %v", err)
		return err
	}
	m.status.Camera = "ok"
	m.status.LastBytes = len(img.Data)
	monitoring.Logf("📷 camera test ok (%d bytes)", len(img.Data))
	return nil
}

// Status returns the current snapshot.
func (m *CameraMonitor) Status() monitoring.CameraStatus {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.TakenAt = now
	st.Uptime = now.Sub(m.startedAt).Truncate(time.Second).String()
	st.HeapAllocKB = ms.HeapAlloc / 1024
	st.Goroutines = runtime.NumGoroutine()
	return st
}
