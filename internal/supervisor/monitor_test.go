package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

type scriptedCapturer struct {
	errs  []error
	calls int
}

func (s *scriptedCapturer) Capture(ctx context.Context) (capture.Image, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return capture.Image{}, s.errs[i]
	}
	return capture.Image{Data: make([]byte, 2048)}, nil
}

func TestCameraMonitor_Schedule(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	clock := timeutil.NewMockClock(t0)
	cam := &scriptedCapturer{errs: []error{nil, errors.New("sensor not detected")}}
	m := NewCameraMonitor(clock, MonitorConfig{
		LoopPeriod:     100 * time.Millisecond,
		StatusInterval: 5 * time.Second,
		TestInterval:   30 * time.Second,
	}, cam)

	for i := 0; i < 310; i++ {
		m.Tick(context.Background(), clock.Now())
		clock.Advance(100 * time.Millisecond)
	}

	assert.Equal(t, 2, cam.calls, "tests at 0s and 30s")
	st := m.Status()
	assert.Equal(t, 2, st.Tests)
	assert.Equal(t, 1, st.Failures)
	assert.Equal(t, "error: sensor not detected", st.Camera)
	assert.Equal(t, 2048, st.LastBytes)
	assert.Equal(t, "31s", st.Uptime)

	statusBlocks := 0
	for _, l := range lines.Lines() {
		if l == "--- CAMERA MONITOR STATUS ---" {
			statusBlocks++
		}
	}
	assert.Equal(t, 6, statusBlocks, "status every 5s over 31s")
}

func TestCameraMonitor_TestCamera(t *testing.T) {
	_, restore := monitoring.Capture()
	defer restore()

	m := NewCameraMonitor(timeutil.NewMockClock(t0), MonitorConfig{StatusInterval: time.Second}, &scriptedCapturer{})
	assert.Equal(t, "untested", m.Status().Camera)
	require.NoError(t, m.TestCamera(context.Background()))
	assert.Equal(t, "ok", m.Status().Camera)

	lines := monitoring.FormatCameraStatus(m.Status())
	assert.Equal(t, "Camera: ok", lines[2])
	assert.Equal(t, "Tests: 1 (0 failed, last 2048 bytes)", lines[3])
}
