// Package supervisor runs the sensor's cooperative loop. Each tick it
// samples when due, folds the sample into the occupancy state, reports
// transitions, dispatches captures and keeps the report session alive.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/capture"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/occupancy"
	"github.com/banshee-data/parking.report/internal/ranging"
	"github.com/banshee-data/parking.report/internal/report"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// Sampler takes one distance measurement.
type Sampler interface {
	Sample() (ranging.DistanceSample, error)
}

// CaptureRequester queues a capture without blocking.
type CaptureRequester interface {
	Request(spaceID int) error
	Stats() capture.Stats
}

// Config holds the loop timing.
type Config struct {
	Variant        string
	SamplingPeriod time.Duration
	LoopPeriod     time.Duration
	StatusInterval time.Duration
}

// DefaultConfig samples every second on a 100ms loop and logs status every
// 5s.
func DefaultConfig() Config {
	return Config{
		Variant:        "sensor",
		SamplingPeriod: time.Second,
		LoopPeriod:     100 * time.Millisecond,
		StatusInterval: 5 * time.Second,
	}
}

// Supervisor owns the sensor components for the lifetime of the process.
// Tick, ForceMeasurement and SetSpaceConfig must be called from the loop
// goroutine; Status and RequestMeasurement are safe from anywhere.
type Supervisor struct {
	clock       timeutil.Clock
	cfg         Config
	sampler     Sampler
	tracker     *occupancy.Tracker
	session     *report.Session
	coordinator *capture.Coordinator
	captures    CaptureRequester

	// OnStatus receives the periodic status snapshot. Defaults to logging
	// monitoring.FormatStatus.
	OnStatus func(monitoring.Status)

	startedAt  time.Time
	nextSample time.Time
	nextStatus time.Time

	samples      int
	sensorErrors int

	force chan struct{}

	mu     sync.Mutex
	status monitoring.Status
	points []occupancy.Point
}

// New wires the components together. captures may be nil when no camera is
// attached.
func New(clock timeutil.Clock, cfg Config, sampler Sampler, tracker *occupancy.Tracker,
	session *report.Session, coordinator *capture.Coordinator, captures CaptureRequester) *Supervisor {
	now := clock.Now()
	s := &Supervisor{
		clock:       clock,
		cfg:         cfg,
		sampler:     sampler,
		tracker:     tracker,
		session:     session,
		coordinator: coordinator,
		captures:    captures,
		startedAt:   now,
		nextSample:  now,
		nextStatus:  now.Add(cfg.StatusInterval),
		force:       make(chan struct{}, 1),
	}
	s.OnStatus = func(st monitoring.Status) { monitoring.Logf("%s", monitoring.FormatStatus(st)) }
	s.publish(now)
	return s
}

// Run drives Tick from a clock ticker until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.LoopPeriod)
	defer ticker.Stop()

	s.Tick(ctx, s.clock.Now())
	for {
		select {
		case <-ctx.Done():
			if err := s.session.Close(); err != nil {
				monitoring.Logf("failed to close report session: %v", err)
			}
			return nil
		case <-s.force:
			s.ForceMeasurement(ctx, s.clock.Now())
		case now := <-ticker.C():
			s.Tick(ctx, now)
		}
	}
}

// Tick runs one loop iteration. Nothing in a tick is fatal.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) {
	if !now.Before(s.nextSample) {
		s.measure(now)
		s.nextSample = now.Add(s.cfg.SamplingPeriod)
	}

	if err := s.session.Maintain(ctx, now); err != nil {
		monitoring.Logf("❌ %v", err)
	}

	s.publish(now)
	if !now.Before(s.nextStatus) {
		s.nextStatus = now.Add(s.cfg.StatusInterval)
		if s.OnStatus != nil {
			s.OnStatus(s.Status())
		}
	}
}

// ForceMeasurement samples immediately, outside the schedule. The next
// scheduled sample is not moved.
func (s *Supervisor) ForceMeasurement(ctx context.Context, now time.Time) {
	monitoring.Logf("forced measurement requested")
	s.measure(now)
	s.publish(now)
}

// RequestMeasurement asks the Run loop for a forced measurement. It never
// blocks; a request already pending absorbs this one.
func (s *Supervisor) RequestMeasurement() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// SetSpaceConfig changes the monitored space. The tracker starts over from
// a first reading and the capture latch is re-armed.
func (s *Supervisor) SetSpaceConfig(cfg occupancy.SpaceConfig) {
	s.tracker.SetConfig(cfg)
	s.coordinator.Reset()
	s.publish(s.clock.Now())
	monitoring.Logf("space configuration set: id=%d threshold=%.1f cm", cfg.SpaceID, cfg.ThresholdCM)
}

func (s *Supervisor) measure(now time.Time) {
	s.samples++
	sample, err := s.sampler.Sample()
	if err != nil {
		s.sensorErrors++
		monitoring.Logf("⚠️ sensor error: %v", err)
		return
	}

	ev := s.tracker.Ingest(sample)
	if ev.IsNone() {
		return
	}

	state, _ := s.tracker.State()
	spaceID := s.tracker.Config().SpaceID
	monitoring.Logf("🚗 space %d %s at %.1f cm", spaceID, ev, state.LastDistanceCM)

	if err := s.session.Send(report.New(spaceID, state, sample.CapturedAt)); err != nil {
		if errors.Is(err, report.ErrNotConnected) {
			monitoring.Logf("report dropped: %v", err)
		} else {
			monitoring.Logf("⚠️ report send failed: %v", err)
		}
	}

	if s.coordinator.OnTransition(ev) && s.captures != nil {
		if err := s.captures.Request(spaceID); err != nil {
			monitoring.Logf("⚠️ capture not queued: %v", err)
		}
	}
}

// Status returns the latest snapshot.
func (s *Supervisor) Status() monitoring.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Points returns a copy of the recent accepted samples.
func (s *Supervisor) Points() []occupancy.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]occupancy.Point(nil), s.points...)
}

func (s *Supervisor) publish(now time.Time) {
	cfg := s.tracker.Config()
	st := monitoring.Status{
		Variant:      s.cfg.Variant,
		TakenAt:      now,
		Uptime:       now.Sub(s.startedAt).Truncate(time.Second).String(),
		SpaceID:      cfg.SpaceID,
		ThresholdCM:  cfg.ThresholdCM,
		Transport:    s.session.Transport().String(),
		SamplesTaken: s.samples,
		SensorErrors: s.sensorErrors,
	}
	if state, ok := s.tracker.State(); ok {
		st.HasReading = true
		st.Occupied = state.Occupied()
		st.Since = state.Since
		st.LastDistanceCM = state.LastDistanceCM
	}
	hist := s.tracker.History()
	st.Distances = hist.Stats()

	conn := s.session.State()
	st.Connected = conn.Connected
	st.LastAttempt = conn.LastAttempt
	st.ReportsSent, st.ReportsDropped = s.session.Counts()

	st.CaptureLatched = s.coordinator.Latched()
	st.CapturesFired = s.coordinator.Fired()
	if s.captures != nil {
		st.CameraStatus = s.captures.Stats().Status()
	}

	points := hist.Points()
	s.mu.Lock()
	s.status = st
	s.points = points
	s.mu.Unlock()
}
