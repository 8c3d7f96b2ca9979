// Package ranging drives an HC-SR04 style ultrasonic transducer and converts
// the echo round trip into a validated distance sample.
//
// The sampler owns two hardware lines: a trigger output and an echo input.
// Both are expressed as narrow interfaces that periph.io GPIO pins satisfy
// directly, so the same code runs against real pins, SimulatedLines, or test
// fakes.
package ranging

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// SpeedOfSoundCMPerMicrosecond is the speed of sound used for conversion
// (343 m/s).
const SpeedOfSoundCMPerMicrosecond = 0.0343

// triggerSettle is how long the trigger is held low before the pulse.
const triggerSettle = 2 * time.Microsecond

var (
	// ErrNoResponse means no echo was observed on the first attempt nor on
	// the single retry.
	ErrNoResponse = errors.New("ultrasonic sensor not responding")
	// ErrOutOfRange means an echo was measured but the distance is outside
	// the admissible window.
	ErrOutOfRange = errors.New("distance out of range")

	errNoEcho = errors.New("echo timeout")
)

// SensorError describes a failed measurement. Kind is ErrNoResponse or
// ErrOutOfRange and is matched by errors.Is.
type SensorError struct {
	Kind       error
	DistanceCM float64 // measured distance for ErrOutOfRange
	Cause      error   // underlying line failure, if any
}

func (e *SensorError) Error() string {
	switch {
	case e.Kind == ErrOutOfRange:
		return fmt.Sprintf("%v: %.1f cm", e.Kind, e.DistanceCM)
	case e.Cause != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	default:
		return e.Kind.Error()
	}
}

// Is reports whether target is the kind of this error.
func (e *SensorError) Is(target error) bool { return target == e.Kind }

// Unwrap returns the underlying line failure.
func (e *SensorError) Unwrap() error { return e.Cause }

// TriggerLine is the output line that starts a measurement.
type TriggerLine interface {
	Out(l gpio.Level) error
}

// EchoLine is the input line whose high interval encodes the round trip.
// WaitForEdge blocks until the level changes or timeout elapses and reports
// whether an edge occurred.
type EchoLine interface {
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// DistanceSample is a single validated measurement.
type DistanceSample struct {
	DistanceCM float64
	CapturedAt time.Time
	Valid      bool
}

// Config holds the timing and validity parameters of the sampler.
type Config struct {
	PulseWidth    time.Duration
	EchoTimeout   time.Duration
	RetryDelay    time.Duration
	MinDistanceCM float64
	MaxDistanceCM float64
}

// DefaultConfig returns the HC-SR04 defaults: 10µs pulse, 50ms echo timeout,
// 100ms retry delay and a 2-400cm window.
func DefaultConfig() Config {
	return Config{
		PulseWidth:    10 * time.Microsecond,
		EchoTimeout:   50 * time.Millisecond,
		RetryDelay:    100 * time.Millisecond,
		MinDistanceCM: 2.0,
		MaxDistanceCM: 400.0,
	}
}

// Valid reports whether d lies inside the admissible window (inclusive).
// Negative sentinels and NaN are never valid.
func (c Config) Valid(d float64) bool {
	return d >= c.MinDistanceCM && d <= c.MaxDistanceCM
}

// IsValidDistance reports whether d is inside the default 2-400cm window.
func IsValidDistance(d float64) bool {
	return DefaultConfig().Valid(d)
}

// DistanceFromEcho converts an echo high time into a one-way distance in cm.
func DistanceFromEcho(elapsed time.Duration) float64 {
	micros := float64(elapsed) / float64(time.Microsecond)
	return micros * SpeedOfSoundCMPerMicrosecond / 2.0
}

// Sampler drives the transducer. It is not safe for concurrent use; the
// supervisor loop is its only caller.
type Sampler struct {
	trig  TriggerLine
	echo  EchoLine
	clock timeutil.Clock
	cfg   Config
}

// NewSampler creates a sampler owning the given lines.
func NewSampler(trig TriggerLine, echo EchoLine, clock timeutil.Clock, cfg Config) *Sampler {
	return &Sampler{
		trig:  trig,
		echo:  echo,
		clock: clock,
		cfg:   cfg,
	}
}

// Config returns the sampler parameters.
func (s *Sampler) Config() Config { return s.cfg }

// Init drives the trigger line to its idle low level.
func (s *Sampler) Init() error {
	if err := s.trig.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to idle trigger line: %w", err)
	}
	return nil
}

// Sample performs one measurement with at most one retry. The call is
// synchronous and bounded by roughly 2*EchoTimeout + RetryDelay.
func (s *Sampler) Sample() (DistanceSample, error) {
	elapsed, err := s.measure()
	if errors.Is(err, errNoEcho) {
		monitoring.Logf("⚠️ ultrasonic echo timeout, retrying in %v", s.cfg.RetryDelay)
		s.clock.Sleep(s.cfg.RetryDelay)
		elapsed, err = s.measure()
	}
	if err != nil {
		cause := err
		if errors.Is(err, errNoEcho) {
			cause = nil
		}
		return DistanceSample{}, &SensorError{Kind: ErrNoResponse, Cause: cause}
	}

	distance := DistanceFromEcho(elapsed)
	if !s.cfg.Valid(distance) {
		return DistanceSample{}, &SensorError{Kind: ErrOutOfRange, DistanceCM: distance}
	}

	return DistanceSample{
		DistanceCM: distance,
		CapturedAt: s.clock.Now(),
		Valid:      true,
	}, nil
}

// measure issues one trigger pulse and times the echo high interval. The
// whole wait, rising and falling edge together, is bounded by EchoTimeout.
func (s *Sampler) measure() (time.Duration, error) {
	if err := s.pulse(); err != nil {
		return 0, err
	}

	deadline := s.clock.Now().Add(s.cfg.EchoTimeout)
	start, ok := s.waitLevel(gpio.High, deadline)
	if !ok {
		return 0, errNoEcho
	}
	end, ok := s.waitLevel(gpio.Low, deadline)
	if !ok {
		return 0, errNoEcho
	}
	return end.Sub(start), nil
}

func (s *Sampler) pulse() error {
	if err := s.trig.Out(gpio.Low); err != nil {
		return err
	}
	s.clock.Sleep(triggerSettle)
	if err := s.trig.Out(gpio.High); err != nil {
		return err
	}
	s.clock.Sleep(s.cfg.PulseWidth)
	return s.trig.Out(gpio.Low)
}

func (s *Sampler) waitLevel(level gpio.Level, deadline time.Time) (time.Time, bool) {
	for {
		if s.echo.Read() == level {
			return s.clock.Now(), true
		}
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return time.Time{}, false
		}
		if !s.echo.WaitForEdge(remaining) {
			return time.Time{}, false
		}
	}
}
