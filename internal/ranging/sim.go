package ranging

import (
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/banshee-data/parking.report/internal/timeutil"
)

// NoEcho in a SimulatedLines script produces a trigger with no echo pulse.
const NoEcho = -1.0

// echoLatency is the delay between the end of the trigger pulse and the
// rising echo edge; the HC-SR04 emits its 40kHz burst in this window.
const echoLatency = 450 * time.Microsecond

// SimulatedLines is a trigger/echo pair that answers each trigger pulse with
// an echo whose width encodes the next distance in a script. Time passes
// through the supplied clock, so with a real clock it behaves like a slow
// sensor and with a MockClock it is instantaneous and deterministic.
type SimulatedLines struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	script   []float64
	next     int
	loop     bool
	trigHigh bool
	level    gpio.Level
	edges    []time.Duration // delays until the pending echo edges
	pulses   int
}

// NewSimulatedLines creates lines that replay script. When loop is false the
// final entry repeats forever.
func NewSimulatedLines(clock timeutil.Clock, script []float64, loop bool) *SimulatedLines {
	return &SimulatedLines{
		clock:  clock,
		script: append([]float64(nil), script...),
		loop:   loop,
	}
}

// Out implements TriggerLine. The echo is scheduled on the falling edge of
// the trigger pulse.
func (s *SimulatedLines) Out(l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l == gpio.High {
		s.trigHigh = true
		return nil
	}
	if s.trigHigh {
		s.trigHigh = false
		s.fire()
	}
	return nil
}

// Read implements EchoLine.
func (s *SimulatedLines) Read() gpio.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// WaitForEdge implements EchoLine.
func (s *SimulatedLines) WaitForEdge(timeout time.Duration) bool {
	s.mu.Lock()
	if len(s.edges) == 0 {
		s.mu.Unlock()
		s.clock.Sleep(timeout)
		return false
	}
	d := s.edges[0]
	if d > timeout {
		s.edges[0] -= timeout
		s.mu.Unlock()
		s.clock.Sleep(timeout)
		return false
	}
	s.edges = s.edges[1:]
	s.mu.Unlock()

	s.clock.Sleep(d)

	s.mu.Lock()
	s.level = !s.level
	s.mu.Unlock()
	return true
}

// Pulses returns how many trigger pulses have been observed.
func (s *SimulatedLines) Pulses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses
}

func (s *SimulatedLines) fire() {
	s.pulses++
	s.level = gpio.Low
	s.edges = nil

	if len(s.script) == 0 {
		return
	}
	idx := s.next
	if idx >= len(s.script) {
		if s.loop {
			idx = 0
		} else {
			idx = len(s.script) - 1
		}
	}
	s.next = idx + 1

	d := s.script[idx]
	if d <= 0 || math.IsNaN(d) {
		return
	}
	roundTrip := time.Duration(d * 2.0 / SpeedOfSoundCMPerMicrosecond * float64(time.Microsecond))
	s.edges = []time.Duration{echoLatency, roundTrip}
}
