// Package occupancy folds validated distance samples into the binary
// occupancy state of one parking space and reports transitions.
//
// The tracker applies a strict threshold comparison with no confirmation
// window: a single crossing sample flips the state. Repeated samples with
// the same occupancy are suppressed, which is the only debouncing done.
package occupancy

import (
	"fmt"
	"time"

	"github.com/banshee-data/parking.report/internal/ranging"
)

// Occupancy is the binary state of the space.
type Occupancy int

const (
	Vacant Occupancy = iota
	Occupied
)

func (o Occupancy) String() string {
	if o == Occupied {
		return "Occupied"
	}
	return "Vacant"
}

// FromBool maps occupied to Occupied.
func FromBool(occupied bool) Occupancy {
	if occupied {
		return Occupied
	}
	return Vacant
}

// SpaceConfig identifies the monitored space and its occupancy threshold.
type SpaceConfig struct {
	SpaceID     int
	ThresholdCM float64
}

// State is the tracker's current view of the space.
type State struct {
	Occupancy      Occupancy
	Since          time.Time // last Vacant<->Occupied transition (or first reading)
	LastDistanceCM float64
}

// Occupied reports whether the space is occupied.
func (s State) Occupied() bool { return s.Occupancy == Occupied }

// EventKind classifies the outcome of ingesting a sample.
type EventKind int

const (
	None EventKind = iota
	FirstReading
	Changed
)

// TransitionEvent is returned by Ingest. For FirstReading only To is
// meaningful; for Changed both From and To are set.
type TransitionEvent struct {
	Kind EventKind
	From Occupancy
	To   Occupancy
}

func (e TransitionEvent) String() string {
	switch e.Kind {
	case FirstReading:
		return fmt.Sprintf("FirstReading(%s)", e.To)
	case Changed:
		return fmt.Sprintf("Changed(%s,%s)", e.From, e.To)
	default:
		return "None"
	}
}

// IsNone reports whether the event carries nothing to act on.
func (e TransitionEvent) IsNone() bool { return e.Kind == None }

// Arrival reports whether the event is a live Vacant to Occupied edge.
func (e TransitionEvent) Arrival() bool {
	return e.Kind == Changed && e.From == Vacant && e.To == Occupied
}

// Departure reports whether the event is an Occupied to Vacant edge.
func (e TransitionEvent) Departure() bool {
	return e.Kind == Changed && e.From == Occupied && e.To == Vacant
}

// Tracker owns the occupancy state of one space. It is not safe for
// concurrent use.
type Tracker struct {
	cfg        SpaceConfig
	state      State
	hasReading bool
	history    *History
}

// NewTracker creates a tracker with an empty state. The first accepted
// sample yields FirstReading.
func NewTracker(cfg SpaceConfig) *Tracker {
	return &Tracker{
		cfg:     cfg,
		history: NewHistory(DefaultHistorySize),
	}
}

// Ingest folds one sample into the state.
func (t *Tracker) Ingest(sample ranging.DistanceSample) TransitionEvent {
	if !sample.Valid {
		return TransitionEvent{Kind: None}
	}

	next := FromBool(sample.DistanceCM < t.cfg.ThresholdCM)
	t.state.LastDistanceCM = sample.DistanceCM
	t.history.Add(sample.CapturedAt, sample.DistanceCM)

	if !t.hasReading {
		// After a reset the occupancy may carry over; Since only moves on a
		// real change.
		if t.state.Since.IsZero() || t.state.Occupancy != next {
			t.state.Since = sample.CapturedAt
		}
		t.hasReading = true
		t.state.Occupancy = next
		return TransitionEvent{Kind: FirstReading, To: next}
	}

	prev := t.state.Occupancy
	if prev == next {
		return TransitionEvent{Kind: None}
	}

	t.state.Occupancy = next
	t.state.Since = sample.CapturedAt
	return TransitionEvent{Kind: Changed, From: prev, To: next}
}

// State returns the current state and whether any sample has been accepted
// since construction or the last reset.
func (t *Tracker) State() (State, bool) {
	return t.state, t.hasReading
}

// Config returns the space configuration.
func (t *Tracker) Config() SpaceConfig { return t.cfg }

// History returns the recent accepted distances.
func (t *Tracker) History() *History { return t.history }

// Reset makes the next accepted sample a FirstReading again.
func (t *Tracker) Reset() {
	t.hasReading = false
}

// SetConfig replaces the space configuration and resets the first-reading
// bookkeeping so the new identity or threshold is reported immediately.
func (t *Tracker) SetConfig(cfg SpaceConfig) {
	t.cfg = cfg
	t.Reset()
}
