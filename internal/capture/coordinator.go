// Package capture decides when a still image of the space is taken and runs
// capture and upload off the sensor loop.
package capture

import "github.com/banshee-data/parking.report/internal/occupancy"

// Coordinator fires once per occupancy episode. A capture fires on the
// Vacant to Occupied edge and the latch re-arms only after the space is
// vacated again. A first reading is never an edge.
type Coordinator struct {
	latched bool
	fired   int
}

// NewCoordinator returns an armed coordinator.
func NewCoordinator() *Coordinator { return &Coordinator{} }

// OnTransition reports whether a capture should be taken for ev.
func (c *Coordinator) OnTransition(ev occupancy.TransitionEvent) bool {
	switch {
	case ev.Arrival() && !c.latched:
		c.latched = true
		c.fired++
		return true
	case ev.Departure():
		c.latched = false
	}
	return false
}

// Reset re-arms the coordinator.
func (c *Coordinator) Reset() { c.latched = false }

// Latched reports whether a capture has fired in the current episode.
func (c *Coordinator) Latched() bool { return c.latched }

// Fired is the number of captures fired since creation.
func (c *Coordinator) Fired() int { return c.fired }
