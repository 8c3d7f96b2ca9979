package occupancy

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

// DefaultHistorySize is the number of accepted samples kept in memory.
const DefaultHistorySize = 120

// Point is one accepted distance.
type Point struct {
	At         time.Time
	DistanceCM float64
}

// History is a fixed-size ring of the most recent accepted distances. It is
// diagnostic only and never persisted.
type History struct {
	points []Point
	start  int
	count  int
}

// NewHistory creates a ring holding up to size points.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{points: make([]Point, size)}
}

// Add appends a point, evicting the oldest when full.
func (h *History) Add(at time.Time, distanceCM float64) {
	idx := (h.start + h.count) % len(h.points)
	h.points[idx] = Point{At: at, DistanceCM: distanceCM}
	if h.count < len(h.points) {
		h.count++
		return
	}
	h.start = (h.start + 1) % len(h.points)
}

// Len returns the number of stored points.
func (h *History) Len() int { return h.count }

// Points returns the stored points, oldest first.
func (h *History) Points() []Point {
	out := make([]Point, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.points[(h.start+i)%len(h.points)]
	}
	return out
}

// Distances returns the stored distances, oldest first.
func (h *History) Distances() []float64 {
	out := make([]float64, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.points[(h.start+i)%len(h.points)].DistanceCM
	}
	return out
}

// Stats summarises the stored distances. The standard deviation is the
// unbiased sample estimate and is zero with fewer than two points.
func (h *History) Stats() monitoring.DistanceStats {
	xs := h.Distances()
	if len(xs) == 0 {
		return monitoring.DistanceStats{}
	}
	s := monitoring.DistanceStats{
		Count: len(xs),
		Min:   floats.Min(xs),
		Max:   floats.Max(xs),
	}
	if len(xs) == 1 {
		s.Mean = xs[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	return s
}
