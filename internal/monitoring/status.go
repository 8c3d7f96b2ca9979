package monitoring

import (
	"fmt"
	"strings"
	"time"
)

// DistanceStats summarises the recent accepted distance samples.
type DistanceStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_cm"`
	StdDev float64 `json:"stddev_cm"`
	Min    float64 `json:"min_cm"`
	Max    float64 `json:"max_cm"`
}

// Status is a point-in-time snapshot of the sensor. It is plain data: the
// components fill it in and FormatStatus (or a JSON encoder) renders it.
type Status struct {
	Variant string    `json:"variant"`
	TakenAt time.Time `json:"taken_at"`
	Uptime  string    `json:"uptime"`

	SpaceID     int     `json:"space_id"`
	ThresholdCM float64 `json:"threshold_cm"`

	HasReading     bool          `json:"has_reading"`
	Occupied       bool          `json:"occupied"`
	Since          time.Time     `json:"since"`
	LastDistanceCM float64       `json:"last_distance_cm"`
	Distances      DistanceStats `json:"distances"`

	Transport   string    `json:"transport"`
	Connected   bool      `json:"connected"`
	LastAttempt time.Time `json:"last_attempt"`

	SamplesTaken   int `json:"samples_taken"`
	SensorErrors   int `json:"sensor_errors"`
	ReportsSent    int `json:"reports_sent"`
	ReportsDropped int `json:"reports_dropped"`

	CaptureLatched bool   `json:"capture_latched"`
	CapturesFired  int    `json:"captures_fired"`
	CameraStatus   string `json:"camera_status,omitempty"`
}

func occupancyLabel(occupied bool) string {
	if occupied {
		return "OCCUPIED"
	}
	return "VACANT"
}

func connectionLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

// FormatStatus renders a Status as the multi-line block printed on the
// status interval.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("=== PARKING SENSOR STATUS ===\n")
	fmt.Fprintf(&b, "Variant: %s (up %s)\n", s.Variant, s.Uptime)
	fmt.Fprintf(&b, "Space: %d (threshold %.1f cm)\n", s.SpaceID, s.ThresholdCM)
	if s.HasReading {
		fmt.Fprintf(&b, "State: %s since %s\n", occupancyLabel(s.Occupied), s.Since.Format(time.RFC3339))
		fmt.Fprintf(&b, "Distance: %.1f cm", s.LastDistanceCM)
		if s.Distances.Count > 1 {
			fmt.Fprintf(&b, " (mean %.1f ± %.1f over %d, range %.1f-%.1f)",
				s.Distances.Mean, s.Distances.StdDev, s.Distances.Count, s.Distances.Min, s.Distances.Max)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("State: no valid reading yet\n")
	}
	fmt.Fprintf(&b, "Link: %s %s\n", s.Transport, connectionLabel(s.Connected))
	fmt.Fprintf(&b, "Samples: %d taken, %d sensor errors\n", s.SamplesTaken, s.SensorErrors)
	fmt.Fprintf(&b, "Reports: %d sent, %d dropped\n", s.ReportsSent, s.ReportsDropped)
	fmt.Fprintf(&b, "Captures: %d fired, latched=%t", s.CapturesFired, s.CaptureLatched)
	if s.CameraStatus != "" {
		fmt.Fprintf(&b, "\nCamera: %s", s.CameraStatus)
	}
	return b.String()
}

// CameraStatus is the camera monitor snapshot.
type CameraStatus struct {
	TakenAt     time.Time `json:"taken_at"`
	Uptime      string    `json:"uptime"`
	Camera      string    `json:"camera"`
	Tests       int       `json:"tests"`
	Failures    int       `json:"failures"`
	LastBytes   int       `json:"last_bytes"`
	HeapAllocKB uint64    `json:"heap_alloc_kb"`
	Goroutines  int       `json:"goroutines"`
}

// FormatCameraStatus renders a CameraStatus as the lines printed on the
// camera monitor's status interval.
func FormatCameraStatus(s CameraStatus) []string {
	return []string{
		"--- CAMERA MONITOR STATUS ---",
		"Uptime: " + s.Uptime,
		"Camera: " + s.Camera,
		fmt.Sprintf("Tests: %d (%d failed, last %d bytes)", s.Tests, s.Failures, s.LastBytes),
		fmt.Sprintf("Heap: %d KB, goroutines: %d", s.HeapAllocKB, s.Goroutines),
	}
}
