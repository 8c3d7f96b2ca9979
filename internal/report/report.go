// Package report serialises occupancy reports and delivers them to the
// aggregator over a reconnecting stream session.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/parking.report/internal/occupancy"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// Report is one occupancy report. It is built on demand from the tracker
// state and never retained.
type Report struct {
	SpaceID    int
	Occupied   bool
	DistanceCM float64
	Timestamp  uint64 // Unix milliseconds
}

// New builds a report for the given space from the tracker state.
func New(spaceID int, state occupancy.State, now time.Time) Report {
	return Report{
		SpaceID:    spaceID,
		Occupied:   state.Occupied(),
		DistanceCM: state.LastDistanceCM,
		Timestamp:  timeutil.UnixMillis(now),
	}
}

// MarshalJSON renders the four wire fields in their fixed order with the
// distance at one fractional digit:
//
//	{"parkingId":1,"occupied":true,"distance":30.0,"timestamp":123456}
func (r Report) MarshalJSON() ([]byte, error) {
	if math.IsNaN(r.DistanceCM) || math.IsInf(r.DistanceCM, 0) {
		return nil, fmt.Errorf("distance %v is not representable", r.DistanceCM)
	}
	return r.appendJSON(make([]byte, 0, 80)), nil
}

func (r Report) appendJSON(b []byte) []byte {
	b = append(b, `{"parkingId":`...)
	b = strconv.AppendInt(b, int64(r.SpaceID), 10)
	b = append(b, `,"occupied":`...)
	b = strconv.AppendBool(b, r.Occupied)
	b = append(b, `,"distance":`...)
	b = strconv.AppendFloat(b, r.DistanceCM, 'f', 1, 64)
	b = append(b, `,"timestamp":`...)
	b = strconv.AppendUint(b, r.Timestamp, 10)
	return append(b, '}')
}

// Line returns the newline-terminated wire form of the report.
func (r Report) Line() ([]byte, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

type wireReport struct {
	ParkingID *int     `json:"parkingId"`
	Occupied  *bool    `json:"occupied"`
	Distance  *float64 `json:"distance"`
	Timestamp *uint64  `json:"timestamp"`
}

// UnmarshalJSON decodes a wire report. All four fields are required.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w wireReport
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ParkingID == nil:
		return fmt.Errorf("report missing parkingId")
	case w.Occupied == nil:
		return fmt.Errorf("report missing occupied")
	case w.Distance == nil:
		return fmt.Errorf("report missing distance")
	case w.Timestamp == nil:
		return fmt.Errorf("report missing timestamp")
	}
	*r = Report{
		SpaceID:    *w.ParkingID,
		Occupied:   *w.Occupied,
		DistanceCM: *w.Distance,
		Timestamp:  *w.Timestamp,
	}
	return nil
}

// Parse decodes one wire line (with or without the trailing newline).
func Parse(line []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(line, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}
