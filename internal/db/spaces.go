package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SpaceState is the latest report received for a parking space.
type SpaceState struct {
	SpaceID     int       `json:"space_id"`
	Occupied    bool      `json:"occupied"`
	DistanceCM  float64   `json:"distance_cm"`
	ReportedAt  time.Time `json:"reported_at"`
	ReceivedAt  time.Time `json:"received_at"`
	ChangedAt   time.Time `json:"changed_at"`
	Source      string    `json:"source"`
	ReportCount int       `json:"report_count"`
}

// SpaceReport is one incoming report.
type SpaceReport struct {
	SpaceID    int
	Occupied   bool
	DistanceCM float64
	ReportedMS uint64
	ReceivedAt time.Time
	Source     string
}

// UpsertSpace records a report as the latest state of its space. A report
// older than the stored one is ignored. ChangedAt moves only when the
// occupancy differs from the stored value.
func (db *DB) UpsertSpace(ctx context.Context, r SpaceReport) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO spaces (space_id, occupied, distance_cm, reported_ms, received_ms, changed_ms, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(space_id) DO UPDATE SET
			changed_ms   = CASE WHEN spaces.occupied != excluded.occupied
			                    THEN excluded.reported_ms ELSE spaces.changed_ms END,
			occupied     = excluded.occupied,
			distance_cm  = excluded.distance_cm,
			reported_ms  = excluded.reported_ms,
			received_ms  = excluded.received_ms,
			source       = excluded.source,
			report_count = spaces.report_count + 1
		WHERE excluded.reported_ms >= spaces.reported_ms`,
		r.SpaceID, r.Occupied, r.DistanceCM, int64(r.ReportedMS), r.ReceivedAt.UnixMilli(), int64(r.ReportedMS), r.Source,
	)
	return err
}

const spaceColumns = `space_id, occupied, distance_cm, reported_ms, received_ms, changed_ms, source, report_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpace(row rowScanner) (SpaceState, error) {
	var s SpaceState
	var reported, received, changed int64
	if err := row.Scan(&s.SpaceID, &s.Occupied, &s.DistanceCM, &reported, &received, &changed, &s.Source, &s.ReportCount); err != nil {
		return SpaceState{}, err
	}
	s.ReportedAt = time.UnixMilli(reported).UTC()
	s.ReceivedAt = time.UnixMilli(received).UTC()
	s.ChangedAt = time.UnixMilli(changed).UTC()
	return s, nil
}

// Space returns the latest state of one space.
func (db *DB) Space(ctx context.Context, id int) (SpaceState, error) {
	row := db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE space_id = ?`, id)
	s, err := scanSpace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SpaceState{}, ErrNotFound
	}
	return s, err
}

// Spaces returns every known space ordered by id.
func (db *DB) Spaces(ctx context.Context) ([]SpaceState, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+spaceColumns+` FROM spaces ORDER BY space_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spaces := []SpaceState{}
	for rows.Next() {
		s, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, s)
	}
	return spaces, rows.Err()
}
