package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CaptureRecord indexes one stored image.
type CaptureRecord struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	SizeBytes  int       `json:"size_bytes"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

func (db *DB) RecordCapture(ctx context.Context, c CaptureRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO captures (capture_id, filename, size_bytes, source, received_ms) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Filename, c.SizeBytes, c.Source, c.ReceivedAt.UnixMilli(),
	)
	return err
}

// RecentCaptures returns up to limit captures, newest first.
func (db *DB) RecentCaptures(ctx context.Context, limit int) ([]CaptureRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT capture_id, filename, size_bytes, source, received_ms
		   FROM captures ORDER BY received_ms DESC, capture_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CaptureRecord{}
	for rows.Next() {
		var c CaptureRecord
		var received int64
		if err := rows.Scan(&c.ID, &c.Filename, &c.SizeBytes, &c.Source, &received); err != nil {
			return nil, err
		}
		c.ReceivedAt = time.UnixMilli(received).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Capture returns one capture by id.
func (db *DB) Capture(ctx context.Context, id string) (CaptureRecord, error) {
	var c CaptureRecord
	var received int64
	err := db.QueryRowContext(ctx,
		`SELECT capture_id, filename, size_bytes, source, received_ms FROM captures WHERE capture_id = ?`, id,
	).Scan(&c.ID, &c.Filename, &c.SizeBytes, &c.Source, &received)
	if errors.Is(err, sql.ErrNoRows) {
		return CaptureRecord{}, ErrNotFound
	}
	if err != nil {
		return CaptureRecord{}, err
	}
	c.ReceivedAt = time.UnixMilli(received).UTC()
	return c, nil
}
