package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Recent returns the most recent trace rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, routine, direction, leg, segments, bytes, envelope, created_at
		FROM call_legs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent legs: %w", err)
	}
	defer rows.Close()

	return scanLegs(rows)
}

// LegsByCall returns both legs of one call, request first.
func (s *Store) LegsByCall(ctx context.Context, callID string) ([]Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, routine, direction, leg, segments, bytes, envelope, created_at
		FROM call_legs
		WHERE call_id = ?
		ORDER BY id ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("query legs by call: %w", err)
	}
	defer rows.Close()

	return scanLegs(rows)
}

// LegsByRoutine returns every recorded leg of a routine in insertion
// order.
func (s *Store) LegsByRoutine(ctx context.Context, routine string) ([]Leg, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id, routine, direction, leg, segments, bytes, envelope, created_at
		FROM call_legs
		WHERE routine = ?
		ORDER BY id ASC
	`, routine)
	if err != nil {
		return nil, fmt.Errorf("query legs by routine: %w", err)
	}
	defer rows.Close()

	return scanLegs(rows)
}

func scanLegs(rows *sql.Rows) ([]Leg, error) {
	var legs []Leg
	for rows.Next() {
		var l Leg
		var envelope string
		if err := rows.Scan(&l.CallID, &l.Routine, &l.Direction, &l.Leg, &l.Segments, &l.Bytes, &envelope, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		l.Envelope = []byte(envelope)
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legs: %w", err)
	}
	return legs, nil
}
