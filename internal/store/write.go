package store

import (
	"context"
	"fmt"
)

// Leg directions and kinds.
const (
	DirectionForward  = "forward"
	DirectionCallback = "callback"

	LegRequest  = "request"
	LegResponse = "response"
)

// Leg is one envelope crossing the transport: the request or response
// half of a forward call or a callback invocation.
type Leg struct {
	CallID    string
	Routine   string
	Direction string
	Leg       string
	Segments  int
	Bytes     int
	Envelope  []byte
	CreatedAt string
}

// RecordLeg inserts a trace row.
// Uses ON CONFLICT DO NOTHING for idempotency - a call has exactly one
// request and one response leg, and duplicate writes are silently
// ignored.
func (s *Store) RecordLeg(ctx context.Context, leg Leg) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_legs
		(call_id, routine, direction, leg, segments, bytes, envelope)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(call_id, leg) DO NOTHING
	`,
		leg.CallID,
		leg.Routine,
		leg.Direction,
		leg.Leg,
		leg.Segments,
		leg.Bytes,
		string(leg.Envelope),
	)
	if err != nil {
		return fmt.Errorf("record leg: %w", err)
	}

	return nil
}
