package store

import (
	"context"
	"fmt"
)

// ErrDuplicateStep is returned by InsertActionLog when a row already
// exists for (session_id, step_index) — the belt-and-braces second line of
// defense behind the sessions.version CAS, per spec.md §4.2 guarantee 4.
var ErrDuplicateStep = fmt.Errorf("store: action log row already exists for this step")

// ActionLogRow is one append-only committed-step record, per spec.md §3.
type ActionLogRow struct {
	SessionID string
	StepIndex int
	Payload   []byte
}

// InsertActionLog appends a step record. A unique violation on
// (session_id, step_index) is reported as ErrDuplicateStep, which the
// pipeline maps to SESSION_STEP_CONFLICT.
func (s *Store) InsertActionLog(ctx context.Context, row ActionLogRow) error {
	query := fmt.Sprintf(
		`INSERT INTO action_logs (session_id, step_index, payload, created_at)
		 VALUES (%s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.jsonPlaceholder(3), s.now(),
	)
	_, err := s.DB.ExecContext(ctx, query, row.SessionID, row.StepIndex, string(row.Payload))
	if isUniqueViolation(err) {
		return ErrDuplicateStep
	}
	if err != nil {
		return fmt.Errorf("store: insert action log: %w", err)
	}
	return nil
}
