package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Idempotency row states, per spec.md §3/§4.2.
const (
	IdempotencyInProgress = "in_progress"
	IdempotencySucceeded  = "succeeded"
	IdempotencyFailed     = "failed"
)

// ErrIdempotencyNotFound is returned by LookupIdempotency when no row
// matches (session_id, key).
var ErrIdempotencyNotFound = errors.New("store: idempotency row not found")

// ErrIdempotencyConflict is returned by InsertIdempotencyInProgress when a
// row already exists for (session_id, key) — the caller must re-lookup to
// resolve the race per spec.md §4.2's concurrent-insert guarantee.
var ErrIdempotencyConflict = errors.New("store: idempotency row already exists")

// IdempotencyRow is the persisted shape of a StepIdempotency record.
type IdempotencyRow struct {
	SessionID    string
	Key          string
	Status       string
	RequestHash  string
	ResponseJSON []byte
	ErrorCode    string
	UpdatedAt    time.Time
}

// LookupIdempotency fetches the row for (sessionID, key).
func (s *Store) LookupIdempotency(ctx context.Context, sessionID, key string) (IdempotencyRow, error) {
	query := fmt.Sprintf(
		`SELECT session_id, idempotency_key, status, request_hash, response_json, error_code, updated_at
		 FROM step_idempotency WHERE session_id = %s AND idempotency_key = %s`,
		s.placeholder(1), s.placeholder(2),
	)
	var row IdempotencyRow
	var responseJSON, errorCode sql.NullString
	err := s.DB.QueryRowContext(ctx, query, sessionID, key).Scan(
		&row.SessionID, &row.Key, &row.Status, &row.RequestHash, &responseJSON, &errorCode, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRow{}, ErrIdempotencyNotFound
	}
	if err != nil {
		return IdempotencyRow{}, fmt.Errorf("store: lookup idempotency: %w", err)
	}
	if responseJSON.Valid {
		row.ResponseJSON = []byte(responseJSON.String)
	}
	row.ErrorCode = errorCode.String
	return row, nil
}

// InsertIdempotencyInProgress inserts a fresh in_progress row. A unique
// violation means a concurrent request beat this one to the insert; the
// caller re-looks-up to resolve it, per spec.md §4.2's race guarantee.
func (s *Store) InsertIdempotencyInProgress(ctx context.Context, sessionID, key, requestHash string) error {
	query := fmt.Sprintf(
		`INSERT INTO step_idempotency (session_id, idempotency_key, status, request_hash, updated_at)
		 VALUES (%s, %s, '%s', %s, %s)`,
		s.placeholder(1), s.placeholder(2), IdempotencyInProgress, s.placeholder(3), s.now(),
	)
	_, err := s.DB.ExecContext(ctx, query, sessionID, key, requestHash)
	if isUniqueViolation(err) {
		return ErrIdempotencyConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert idempotency: %w", err)
	}
	return nil
}

// ResetIdempotencyInProgress clears a failed row back to in_progress with a
// fresh request hash, for a retry against the same key, per spec.md §4.1
// step 1.
func (s *Store) ResetIdempotencyInProgress(ctx context.Context, sessionID, key, requestHash string) error {
	query := fmt.Sprintf(
		`UPDATE step_idempotency SET status = '%s', request_hash = %s, response_json = NULL, error_code = NULL, updated_at = %s
		 WHERE session_id = %s AND idempotency_key = %s`,
		IdempotencyInProgress, s.placeholder(1), s.now(), s.placeholder(2), s.placeholder(3),
	)
	_, err := s.DB.ExecContext(ctx, query, requestHash, sessionID, key)
	if err != nil {
		return fmt.Errorf("store: reset idempotency: %w", err)
	}
	return nil
}

// MarkIdempotencySucceeded finalizes a row as succeeded with the stored
// response body, per spec.md §4.1 step 11.
func (s *Store) MarkIdempotencySucceeded(ctx context.Context, sessionID, key string, responseJSON []byte) error {
	query := fmt.Sprintf(
		`UPDATE step_idempotency SET status = '%s', response_json = %s, error_code = NULL, updated_at = %s
		 WHERE session_id = %s AND idempotency_key = %s`,
		IdempotencySucceeded, s.jsonPlaceholder(1), s.now(), s.placeholder(2), s.placeholder(3),
	)
	_, err := s.DB.ExecContext(ctx, query, string(responseJSON), sessionID, key)
	if err != nil {
		return fmt.Errorf("store: mark idempotency succeeded: %w", err)
	}
	return nil
}

// MarkIdempotencyFailed finalizes a row as failed with the raised error
// kind, per spec.md §4.1 step 11.
func (s *Store) MarkIdempotencyFailed(ctx context.Context, sessionID, key, errorCode string) error {
	query := fmt.Sprintf(
		`UPDATE step_idempotency SET status = '%s', error_code = %s, updated_at = %s
		 WHERE session_id = %s AND idempotency_key = %s`,
		IdempotencyFailed, s.placeholder(1), s.now(), s.placeholder(2), s.placeholder(3),
	)
	_, err := s.DB.ExecContext(ctx, query, errorCode, sessionID, key)
	if err != nil {
		return fmt.Errorf("store: mark idempotency failed: %w", err)
	}
	return nil
}

// SweepStaleIdempotencyRows resets any row stuck in_progress for longer
// than olderThan back to failed(CRASH_RECOVERED), so a crashed request
// never permanently wedges its key. Grounded on the teacher's
// FindOrphanedSessions maintenance pattern; not wired to a background
// goroutine by default.
func (s *Store) SweepStaleIdempotencyRows(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(
		`UPDATE step_idempotency SET status = '%s', error_code = '%s', updated_at = %s
		 WHERE status = '%s' AND updated_at < %s`,
		IdempotencyFailed, "CRASH_RECOVERED", s.now(), IdempotencyInProgress, s.placeholder(1),
	)
	result, err := s.DB.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: sweep stale idempotency rows: %w", err)
	}
	return result.RowsAffected()
}
