package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session status values, per spec.md §3.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// ErrSessionNotFound is returned by GetSession when no row matches id.
var ErrSessionNotFound = errors.New("store: session not found")

// SessionRow is the persisted shape of a Session, per spec.md §3.
type SessionRow struct {
	ID           string
	UserID       string
	StoryID      string
	StoryVersion int
	Status       string
	StoryNodeID  string
	StateJSON    []byte
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateSession inserts a new session row at version 1.
func (s *Store) CreateSession(ctx context.Context, row SessionRow) error {
	query := fmt.Sprintf(
		`INSERT INTO sessions (id, user_id, story_id, story_version, status, story_node_id, state_json, version, created_at, updated_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, 1, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.jsonPlaceholder(7), s.now(), s.now(),
	)
	_, err := s.DB.ExecContext(ctx, query,
		row.ID, row.UserID, row.StoryID, row.StoryVersion, row.Status, row.StoryNodeID, string(row.StateJSON),
	)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// GetSession loads a session row by id.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRow, error) {
	query := fmt.Sprintf(
		`SELECT id, user_id, story_id, story_version, status, story_node_id, state_json, version, created_at, updated_at
		 FROM sessions WHERE id = %s`,
		s.placeholder(1),
	)
	var row SessionRow
	var stateJSON string
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.UserID, &row.StoryID, &row.StoryVersion, &row.Status, &row.StoryNodeID,
		&stateJSON, &row.Version, &row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("store: get session: %w", err)
	}
	row.StateJSON = []byte(stateJSON)
	return row, nil
}

// CASUpdateSession applies the per-spec.md §4.1 step-10 optimistic update:
// UPDATE ... WHERE id=? AND status='active' AND version=?. It reports
// whether exactly one row was affected; the caller maps a false result to
// SESSION_STEP_CONFLICT.
func (s *Store) CASUpdateSession(ctx context.Context, id string, expectedVersion int64, status, storyNodeID string, stateJSON []byte) (bool, error) {
	query := fmt.Sprintf(
		`UPDATE sessions SET status = %s, story_node_id = %s, state_json = %s, updated_at = %s, version = version + 1
		 WHERE id = %s AND status = '%s' AND version = %s`,
		s.placeholder(1), s.placeholder(2), s.jsonPlaceholder(3), s.now(),
		s.placeholder(4), SessionStatusActive, s.placeholder(5),
	)
	result, err := s.DB.ExecContext(ctx, query, status, storyNodeID, string(stateJSON), id, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("store: cas update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: cas update session rows affected: %w", err)
	}
	return affected == 1, nil
}
