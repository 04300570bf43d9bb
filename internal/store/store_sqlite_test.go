package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := NewSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSession(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateSession(context.Background(), SessionRow{
		ID: id, UserID: "u1", StoryID: "campus_week_v1", StoryVersion: 1,
		Status: SessionStatusActive, StoryNodeID: "n_hub", StateJSON: []byte(`{}`),
	})
	require.NoError(t, err)
}

func TestCreateAndGetSessionRoundTrips(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")

	row, err := s.GetSession(context.Background(), "sess_1")

	require.NoError(t, err)
	assert.Equal(t, "n_hub", row.StoryNodeID)
	assert.EqualValues(t, 1, row.Version)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCASUpdateSessionSucceedsOnMatchingVersion(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")

	ok, err := s.CASUpdateSession(context.Background(), "sess_1", 1, SessionStatusActive, "n_library", []byte(`{"day":2}`))

	require.NoError(t, err)
	assert.True(t, ok)

	row, err := s.GetSession(context.Background(), "sess_1")
	require.NoError(t, err)
	assert.Equal(t, "n_library", row.StoryNodeID)
	assert.EqualValues(t, 2, row.Version)
}

func TestCASUpdateSessionFailsOnStaleVersion(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")

	ok, err := s.CASUpdateSession(context.Background(), "sess_1", 999, SessionStatusActive, "n_library", []byte(`{}`))

	require.NoError(t, err)
	assert.False(t, ok, "stale expected_version must not affect any row")
}

func TestCASUpdateSessionFailsWhenEnded(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")
	ok, err := s.CASUpdateSession(context.Background(), "sess_1", 1, SessionStatusEnded, "n_ending", []byte(`{}`))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CASUpdateSession(context.Background(), "sess_1", 2, SessionStatusActive, "n_hub", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok, "an ended session must never accept a further CAS update")
}

func TestInsertActionLogRejectsDuplicateStepIndex(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")

	err := s.InsertActionLog(context.Background(), ActionLogRow{SessionID: "sess_1", StepIndex: 1, Payload: []byte(`{}`)})
	require.NoError(t, err)

	err = s.InsertActionLog(context.Background(), ActionLogRow{SessionID: "sess_1", StepIndex: 1, Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrDuplicateStep)
}

func TestIdempotencyInsertLookupAndFinalize(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")
	ctx := context.Background()

	err := s.InsertIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)

	row, err := s.LookupIdempotency(ctx, "sess_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, IdempotencyInProgress, row.Status)
	assert.Equal(t, "hash-a", row.RequestHash)

	err = s.MarkIdempotencySucceeded(ctx, "sess_1", "key-1", []byte(`{"ok":true}`))
	require.NoError(t, err)

	row, err = s.LookupIdempotency(ctx, "sess_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, IdempotencySucceeded, row.Status)
	assert.JSONEq(t, `{"ok":true}`, string(row.ResponseJSON))
}

func TestIdempotencyInsertConflictsOnDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")
	ctx := context.Background()

	require.NoError(t, s.InsertIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-a"))

	err := s.InsertIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-b")
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestIdempotencyResetAfterFailure(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")
	ctx := context.Background()

	require.NoError(t, s.InsertIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-a"))
	require.NoError(t, s.MarkIdempotencyFailed(ctx, "sess_1", "key-1", "STEP_FAILED"))

	require.NoError(t, s.ResetIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-a"))

	row, err := s.LookupIdempotency(ctx, "sess_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, IdempotencyInProgress, row.Status)
	assert.Empty(t, row.ErrorCode)
}

func TestLookupIdempotencyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LookupIdempotency(context.Background(), "sess_1", "key-missing")
	assert.ErrorIs(t, err, ErrIdempotencyNotFound)
}

func TestSweepStaleIdempotencyRows(t *testing.T) {
	s := newTestStore(t)
	seedSession(t, s, "sess_1")
	ctx := context.Background()
	require.NoError(t, s.InsertIdempotencyInProgress(ctx, "sess_1", "key-1", "hash-a"))

	affected, err := s.SweepStaleIdempotencyRows(ctx, -time.Second) // cutoff in the future relative to the row
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	row, err := s.LookupIdempotency(ctx, "sess_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, IdempotencyFailed, row.Status)
	assert.Equal(t, "CRASH_RECOVERED", row.ErrorCode)
}

func TestHealthReportsStatus(t *testing.T) {
	s := newTestStore(t)
	status, err := s.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
}
