package idempotency

import (
	"context"
	"fmt"
	"testing"

	"github.com/loomstep/engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *store.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := store.NewSQLite(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateSession(context.Background(), store.SessionRow{
		ID: "sess_1", UserID: "u1", StoryID: "campus_week_v1", StoryVersion: 1,
		Status: store.SessionStatusActive, StoryNodeID: "n_hub", StateJSON: []byte(`{}`),
	}))

	return New(s), s
}

func TestPrepareProceedsOnFirstCall(t *testing.T) {
	c, _ := newTestController(t)

	result, err := c.Prepare(context.Background(), "sess_1", "key-1", "hash-a")

	require.NoError(t, err)
	assert.Equal(t, OutcomeProceed, result.Outcome)
}

func TestPrepareReturnsInProgressOnRace(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)

	_, err = c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	var inProgress *ErrRequestInProgress
	require.ErrorAs(t, err, &inProgress)
}

func TestPrepareReturnsPayloadMismatch(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)

	_, err = c.Prepare(ctx, "sess_1", "key-1", "hash-DIFFERENT")
	var mismatch *ErrPayloadMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestPrepareReplaysSucceededResponse(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)
	require.NoError(t, c.FinalizeSucceeded(ctx, "sess_1", "key-1", []byte(`{"node_id":"n_library"}`)))

	result, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")

	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, result.Outcome)
	assert.JSONEq(t, `{"node_id":"n_library"}`, string(result.ReplayResponse))
}

func TestPrepareRetriesAfterFailure(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)
	require.NoError(t, c.FinalizeFailed(ctx, "sess_1", "key-1", "LLM_UNAVAILABLE"))

	result, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")

	require.NoError(t, err)
	assert.Equal(t, OutcomeProceed, result.Outcome, "a failed row must reset to in_progress so the retry can proceed")
}

func TestPrepareWithNewKeyAfterFailureIsIndependent(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.Prepare(ctx, "sess_1", "key-1", "hash-a")
	require.NoError(t, err)
	require.NoError(t, c.FinalizeFailed(ctx, "sess_1", "key-1", "SESSION_STEP_CONFLICT"))

	result, err := c.Prepare(ctx, "sess_1", "key-2", "hash-b")

	require.NoError(t, err)
	assert.Equal(t, OutcomeProceed, result.Outcome)
}
