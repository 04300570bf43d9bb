// Package idempotency implements the per-(session, idempotency-key)
// exactly-once controller from spec.md §4.2: short-transaction
// prepare/finalize around the pipeline's long-running work, request-hash
// fingerprinting, and replay-on-success.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomstep/engine/internal/store"
)

// Outcome is what the controller decided to do for this request, handed
// back to the pipeline caller.
type Outcome int

const (
	// OutcomeProceed means no prior record exists (or the prior attempt
	// failed and was reset); the caller should run the pipeline and then
	// call Finalize.
	OutcomeProceed Outcome = iota
	// OutcomeReplay means a succeeded record exists; ReplayResponse holds
	// the stored response_json verbatim.
	OutcomeReplay
)

// PrepareResult is Prepare's return value.
type PrepareResult struct {
	Outcome        Outcome
	ReplayResponse []byte
}

// ErrPayloadMismatch is raised when the same (session_id, key) was
// previously used with a different request body, per spec.md §4.2
// guarantee 2.
type ErrPayloadMismatch struct {
	SessionID string
	Key       string
}

func (e *ErrPayloadMismatch) Error() string {
	return fmt.Sprintf("idempotency: request payload mismatch for session %s key %s", e.SessionID, e.Key)
}

// ErrRequestInProgress is raised when a concurrent request with the same
// key is already being processed, per spec.md §4.2 guarantee 3.
type ErrRequestInProgress struct {
	SessionID string
	Key       string
}

func (e *ErrRequestInProgress) Error() string {
	return fmt.Sprintf("idempotency: request already in progress for session %s key %s", e.SessionID, e.Key)
}

// Controller wraps a store.Store with the prepare/finalize discipline spec.md
// §4.1 steps 1 and 11 require.
type Controller struct {
	store *store.Store
}

// New wires a Controller to its backing store.
func New(s *store.Store) *Controller {
	return &Controller{store: s}
}

// Prepare implements spec.md §4.1 step 1 (the "short txn A" lookup/insert).
// It is deliberately a single round of store calls, not a DB transaction
// object, because the store methods it composes are each already
// single-statement and the controller's correctness relies on the unique
// constraint on (session_id, idempotency_key), not on an explicit BEGIN.
func (c *Controller) Prepare(ctx context.Context, sessionID, key, requestHash string) (PrepareResult, error) {
	log := slog.With("session_id", sessionID, "idempotency_key", key)

	row, err := c.store.LookupIdempotency(ctx, sessionID, key)
	if errors.Is(err, store.ErrIdempotencyNotFound) {
		insertErr := c.store.InsertIdempotencyInProgress(ctx, sessionID, key, requestHash)
		if errors.Is(insertErr, store.ErrIdempotencyConflict) {
			// Lost the race to a concurrent insert; re-resolve against
			// whatever the winner left behind.
			log.Info("lost idempotency insert race, re-resolving")
			return c.Prepare(ctx, sessionID, key, requestHash)
		}
		if insertErr != nil {
			return PrepareResult{}, fmt.Errorf("idempotency: prepare insert: %w", insertErr)
		}
		return PrepareResult{Outcome: OutcomeProceed}, nil
	}
	if err != nil {
		return PrepareResult{}, fmt.Errorf("idempotency: prepare lookup: %w", err)
	}

	if row.RequestHash != requestHash {
		log.Warn("idempotency payload mismatch")
		return PrepareResult{}, &ErrPayloadMismatch{SessionID: sessionID, Key: key}
	}

	switch row.Status {
	case store.IdempotencyInProgress:
		log.Warn("idempotency request already in progress")
		return PrepareResult{}, &ErrRequestInProgress{SessionID: sessionID, Key: key}
	case store.IdempotencySucceeded:
		log.Info("replaying succeeded idempotency row")
		return PrepareResult{Outcome: OutcomeReplay, ReplayResponse: row.ResponseJSON}, nil
	case store.IdempotencyFailed:
		log.Info("resetting failed idempotency row for retry")
		if err := c.store.ResetIdempotencyInProgress(ctx, sessionID, key, requestHash); err != nil {
			return PrepareResult{}, fmt.Errorf("idempotency: reset failed row: %w", err)
		}
		return PrepareResult{Outcome: OutcomeProceed}, nil
	default:
		return PrepareResult{}, fmt.Errorf("idempotency: unknown row status %q", row.Status)
	}
}

// FinalizeSucceeded implements spec.md §4.1 step 11's success path: the row
// is marked succeeded with the response body that will be replayed to any
// retry with the same key.
func (c *Controller) FinalizeSucceeded(ctx context.Context, sessionID, key string, responseJSON []byte) error {
	if err := c.store.MarkIdempotencySucceeded(ctx, sessionID, key, responseJSON); err != nil {
		return fmt.Errorf("idempotency: finalize succeeded: %w", err)
	}
	slog.Info("step finalized", "session_id", sessionID, "idempotency_key", key, "outcome", "succeeded")
	return nil
}

// FinalizeFailed implements spec.md §4.1 step 11's failure path: the row is
// marked failed with the domain error kind that triggered it, per the
// mapping in spec.md §4.1's "Failure semantics".
func (c *Controller) FinalizeFailed(ctx context.Context, sessionID, key, errorCode string) error {
	if err := c.store.MarkIdempotencyFailed(ctx, sessionID, key, errorCode); err != nil {
		return fmt.Errorf("idempotency: finalize failed: %w", err)
	}
	slog.Warn("step finalized", "session_id", sessionID, "idempotency_key", key, "outcome", "failed", "error_code", errorCode)
	return nil
}
