// Package pipeline implements the Step Execution Pipeline from spec.md
// §4.1: the 12-step ExecuteStep algorithm that composes the idempotency
// controller, the selection resolver, the state-transition kernel, the LLM
// boundary, and the persistence layer into one request's worth of
// synchronous or streamed gameplay.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/loomstep/engine/internal/idempotency"
	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/llmboundary"
	"github.com/loomstep/engine/internal/selection"
	"github.com/loomstep/engine/internal/store"
	"github.com/loomstep/engine/internal/storypack"
	"github.com/loomstep/engine/internal/telemetry"
	"github.com/loomstep/engine/internal/timeid"
)

// Pipeline wires every collaborator ExecuteStep needs. Construct one per
// process and share it across requests; every field is safe for
// concurrent use.
type Pipeline struct {
	Store       *store.Store
	Idempotency *idempotency.Controller
	Packs       *storypack.Cache
	Boundary    llmboundary.Boundary
	Telemetry   *telemetry.Sink

	Policy        selection.ConfidencePolicy
	InputMaxChars int

	// FallbackGuardDefaultMaxConsecutive is used when a story pack leaves
	// fallback_policy.forced_fallback_threshold unset (<= 0), per
	// STORY_FALLBACK_GUARD_DEFAULT_MAX_CONSECUTIVE (spec.md §6).
	FallbackGuardDefaultMaxConsecutive int

	SelectionTimeout time.Duration
	NarrationTimeout time.Duration
	EndingTimeout    time.Duration
}

// New wires a Pipeline from its dependencies.
func New(
	s *store.Store,
	idem *idempotency.Controller,
	packs *storypack.Cache,
	boundary llmboundary.Boundary,
	sink *telemetry.Sink,
	policy selection.ConfidencePolicy,
	inputMaxChars int,
	fallbackGuardDefault int,
	selectionTimeout, narrationTimeout, endingTimeout time.Duration,
) *Pipeline {
	return &Pipeline{
		Store:                              s,
		Idempotency:                        idem,
		Packs:                              packs,
		Boundary:                           boundary,
		Telemetry:                          sink,
		Policy:                             policy,
		InputMaxChars:                      inputMaxChars,
		FallbackGuardDefaultMaxConsecutive: fallbackGuardDefault,
		SelectionTimeout:                   selectionTimeout,
		NarrationTimeout:                   narrationTimeout,
		EndingTimeout:                      endingTimeout,
	}
}

// ExecuteStep is the pipeline's public contract: it runs the full 12-step
// algorithm of spec.md §4.1 for one (session_id, idempotency_key) pair and
// returns the StepResponse to persist/replay, or a domain Error.
func (p *Pipeline) ExecuteStep(ctx context.Context, sessionID string, req StepRequest, idempotencyKey string, hooks Hooks) (resp *StepResponse, err error) {
	start := time.Now()
	log := slog.With("session_id", sessionID, "idempotency_key", idempotencyKey)

	if verr := validateRequest(req, idempotencyKey); verr != nil {
		return nil, verr
	}

	hash, herr := timeid.RequestHash(stepRequestPayload{ChoiceID: req.ChoiceID, PlayerInput: req.PlayerInput})
	if herr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: "hash request: " + herr.Error()}
	}

	// Step 1: short txn A.
	prep, perr := p.Idempotency.Prepare(ctx, sessionID, idempotencyKey, hash)
	if perr != nil {
		return nil, mapIdempotencyError(perr)
	}
	if prep.Outcome == idempotency.OutcomeReplay {
		if hooks.OnReplay != nil {
			hooks.OnReplay()
		}
		var replay StepResponse
		if jerr := json.Unmarshal(prep.ReplayResponse, &replay); jerr != nil {
			return nil, &Error{Code: CodeStepFailed, Message: "corrupt replay response: " + jerr.Error()}
		}
		return &replay, nil
	}

	// From here on, a prepared in_progress idempotency row exists and must
	// be finalized one way or the other before ExecuteStep returns.
	defer func() {
		if err != nil {
			code := errorCode(err)
			log.Error("step failed", "error_code", code, "error", err)
			_ = p.Idempotency.FinalizeFailed(ctx, sessionID, idempotencyKey, code)
			if p.Telemetry != nil {
				p.Telemetry.RecordStep(code, time.Since(start))
			}
		}
	}()

	// Step 2: open session context.
	row, serr := p.Store.GetSession(ctx, sessionID)
	if errors.Is(serr, store.ErrSessionNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: "session not found"}
	}
	if serr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: serr.Error()}
	}

	if req.ActorUserID != "" && req.ActorUserID != row.UserID {
		return nil, &Error{Code: CodeForbidden, Message: "actor does not own this session"}
	}
	if row.Status != store.SessionStatusActive {
		return nil, &Error{Code: CodeRuntimeConflict, Message: "session is not active"}
	}

	var stateBefore kernel.State
	if jerr := json.Unmarshal(row.StateJSON, &stateBefore); jerr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: "corrupt session state: " + jerr.Error()}
	}

	pack, rerr := p.Packs.Resolve(row.StoryID, row.StoryVersion)
	if rerr != nil {
		return nil, &Error{Code: CodeNotFound, Message: rerr.Error()}
	}

	// Step 3.
	emitPhase(hooks, PhaseSelectionStart, nil)
	if checkAbort(hooks) {
		return nil, &Error{Code: CodeStreamAborted, Message: "client disconnected before selection"}
	}

	// Step 4.
	resolver := selection.NewResolver(p.Boundary, pack, p.Policy, p.InputMaxChars)
	npcState := stateBefore.NpcState

	var decision selection.Decision
	selectionMode := "free_input"

	if req.ChoiceID != "" {
		selectionMode = "explicit"
		d, derr := resolver.ResolveExplicit(row.StoryNodeID, req.ChoiceID, npcState)
		if derr != nil {
			var locked *selection.ChoiceLockedError
			var invalid *selection.InvalidChoiceError
			switch {
			case errors.As(derr, &locked):
				return nil, &Error{Code: CodeChoiceLocked, Message: locked.Error()}
			case errors.As(derr, &invalid):
				return nil, &Error{Code: CodeInvalidChoice, Message: invalid.Error()}
			default:
				return nil, &Error{Code: CodeStepFailed, Message: derr.Error()}
			}
		}
		decision = d
	} else {
		selCtx, cancel := context.WithTimeout(ctx, p.SelectionTimeout)
		d, derr := resolver.ResolveFreeInput(selCtx, row.StoryNodeID, npcState, req.PlayerInput, stateBefore.RunState.StepIndex+1)
		cancel()
		if derr != nil {
			var unavailable *selection.UnavailableError
			if errors.As(derr, &unavailable) {
				return nil, &Error{Code: CodeLLMUnavailable, Message: unavailable.Error()}
			}
			return nil, &Error{Code: CodeStepFailed, Message: derr.Error()}
		}
		decision = d
	}

	// Step 5.
	emitPhase(hooks, PhaseSelectionDone, map[string]any{"selection_source": decision.SelectionSource})

	// Step 6: state transition.
	tier := kernel.EffectiveIntensityTier(decision.RawIntensityTier, decision.FallbackUsed, decision.FallbackReasonCode)
	transitionResult := kernel.ApplyTransition(stateBefore, decision.RangeEffects, tier, decision.FallbackUsed, pack.ThresholdLookup())

	reactionSource := "choice"
	if decision.FallbackUsed {
		reactionSource = "fallback"
	}
	reactionEffects := collectReactionEffects(pack, decision.ReactiveNpcIDs, transitionResult.State, reactionSource)
	stateAfterReactions, reactionDeltas, reactionApplied := kernel.ApplyRangeEffects(transitionResult.State, reactionEffects, 0)
	stateAfterReactions = kernel.Normalize(stateAfterReactions, pack.ThresholdLookup())
	stateAfterReactions = kernel.ApplyQuestProgress(stateAfterReactions, pack.QuestDefs, row.StoryNodeID, decision.NextNodeID, decision.ExecutedChoiceID, decision.FallbackUsed)

	stateDelta := mergeDeltas(transitionResult.Deltas, reactionDeltas)
	appliedEffects := append(append([]kernel.AppliedEffect{}, transitionResult.Applied...), reactionApplied...)

	// Step 7: ending resolution.
	forcedThreshold := pack.FallbackPolicy.ForcedFallbackThreshold
	if forcedThreshold <= 0 {
		forcedThreshold = p.FallbackGuardDefaultMaxConsecutive
	}

	var ending kernel.EndingDef
	var ended bool
	if decision.TransitionEndingID != "" {
		if def, ok := pack.EndingByID[decision.TransitionEndingID]; ok {
			ending, ended = def, true
		}
	}
	if !ended {
		if def, ok := kernel.ForcedFallbackEnding(decision.FallbackUsed, stateAfterReactions.RunState.ConsecutiveFallbackCount, forcedThreshold, pack.FallbackPolicy.ForcedFallbackEndingID, pack.EndingByID); ok {
			ending, ended = def, true
		}
	}
	if !ended {
		if def, ok := kernel.ResolveRunEnding(stateAfterReactions, decision.NextNodeID, pack.EffectiveEndings, pack.RunLimits); ok {
			ending, ended = def, true
		}
	}

	if decision.FallbackUsed {
		stateAfterReactions.RunState.NudgeTier = kernel.NudgeTier(decision.FallbackReasonCode, stateAfterReactions.RunState.ConsecutiveFallbackCount)
		log.Info("fallback triggered",
			"reason_code", decision.FallbackReasonCode,
			"consecutive_fallback_count", stateAfterReactions.RunState.ConsecutiveFallbackCount,
			"nudge_tier", stateAfterReactions.RunState.NudgeTier,
		)
	}

	finalState := stateAfterReactions
	if ended {
		log.Info("run ending resolved", "ending_id", ending.ID, "outcome", ending.Outcome, "camp", ending.Camp)
		finalState = kernel.ApplyEnding(stateAfterReactions, ending, nil)
	}

	// Step 8: narrative generation.
	node := pack.NodeByID[row.StoryNodeID]
	narrOutcome, nerr := p.narrate(ctx, hooks, pack, node, decision, finalState, ended, ending)
	if nerr != nil {
		return nil, nerr
	}

	var endingReport map[string]any
	if narrOutcome.endingReport != nil {
		endingReport = narrOutcome.endingReport
		finalState.RunState.EndingReport = endingReport
	}

	// Step 9.
	emitPhase(hooks, PhaseFinalizing, nil)

	// Step 10: short txn B.
	newStatus := store.SessionStatusActive
	if ended {
		newStatus = store.SessionStatusEnded
	}

	newStateJSON, merr := json.Marshal(finalState)
	if merr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: "marshal state: " + merr.Error()}
	}

	casOK, cerr := p.Store.CASUpdateSession(ctx, sessionID, row.Version, newStatus, decision.NextNodeID, newStateJSON)
	if cerr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: cerr.Error()}
	}
	if !casOK {
		log.Warn("CAS conflict on session update", "expected_version", row.Version)
		return nil, &Error{Code: CodeSessionStepConflict, Message: "session version changed concurrently"}
	}

	logPayload, lerr := json.Marshal(actionLogPayload{
		Request:                stepRequestPayload{ChoiceID: req.ChoiceID, PlayerInput: req.PlayerInput},
		AttemptedChoiceID:      decision.AttemptedChoiceID,
		ExecutedChoiceID:       decision.ExecutedChoiceID,
		SelectionSource:        decision.SelectionSource,
		SelectionDecisionCode:  decision.SelectionDecisionCode,
		RawIntensityTier:       decision.RawIntensityTier,
		EffectiveIntensityTier: tier,
		FallbackUsed:           decision.FallbackUsed,
		FallbackReasonCode:     string(decision.FallbackReasonCode),
		SelectionRetryCount:    decision.SelectionRetryCount,
		SelectionRetryErrors:   decision.SelectionRetryErrors,
		MappingConfidence:      decision.MappingConfidence,
		StateBefore:            stateBefore,
		StateDelta:             stateDelta,
		StateAfter:             finalState,
		RangeEffectsApplied:    appliedEffects,
		NarrativeMode:          narrOutcome.mode,
		RunEnded:               ended,
		EndingID:               ending.ID,
	})
	if lerr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: "marshal action log: " + lerr.Error()}
	}

	if aerr := p.Store.InsertActionLog(ctx, store.ActionLogRow{
		SessionID: sessionID,
		StepIndex: finalState.RunState.StepIndex,
		Payload:   logPayload,
	}); aerr != nil {
		if errors.Is(aerr, store.ErrDuplicateStep) {
			return nil, &Error{Code: CodeSessionStepConflict, Message: aerr.Error()}
		}
		return nil, &Error{Code: CodeStepFailed, Message: aerr.Error()}
	}

	// Step 12: build the response before the final idempotency commit, so
	// the exact bytes finalized are the exact bytes returned.
	response := buildStepResponse(newStatus, decision, selectionMode, tier, finalState, appliedEffects, narrOutcome, ended, ending, endingReport, pack)

	respJSON, jerr := json.Marshal(response)
	if jerr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: "marshal response: " + jerr.Error()}
	}

	// Step 11: short txn C.
	if ferr := p.Idempotency.FinalizeSucceeded(ctx, sessionID, idempotencyKey, respJSON); ferr != nil {
		return nil, &Error{Code: CodeStepFailed, Message: ferr.Error()}
	}

	if p.Telemetry != nil {
		p.Telemetry.RecordStep("success", time.Since(start))
		if decision.FallbackUsed {
			p.Telemetry.RecordFallback(string(decision.FallbackReasonCode))
		}
		if ended {
			p.Telemetry.RecordEnding(ending.Outcome, ending.Camp)
		}
	}

	log.Info("step succeeded", "step_index", finalState.RunState.StepIndex, "run_ended", ended, "duration", time.Since(start))
	return response, nil
}
