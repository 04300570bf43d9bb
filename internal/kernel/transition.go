package kernel

// FallbackReason enumerates spec.md's fallback reason codes.
type FallbackReason string

const (
	ReasonNoMatch     FallbackReason = "NO_MATCH"
	ReasonLowConf     FallbackReason = "LOW_CONF"
	ReasonInputPolicy FallbackReason = "INPUT_POLICY"
	ReasonOffTopic    FallbackReason = "OFF_TOPIC"
)

// IntensityPenalty returns the tier penalty applied for a fallback reason,
// per spec.md §4.1 step 6: INPUT_POLICY -> -2, everything else -> -1.
func IntensityPenalty(reason FallbackReason) int {
	if reason == ReasonInputPolicy {
		return -2
	}
	return -1
}

// EffectiveIntensityTier applies the fallback penalty (zero when no
// fallback was used) to the raw tier and clamps to [-2,2], per spec.md §8's
// quantified invariant.
func EffectiveIntensityTier(rawTier int, fallbackUsed bool, reason FallbackReason) int {
	if !fallbackUsed {
		return ClampTier(rawTier)
	}
	return ClampTier(rawTier + IntensityPenalty(reason))
}

// TransitionResult bundles the outputs of ApplyTransition for the caller to
// fold into an ActionLog row.
type TransitionResult struct {
	State   State
	Deltas  map[string]int
	Applied []AppliedEffect
}

// ApplyTransition is apply_transition from spec.md §4.4: increments
// step_index, updates fallback counters, then delegates to
// ApplyRangeEffects and normalizes the result.
func ApplyTransition(s State, effects []RangeEffect, tier int, fallbackUsed bool, thresholds ThresholdLookup) TransitionResult {
	working := s.Clone()
	working.RunState.StepIndex++
	if fallbackUsed {
		working.RunState.FallbackCount++
		working.RunState.ConsecutiveFallbackCount++
	} else {
		working.RunState.ConsecutiveFallbackCount = 0
	}

	next, deltas, applied := ApplyRangeEffects(working, effects, tier)
	next = Normalize(next, thresholds)

	return TransitionResult{State: next, Deltas: deltas, Applied: applied}
}

// NudgeTier computes run_state.nudge_tier for a fallback step per spec.md
// §4.1 step 7: INPUT_POLICY or consecutive>=3 -> firm; LOW_CONF or ==2 ->
// neutral; else soft.
func NudgeTier(reason FallbackReason, consecutive int) string {
	if reason == ReasonInputPolicy || consecutive >= 3 {
		return "firm"
	}
	if reason == ReasonLowConf || consecutive == 2 {
		return "neutral"
	}
	return "soft"
}
