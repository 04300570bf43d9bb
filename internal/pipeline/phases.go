package pipeline

// Phase names emitted via Hooks.OnPhase, in the order spec.md §4.1/§4.6
// fires them for a successful step.
const (
	PhaseSelectionStart = "selection_start"
	PhaseSelectionDone  = "selection_done"
	PhaseNarrationStart = "narration_start"
	PhaseNarrationDone  = "narration_done"
	PhaseFinalizing     = "finalizing"
)
