package llmboundary

// SelectionPromptContext is the JSON payload the Selection Resolver sends
// as the `user` message for a map_free_input_v3 call. Both RealBoundary
// (which forwards it as chat content) and Fake (which parses it back out
// to synthesize a deterministic decision) share this shape.
type SelectionPromptContext struct {
	SceneBrief         string           `json:"scene_brief"`
	NormalizedInput    string           `json:"normalized_input"`
	VisibleChoices     []string         `json:"visible_choices"`
	AvailableFallbacks []FallbackOption `json:"available_fallbacks"`
	InputPolicyFlag    bool             `json:"input_policy_flag"`
	ConfidenceHigh     float64          `json:"confidence_high"`
	ConfidenceLow      float64          `json:"confidence_low"`
	RetryContext       *RetryContext    `json:"retry_context,omitempty"`
}

// FallbackOption is one entry of available_fallbacks in a selection prompt.
type FallbackOption struct {
	ID         string `json:"id"`
	ReasonCode string `json:"reason_code"`
}

// RetryContext carries advisory retry state on selection attempts >= 2,
// per spec.md §4.3 step 1; models may ignore it (spec.md §9's Open
// Question on advisory retry context).
type RetryContext struct {
	PreviousErrorCode string   `json:"previous_error_code"`
	AllowedTargetIDs  []string `json:"allowed_target_ids"`
}

// EndingBundlePromptContext is the `user` payload for a bundle-style
// ending's schema channel call.
type EndingBundlePromptContext struct {
	NodeID    string         `json:"node_id"`
	EndingID  string         `json:"ending_id"`
	Outcome   string         `json:"outcome"`
	Camp      string         `json:"camp"`
	StepIndex int            `json:"step_index"`
	Stats     map[string]int `json:"stats"`
}
