package selection

import "strings"

// injectionMarkers are the heuristic substrings resolve_free_input scans
// normalized input for, per spec.md §4.3.
var injectionMarkers = []string{
	"ignore previous",
	"ignore the above",
	"disregard previous",
	"<script",
	"```system",
	"you are now",
	"system prompt",
}

// NormalizeInput lowercases, trims, and length-clamps player_input to
// maxChars, per spec.md §4.3's resolve_free_input.
func NormalizeInput(raw string, maxChars int) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if maxChars > 0 && len(normalized) > maxChars {
		normalized = normalized[:maxChars]
	}
	return normalized
}

// DetectInputPolicyFlag scans normalized input for prompt-injection
// markers.
func DetectInputPolicyFlag(normalized string) bool {
	for _, marker := range injectionMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
