package llmboundary

import (
	"encoding/json"
	"fmt"
)

// Schema names the engine recognizes, per spec.md §6's persisted version
// strings.
const (
	SchemaSelectionMapping = "story_selection_mapping_v3"
	SchemaEndingBundle     = "story_ending_bundle_v1"
	SchemaNarrative        = "story_narrative_v1"
)

// DecodeObject parses raw JSON text into a generic top-level object,
// rejecting anything that isn't a JSON object (arrays, scalars, etc).
func DecodeObject(raw string) (map[string]any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("llmboundary: parse response: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("llmboundary: response top-level shape is not an object")
	}
	return obj, nil
}

// Validate checks a decoded structured response against the named schema.
// There is no JSON Schema (Draft 2020-12) validator among the engine's
// dependencies, so validation is hand-rolled typed-field checking; see
// DESIGN.md for why no such library was wired in.
func Validate(schemaName string, obj map[string]any) error {
	switch schemaName {
	case SchemaSelectionMapping:
		return validateSelectionMapping(obj)
	case SchemaEndingBundle:
		return validateEndingBundle(obj)
	case SchemaNarrative:
		return validateNarrative(obj)
	default:
		return fmt.Errorf("llmboundary: unknown schema %q", schemaName)
	}
}

func requireString(obj map[string]any, field string) (string, error) {
	v, ok := obj[field]
	if !ok {
		return "", fmt.Errorf("missing required field %q", field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", field)
	}
	return s, nil
}

func requireNumber(obj map[string]any, field string) (float64, error) {
	v, ok := obj[field]
	if !ok {
		return 0, fmt.Errorf("missing required field %q", field)
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q must be a number", field)
	}
	return n, nil
}

var selectionDecisionCodes = map[string]bool{
	"SELECT_CHOICE":         true,
	"FALLBACK_NO_MATCH":     true,
	"FALLBACK_LOW_CONF":     true,
	"FALLBACK_OFF_TOPIC":    true,
	"FALLBACK_INPUT_POLICY": true,
}

var targetTypes = map[string]bool{"choice": true, "fallback": true}

func validateSelectionMapping(obj map[string]any) error {
	decisionCode, err := requireString(obj, "decision_code")
	if err != nil {
		return fmt.Errorf("%s: %w", SchemaSelectionMapping, err)
	}
	if !selectionDecisionCodes[decisionCode] {
		return fmt.Errorf("%s: decision_code %q is not a recognized code", SchemaSelectionMapping, decisionCode)
	}

	targetType, err := requireString(obj, "target_type")
	if err != nil {
		return fmt.Errorf("%s: %w", SchemaSelectionMapping, err)
	}
	if !targetTypes[targetType] {
		return fmt.Errorf("%s: target_type %q must be choice or fallback", SchemaSelectionMapping, targetType)
	}

	if _, err := requireString(obj, "target_id"); err != nil {
		return fmt.Errorf("%s: %w", SchemaSelectionMapping, err)
	}

	confidence, err := requireNumber(obj, "confidence")
	if err != nil {
		return fmt.Errorf("%s: %w", SchemaSelectionMapping, err)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%s: confidence %v out of [0,1]", SchemaSelectionMapping, confidence)
	}

	tier, err := requireNumber(obj, "intensity_tier")
	if err != nil {
		return fmt.Errorf("%s: %w", SchemaSelectionMapping, err)
	}
	if tier < -2 || tier > 2 || tier != float64(int(tier)) {
		return fmt.Errorf("%s: intensity_tier %v must be an integer in [-2,2]", SchemaSelectionMapping, tier)
	}

	return nil
}

func validateEndingBundle(obj map[string]any) error {
	if _, err := requireString(obj, "narrative_text"); err != nil {
		return fmt.Errorf("%s: %w", SchemaEndingBundle, err)
	}
	if _, ok := obj["ending_report"]; !ok {
		return fmt.Errorf("%s: missing required field %q", SchemaEndingBundle, "ending_report")
	}
	return nil
}

func validateNarrative(obj map[string]any) error {
	if _, err := requireString(obj, "text"); err != nil {
		return fmt.Errorf("%s: %w", SchemaNarrative, err)
	}
	return nil
}
