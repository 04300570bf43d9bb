package llmboundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObjectRejectsNonObjectTop(t *testing.T) {
	_, err := DecodeObject(`[1,2,3]`)
	require.Error(t, err)
}

func TestDecodeObjectRejectsInvalidJSON(t *testing.T) {
	_, err := DecodeObject(`{not json`)
	require.Error(t, err)
}

func TestDecodeObjectAcceptsTopLevelObject(t *testing.T) {
	obj, err := DecodeObject(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
}

func validSelectionMappingObj() map[string]any {
	return map[string]any{
		"decision_code":  "SELECT_CHOICE",
		"target_type":    "choice",
		"target_id":      "c_study",
		"confidence":     0.9,
		"intensity_tier": 1.0,
	}
}

func TestValidateSelectionMappingAcceptsWellFormed(t *testing.T) {
	require.NoError(t, Validate(SchemaSelectionMapping, validSelectionMappingObj()))
}

func TestValidateSelectionMappingRejectsUnknownDecisionCode(t *testing.T) {
	obj := validSelectionMappingObj()
	obj["decision_code"] = "MAGIC"

	err := Validate(SchemaSelectionMapping, obj)

	require.Error(t, err)
}

func TestValidateSelectionMappingRejectsOutOfRangeConfidence(t *testing.T) {
	obj := validSelectionMappingObj()
	obj["confidence"] = 1.5

	require.Error(t, Validate(SchemaSelectionMapping, obj))
}

func TestValidateSelectionMappingRejectsNonIntegerTier(t *testing.T) {
	obj := validSelectionMappingObj()
	obj["intensity_tier"] = 1.5

	require.Error(t, Validate(SchemaSelectionMapping, obj))
}

func TestValidateSelectionMappingRejectsOutOfRangeTier(t *testing.T) {
	obj := validSelectionMappingObj()
	obj["intensity_tier"] = 3.0

	require.Error(t, Validate(SchemaSelectionMapping, obj))
}

func TestValidateSelectionMappingRejectsMismatchedTargetType(t *testing.T) {
	obj := validSelectionMappingObj()
	obj["target_type"] = "banana"

	require.Error(t, Validate(SchemaSelectionMapping, obj))
}

func TestValidateEndingBundleRequiresNarrativeAndReport(t *testing.T) {
	require.Error(t, Validate(SchemaEndingBundle, map[string]any{}))

	require.NoError(t, Validate(SchemaEndingBundle, map[string]any{
		"narrative_text": "it ends",
		"ending_report":  map[string]any{"stats": map[string]any{}},
	}))
}

func TestValidateNarrativeRequiresText(t *testing.T) {
	require.Error(t, Validate(SchemaNarrative, map[string]any{}))
	require.NoError(t, Validate(SchemaNarrative, map[string]any{"text": "hi"}))
}

func TestValidateRejectsUnknownSchema(t *testing.T) {
	require.Error(t, Validate("story_unknown_v9", map[string]any{}))
}
