package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvSubstitutesBracedAndBareVars(t *testing.T) {
	t.Setenv("STORY_ENGINE_TEST_VAR", "value123")

	out := ExpandEnv([]byte("db: ${STORY_ENGINE_TEST_VAR}\nalt: $STORY_ENGINE_TEST_VAR\n"))

	assert.Equal(t, "db: value123\nalt: value123\n", string(out))
}

func TestExpandEnvMissingVarBecomesEmpty(t *testing.T) {
	os.Unsetenv("STORY_ENGINE_TEST_MISSING")

	out := ExpandEnv([]byte("x: ${STORY_ENGINE_TEST_MISSING}"))

	assert.Equal(t, "x: ", string(out))
}
