// Package config loads and validates the story engine's runtime
// configuration: database/LLM connection settings, confidence policy,
// input limits, and API token secrets.
package config

import (
	"fmt"
	"time"

	"github.com/loomstep/engine/internal/selection"
)

// Config is the umbrella configuration object returned by Load.
type Config struct {
	DatabaseURL string

	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string

	MappingConfidenceHigh float64
	MappingConfidenceLow  float64

	InputMaxChars int

	NarrationLanguage string

	FallbackGuardDefaultMaxConsecutive int

	AuthorAPIToken         string
	PlayerAPIToken         string
	DefaultUserExternalRef string

	HTTPPort      string
	StoryPacksDir string

	SelectionTimeout time.Duration
	NarrationTimeout time.Duration
	EndingTimeout    time.Duration
}

// Policy returns the confidence policy derived from Config.
func (c *Config) Policy() selection.ConfidencePolicy {
	return selection.ConfidencePolicy{High: c.MappingConfidenceHigh, Low: c.MappingConfidenceLow}
}

// FakeMode reports whether the LLM Boundary should run in deterministic
// fake mode, per spec.md §4.5: real vs fake is decided purely by whether
// an API key is configured.
func (c *Config) FakeMode() bool {
	return c.LLMAPIKey == ""
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{db=%s llm_base=%s llm_model=%s fake_mode=%v}",
		redactDSN(c.DatabaseURL), c.LLMBaseURL, c.LLMModel, c.FakeMode())
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "<redacted>"
}
