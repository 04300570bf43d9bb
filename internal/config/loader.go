package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlConfig mirrors the optional subset of Config that authors may pin in
// engine.yaml; everything else (secrets, the database DSN) only ever comes
// from the environment.
type yamlConfig struct {
	Selection *selectionYAML `yaml:"selection"`
	Narration *narrationYAML `yaml:"narration"`
	Fallback  *fallbackYAML  `yaml:"fallback"`
	Timeouts  *timeoutsYAML  `yaml:"timeouts"`
}

type selectionYAML struct {
	ConfidenceHigh *float64 `yaml:"confidence_high"`
	ConfidenceLow  *float64 `yaml:"confidence_low"`
	InputMaxChars  *int     `yaml:"input_max_chars"`
}

type narrationYAML struct {
	Language *string `yaml:"language"`
}

type fallbackYAML struct {
	GuardDefaultMaxConsecutive *int `yaml:"guard_default_max_consecutive"`
}

type timeoutsYAML struct {
	SelectionSeconds *int `yaml:"selection_seconds"`
	NarrationSeconds *int `yaml:"narration_seconds"`
	EndingSeconds    *int `yaml:"ending_seconds"`
}

// builtinDefaults is the fallback yamlConfig merged under anything an
// author's engine.yaml supplies, so a bare install still runs.
func builtinDefaults() yamlConfig {
	high, low := 0.72, 0.45
	inputMax := 2000
	lang := "en"
	maxConsecutive := 3
	sel, narr, end := 8, 30, 30

	return yamlConfig{
		Selection: &selectionYAML{ConfidenceHigh: &high, ConfidenceLow: &low, InputMaxChars: &inputMax},
		Narration: &narrationYAML{Language: &lang},
		Fallback:  &fallbackYAML{GuardDefaultMaxConsecutive: &maxConsecutive},
		Timeouts:  &timeoutsYAML{SelectionSeconds: &sel, NarrationSeconds: &narr, EndingSeconds: &end},
	}
}

// Load reads engine.yaml (if present) from configDir, merges it over the
// built-in defaults with dario.cat/mergo, loads a .env file from configDir
// for local development, then overlays secrets and connection settings
// strictly from the process environment, and finally validates the result.
func Load(configDir string) (*Config, error) {
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	merged := builtinDefaults()

	yamlPath := filepath.Join(configDir, "engine.yaml")
	if raw, err := os.ReadFile(yamlPath); err == nil {
		expanded := ExpandEnv(raw)
		var fromFile yamlConfig
		if err := yaml.Unmarshal(expanded, &fromFile); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
		if err := mergo.Merge(&merged, fromFile, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMBaseURL: envOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:   envOrDefault("LLM_MODEL", "gpt-4o-mini"),

		MappingConfidenceHigh: floatEnvOrDefault("STORY_MAPPING_CONFIDENCE_HIGH", *merged.Selection.ConfidenceHigh),
		MappingConfidenceLow:  floatEnvOrDefault("STORY_MAPPING_CONFIDENCE_LOW", *merged.Selection.ConfidenceLow),
		InputMaxChars:         intEnvOrDefault("STORY_INPUT_MAX_CHARS", *merged.Selection.InputMaxChars),

		NarrationLanguage: envOrDefault("STORY_NARRATION_LANGUAGE", *merged.Narration.Language),

		FallbackGuardDefaultMaxConsecutive: intEnvOrDefault(
			"STORY_FALLBACK_GUARD_DEFAULT_MAX_CONSECUTIVE", *merged.Fallback.GuardDefaultMaxConsecutive),

		AuthorAPIToken:         os.Getenv("AUTHOR_API_TOKEN"),
		PlayerAPIToken:         os.Getenv("PLAYER_API_TOKEN"),
		DefaultUserExternalRef: os.Getenv("DEFAULT_USER_EXTERNAL_REF"),

		HTTPPort:      envOrDefault("HTTP_PORT", "8080"),
		StoryPacksDir: envOrDefault("STORY_PACKS_DIR", "./storypacks"),

		SelectionTimeout: time.Duration(*merged.Timeouts.SelectionSeconds) * time.Second,
		NarrationTimeout: time.Duration(*merged.Timeouts.NarrationSeconds) * time.Second,
		EndingTimeout:    time.Duration(*merged.Timeouts.EndingSeconds) * time.Second,
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatEnvOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func intEnvOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
