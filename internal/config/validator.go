package config

import "fmt"

// Validate performs fail-fast validation of a loaded Config, mirroring the
// order a deployer would want to know about problems: connection settings
// first, then the confidence policy, then input limits.
func Validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}

	if cfg.MappingConfidenceLow < 0 || cfg.MappingConfidenceLow > 1 {
		return fmt.Errorf("config: STORY_MAPPING_CONFIDENCE_LOW must be in [0,1], got %v", cfg.MappingConfidenceLow)
	}
	if cfg.MappingConfidenceHigh < 0 || cfg.MappingConfidenceHigh > 1 {
		return fmt.Errorf("config: STORY_MAPPING_CONFIDENCE_HIGH must be in [0,1], got %v", cfg.MappingConfidenceHigh)
	}
	if cfg.MappingConfidenceLow > cfg.MappingConfidenceHigh {
		return fmt.Errorf("config: STORY_MAPPING_CONFIDENCE_LOW (%v) must be <= STORY_MAPPING_CONFIDENCE_HIGH (%v)",
			cfg.MappingConfidenceLow, cfg.MappingConfidenceHigh)
	}

	if cfg.InputMaxChars <= 0 {
		return fmt.Errorf("config: STORY_INPUT_MAX_CHARS must be positive, got %d", cfg.InputMaxChars)
	}

	if cfg.FallbackGuardDefaultMaxConsecutive <= 0 {
		return fmt.Errorf("config: STORY_FALLBACK_GUARD_DEFAULT_MAX_CONSECUTIVE must be positive, got %d",
			cfg.FallbackGuardDefaultMaxConsecutive)
	}

	if cfg.SelectionTimeout <= 0 || cfg.NarrationTimeout <= 0 || cfg.EndingTimeout <= 0 {
		return fmt.Errorf("config: selection/narration/ending timeouts must all be positive")
	}

	return nil
}
