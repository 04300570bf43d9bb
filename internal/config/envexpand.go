package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in YAML content using Go's
// standard shell-style expansion. Missing variables expand to empty string;
// Validate catches required fields left empty by that.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
