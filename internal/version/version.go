// Package version exposes the running binary's version, derived from the
// Go toolchain's embedded VCS build info (Go 1.18+), for the health
// endpoint and startup log line.
package version

import "runtime/debug"

// AppName identifies this binary in version strings.
const AppName = "storyengine"

// GitCommit is the short git commit hash (8 chars) from build info, or
// "dev" when unavailable (e.g. go test, non-VCS builds).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "storyengine/<commit>" for logging and the health endpoint.
func Full() string {
	return AppName + "/" + GitCommit
}
