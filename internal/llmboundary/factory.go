package llmboundary

// New returns a RealBoundary when apiKey is non-empty, else a Fake,
// mirroring spec.md §4.5: "real vs fake mode is a boundary-local decision
// ... if no API key is configured".
func New(apiKey, baseURL, model string) Boundary {
	if apiKey == "" {
		return NewFake()
	}
	return NewRealBoundary(apiKey, baseURL, model)
}
