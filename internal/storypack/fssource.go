package storypack

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FSSource loads Pack definitions from a directory of YAML files named
// "<story_id>-v<version>.yaml", one file per published version. It is the
// simplest Source implementation; a full deployment's authoring/publishing
// system (out of scope per spec.md §1) would swap this for a database- or
// object-storage-backed Source behind the same interface.
type FSSource struct {
	Dir string
}

// NewFSSource returns a Source rooted at dir.
func NewFSSource(dir string) *FSSource {
	return &FSSource{Dir: dir}
}

// LoadPack implements Source.
func (s *FSSource) LoadPack(storyID string, version int) (*Pack, error) {
	path := filepath.Join(s.Dir, fmt.Sprintf("%s-v%d.yaml", storyID, version))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storypack: read %s: %w", path, err)
	}

	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("storypack: parse %s: %w", path, err)
	}
	if pack.StoryID == "" {
		pack.StoryID = storyID
	}
	if pack.Version == 0 {
		pack.Version = version
	}
	return &pack, nil
}
