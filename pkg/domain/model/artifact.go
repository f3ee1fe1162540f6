package model

import "strings"

// Artifact represents a single distribution file produced by the build step
type Artifact struct {
	Path   string // Absolute path in the run workspace
	Name   string // File name as uploaded to the index
	Size   int64  // Size in bytes
	SHA256 string // Hex-encoded content digest
}

// FileType returns the index distribution type for the artifact.
func (a *Artifact) FileType() string {
	switch {
	case strings.HasSuffix(a.Name, ".whl"):
		return "bdist_wheel"
	default:
		return "sdist"
	}
}
