package model

import "strings"

// Release represents information extracted from a release event
type Release struct {
	Owner       string // Repository owner
	Repo        string // Repository name
	CommitSHA   string // Commit SHA the release points at
	TagName     string // Release tag name
	ReleaseName string // Release display name
	Prerelease  bool   // True for release candidates etc.
}

// Repository returns the owner/repo full name.
func (r *Release) Repository() string {
	return r.Owner + "/" + r.Repo
}

// Version returns the tag name without a leading "v", which is the version
// string stamped into distribution metadata.
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}
