package manifest

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/types"
)

// Manifest is the declarative pipeline definition loaded from a slipway.hcl
// file in the root of the published repository.
type Manifest struct {
	Project string
	Runtime Runtime
	Build   Build
	Publish Publish
}

// Runtime pins the interpreter the build runs under.
type Runtime struct {
	Command string // Interpreter command, e.g. "python3.11"
	Version string // Required version prefix, e.g. "3.11"
}

// Build declares the command producing distribution artifacts.
type Build struct {
	Command   []string // Build argv, e.g. ["python3", "-m", "build"]
	Artifacts string   // Glob relative to the source root, default "dist/*"
}

// Publish declares the upload target.
type Publish struct {
	IndexURL     string // Upload endpoint, defaults to types.DefaultIndexURL
	Environment  string // Deployment environment name, e.g. "release"
	SkipExisting bool   // Treat an already-uploaded file as success
}

// Validate checks the manifest for fields the loader cannot default.
func (m *Manifest) Validate() error {
	if m.Project == "" {
		return goerr.New("manifest: pipeline block requires a project name")
	}
	if m.Runtime.Command == "" {
		return goerr.New("manifest: runtime block requires a command", goerr.V("project", m.Project))
	}
	if m.Runtime.Version == "" {
		return goerr.New("manifest: runtime block requires a version", goerr.V("project", m.Project))
	}
	if len(m.Build.Command) == 0 {
		return goerr.New("manifest: build block requires a command", goerr.V("project", m.Project))
	}
	if m.Publish.Environment == "" {
		return goerr.New("manifest: publish block requires an environment", goerr.V("project", m.Project))
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	if m.Build.Artifacts == "" {
		m.Build.Artifacts = "dist/*"
	}
	if m.Publish.IndexURL == "" {
		m.Publish.IndexURL = types.DefaultIndexURL
	}
}
