package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/slipway-ci/slipway/pkg/policy"
)

const registryTOML = `
[[publisher]]
repository  = "acme/demo"
project     = "demo"
environment = "release"

[[publisher]]
repository = "acme/tools"
project    = "acme-tools"
`

func loadRegistry(t *testing.T) *policy.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "publishers.toml")
	gt.NoError(t, os.WriteFile(path, []byte(registryTOML), 0o644))

	reg, err := policy.LoadRegistry(path)
	gt.NoError(t, err)
	return reg
}

func TestRegistry_Lookup(t *testing.T) {
	reg := loadRegistry(t)

	pub, ok := reg.Lookup("acme/demo")
	gt.Value(t, ok).Equal(true)
	gt.Value(t, pub.Project).Equal("demo")

	// Repository names are case-insensitive, as on the hosting platform
	_, ok = reg.Lookup("Acme/Demo")
	gt.Value(t, ok).Equal(true)

	_, ok = reg.Lookup("acme/unknown")
	gt.Value(t, ok).Equal(false)
}

func TestRegistry_Authorize(t *testing.T) {
	reg := loadRegistry(t)

	tests := []struct {
		name        string
		repository  string
		project     string
		environment string
		wantErr     bool
	}{
		{
			name:        "matching entry",
			repository:  "acme/demo",
			project:     "demo",
			environment: "release",
			wantErr:     false,
		},
		{
			name:        "wrong project",
			repository:  "acme/demo",
			project:     "other",
			environment: "release",
			wantErr:     true,
		},
		{
			name:        "wrong environment",
			repository:  "acme/demo",
			project:     "demo",
			environment: "staging",
			wantErr:     true,
		},
		{
			name:        "entry without environment accepts any",
			repository:  "acme/tools",
			project:     "acme-tools",
			environment: "whatever",
			wantErr:     false,
		},
		{
			name:       "unknown repository",
			repository: "evil/repo",
			project:    "demo",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Authorize(tt.repository, tt.project, tt.environment)
			if tt.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestLoadRegistry_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "broken.toml")
	gt.NoError(t, os.WriteFile(path, []byte(`[[publisher]]`+"\n"+`repository = ""`), 0o644))
	_, err := policy.LoadRegistry(path)
	gt.Error(t, err)

	_, err = policy.LoadRegistry(filepath.Join(dir, "missing.toml"))
	gt.Error(t, err)
}
