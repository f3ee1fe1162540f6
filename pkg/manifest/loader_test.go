package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

const validManifest = `
pipeline "demo" {}

runtime {
  command = "python3"
  version = "3.11"
}

build {
  command = ["python3", "-m", "build"]
}

publish {
  environment = "release"
}
`

func TestParse_Defaults(t *testing.T) {
	m, err := manifest.Parse("slipway.hcl", []byte(validManifest), nil)
	gt.NoError(t, err)

	gt.Value(t, m.Project).Equal("demo")
	gt.Value(t, m.Runtime.Command).Equal("python3")
	gt.Value(t, m.Runtime.Version).Equal("3.11")
	gt.Value(t, m.Build.Command).Equal([]string{"python3", "-m", "build"})
	gt.Value(t, m.Build.Artifacts).Equal("dist/*")
	gt.Value(t, m.Publish.IndexURL).Equal("https://upload.pypi.org/legacy/")
	gt.Value(t, m.Publish.Environment).Equal("release")
	gt.Value(t, m.Publish.SkipExisting).Equal(false)
}

func TestParse_ReleaseVariables(t *testing.T) {
	src := `
pipeline "demo" {}

runtime {
  command = "python3"
  version = "3.11"
}

build {
  command   = ["python3", "-m", "build"]
  artifacts = "dist/demo-${release.version}*"
}

publish {
  index_url     = "https://index.example.com/legacy/"
  environment   = "release"
  skip_existing = true
}
`
	rel := &model.Release{Owner: "acme", Repo: "demo", TagName: "v1.2.3"}

	m, err := manifest.Parse("slipway.hcl", []byte(src), rel)
	gt.NoError(t, err)

	gt.Value(t, m.Build.Artifacts).Equal("dist/demo-1.2.3*")
	gt.Value(t, m.Publish.IndexURL).Equal("https://index.example.com/legacy/")
	gt.Value(t, m.Publish.SkipExisting).Equal(true)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "missing pipeline block",
			src: `
runtime {
  command = "python3"
  version = "3.11"
}
build {
  command = ["python3", "-m", "build"]
}
publish {
  environment = "release"
}
`,
		},
		{
			name: "missing runtime block",
			src: `
pipeline "demo" {}
build {
  command = ["python3", "-m", "build"]
}
publish {
  environment = "release"
}
`,
		},
		{
			name: "empty build command",
			src: `
pipeline "demo" {}
runtime {
  command = "python3"
  version = "3.11"
}
build {
  command = []
}
publish {
  environment = "release"
}
`,
		},
		{
			name: "missing environment attribute",
			src: `
pipeline "demo" {}
runtime {
  command = "python3"
  version = "3.11"
}
build {
  command = ["python3", "-m", "build"]
}
publish {}
`,
		},
		{
			name: "not HCL at all",
			src:  `{"pipeline": "demo"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Parse("slipway.hcl", []byte(tt.src), nil)
			gt.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slipway.hcl")
	gt.NoError(t, os.WriteFile(path, []byte(validManifest), 0o644))

	m, err := manifest.Load(path, nil)
	gt.NoError(t, err)
	gt.Value(t, m.Project).Equal("demo")

	_, err = manifest.Load(filepath.Join(dir, "missing.hcl"), nil)
	gt.Error(t, err)
}
