package manifest

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

// hclManifest is the top-level structure of a manifest file for decoding.
type hclManifest struct {
	Pipeline *hclPipeline `hcl:"pipeline,block"`
	Runtime  *hclRuntime  `hcl:"runtime,block"`
	Build    *hclBuild    `hcl:"build,block"`
	Publish  *hclPublish  `hcl:"publish,block"`
}

type hclPipeline struct {
	Name string `hcl:"name,label"`
}

type hclRuntime struct {
	Command string `hcl:"command"`
	Version string `hcl:"version"`
}

type hclBuild struct {
	Command   []string `hcl:"command"`
	Artifacts *string  `hcl:"artifacts,optional"`
}

type hclPublish struct {
	IndexURL     *string `hcl:"index_url,optional"`
	Environment  string  `hcl:"environment"`
	SkipExisting *bool   `hcl:"skip_existing,optional"`
}

// Load parses a manifest file. Manifest expressions may reference the
// triggering release through the `release` variable, e.g.
// `artifacts = "dist/pkg-${release.version}*"`. A nil release leaves the
// variable bound to placeholder values so `slipway validate` can check a
// manifest outside any run.
func Load(path string, rel *model.Release) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read manifest", goerr.V("path", path))
	}
	return Parse(path, data, rel)
}

// Parse decodes manifest source. The path is used for diagnostics only.
func Parse(path string, src []byte, rel *model.Release) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, goerr.Wrap(diags, "failed to parse manifest", goerr.V("path", path))
	}

	var parsed hclManifest
	if diags := gohcl.DecodeBody(file.Body, evalContext(rel), &parsed); diags.HasErrors() {
		return nil, goerr.Wrap(diags, "failed to decode manifest", goerr.V("path", path))
	}

	if parsed.Pipeline == nil {
		return nil, goerr.New("manifest: missing pipeline block", goerr.V("path", path))
	}
	if parsed.Runtime == nil {
		return nil, goerr.New("manifest: missing runtime block", goerr.V("path", path))
	}
	if parsed.Build == nil {
		return nil, goerr.New("manifest: missing build block", goerr.V("path", path))
	}
	if parsed.Publish == nil {
		return nil, goerr.New("manifest: missing publish block", goerr.V("path", path))
	}

	m := &Manifest{
		Project: parsed.Pipeline.Name,
		Runtime: Runtime{
			Command: parsed.Runtime.Command,
			Version: parsed.Runtime.Version,
		},
		Build: Build{
			Command: parsed.Build.Command,
		},
		Publish: Publish{
			Environment: parsed.Publish.Environment,
		},
	}
	if parsed.Build.Artifacts != nil {
		m.Build.Artifacts = *parsed.Build.Artifacts
	}
	if parsed.Publish.IndexURL != nil {
		m.Publish.IndexURL = *parsed.Publish.IndexURL
	}
	if parsed.Publish.SkipExisting != nil {
		m.Publish.SkipExisting = *parsed.Publish.SkipExisting
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// evalContext exposes release metadata to manifest expressions.
func evalContext(rel *model.Release) *hcl.EvalContext {
	tag, version, repo := "v0.0.0", "0.0.0", "example/example"
	prerelease := false
	if rel != nil {
		tag = rel.TagName
		version = rel.Version()
		repo = rel.Repository()
		prerelease = rel.Prerelease
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"release": cty.ObjectVal(map[string]cty.Value{
				"tag":        cty.StringVal(tag),
				"version":    cty.StringVal(version),
				"repository": cty.StringVal(repo),
				"prerelease": cty.BoolVal(prerelease),
			}),
		},
	}
}
