package toolchain_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/slipway-ci/slipway/pkg/infra/toolchain"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

func createZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		gt.NoError(t, err)
		_, err = f.Write([]byte(content))
		gt.NoError(t, err)
	}
	gt.NoError(t, w.Close())
	return buf.Bytes()
}

func TestToolchain_ExtractSource(t *testing.T) {
	ctx := context.Background()
	tc := toolchain.New()

	zipData := createZip(t, map[string]string{
		"demo-abc123/README.md":    "# Demo",
		"demo-abc123/pyproject.toml": "[project]\nname = \"demo\"\n",
		"demo-abc123/src/demo.py":  "print('hi')\n",
	})

	dir := t.TempDir()
	root, err := tc.ExtractSource(ctx, zipData, dir)
	gt.NoError(t, err)
	gt.Value(t, root).Equal(filepath.Join(dir, "demo-abc123"))

	content, err := os.ReadFile(filepath.Join(root, "README.md"))
	gt.NoError(t, err)
	gt.String(t, string(content)).Contains("Demo")

	_, err = os.Stat(filepath.Join(root, "src", "demo.py"))
	gt.NoError(t, err)
}

func TestToolchain_ExtractSource_Invalid(t *testing.T) {
	ctx := context.Background()
	tc := toolchain.New()

	t.Run("not a zip", func(t *testing.T) {
		_, err := tc.ExtractSource(ctx, []byte("not zip data"), t.TempDir())
		gt.Error(t, err)
	})

	t.Run("path traversal", func(t *testing.T) {
		zipData := createZip(t, map[string]string{
			"demo-abc/../../evil.txt": "pwned",
		})
		_, err := tc.ExtractSource(ctx, zipData, t.TempDir())
		gt.Error(t, err)
	})

	t.Run("multiple top-level directories", func(t *testing.T) {
		zipData := createZip(t, map[string]string{
			"one/a.txt": "a",
			"two/b.txt": "b",
		})
		_, err := tc.ExtractSource(ctx, zipData, t.TempDir())
		gt.Error(t, err)
	})
}

// fakeRuntime writes an executable that reports the given version string.
func fakeRuntime(t *testing.T, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script runtime stub is not available on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-python")
	script := "#!/bin/sh\necho \"Python " + version + "\"\n"
	gt.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestToolchain_VerifyRuntime(t *testing.T) {
	ctx := context.Background()
	tc := toolchain.New()

	t.Run("pin matches", func(t *testing.T) {
		cmd := fakeRuntime(t, "3.11.9")
		version, err := tc.VerifyRuntime(ctx, manifest.Runtime{Command: cmd, Version: "3.11"})
		gt.NoError(t, err)
		gt.Value(t, version).Equal("3.11.9")
	})

	t.Run("pin mismatch", func(t *testing.T) {
		cmd := fakeRuntime(t, "3.10.2")
		_, err := tc.VerifyRuntime(ctx, manifest.Runtime{Command: cmd, Version: "3.11"})
		gt.Error(t, err)
	})

	t.Run("missing runtime", func(t *testing.T) {
		_, err := tc.VerifyRuntime(ctx, manifest.Runtime{Command: "/no/such/interpreter", Version: "3.11"})
		gt.Error(t, err)
	})
}

func TestToolchain_Build(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("build commands use sh")
	}

	ctx := context.Background()
	tc := toolchain.New()

	t.Run("build produces artifacts", func(t *testing.T) {
		srcDir := t.TempDir()
		spec := manifest.Build{
			Command:   []string{"sh", "-c", "mkdir -p dist && printf sdist > dist/demo-1.0.0.tar.gz && printf wheel > dist/demo-1.0.0-py3-none-any.whl"},
			Artifacts: "dist/*",
		}

		artifacts, err := tc.Build(ctx, srcDir, spec)
		gt.NoError(t, err)
		gt.Number(t, len(artifacts)).Equal(2)

		gt.Value(t, artifacts[0].Name).Equal("demo-1.0.0-py3-none-any.whl")
		gt.Value(t, artifacts[0].FileType()).Equal("bdist_wheel")
		gt.Value(t, artifacts[1].Name).Equal("demo-1.0.0.tar.gz")
		gt.Value(t, artifacts[1].FileType()).Equal("sdist")

		for _, art := range artifacts {
			gt.Number(t, art.Size).Greater(int64(0))
			gt.Number(t, len(art.SHA256)).Equal(64)
		}
	})

	t.Run("failing command", func(t *testing.T) {
		spec := manifest.Build{
			Command:   []string{"sh", "-c", "echo broken >&2; exit 1"},
			Artifacts: "dist/*",
		}
		_, err := tc.Build(ctx, t.TempDir(), spec)
		gt.Error(t, err)
		gt.String(t, err.Error()).Contains("build command failed")
	})

	t.Run("no artifacts", func(t *testing.T) {
		spec := manifest.Build{
			Command:   []string{"true"},
			Artifacts: "dist/*",
		}
		_, err := tc.Build(ctx, t.TempDir(), spec)
		gt.Error(t, err)
		gt.String(t, err.Error()).Contains("no artifacts")
	})
}

func TestToolchain_Workspace(t *testing.T) {
	tc := toolchain.New()

	dir, err := tc.Workspace("run-1")
	gt.NoError(t, err)
	defer os.RemoveAll(dir)

	info, err := os.Stat(dir)
	gt.NoError(t, err)
	if runtime.GOOS != "windows" {
		gt.Value(t, info.Mode().Perm()).Equal(os.FileMode(0o700))
	}
}
