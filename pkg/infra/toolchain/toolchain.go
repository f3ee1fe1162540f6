package toolchain

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

// Toolchain provisions run environments and executes build commands. Every
// run gets its own 0700 workspace, removed by the caller when the run ends.
type Toolchain struct{}

// New creates a Toolchain.
func New() *Toolchain {
	return &Toolchain{}
}

// Workspace creates an isolated working directory for a run.
func (t *Toolchain) Workspace(runID string) (string, error) {
	dir, err := os.MkdirTemp("", "slipway-run-"+runID+"-*")
	if err != nil {
		return "", goerr.Wrap(err, "failed to create run workspace", goerr.V("run_id", runID))
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return "", goerr.Wrap(err, "failed to restrict workspace permissions", goerr.V("dir", dir))
	}
	return dir, nil
}

// ExtractSource unpacks a source zipball into dir and returns the source
// root. GitHub zipballs wrap everything in a single "<repo>-<sha>/" prefix.
func (t *Toolchain) ExtractSource(ctx context.Context, zipData []byte, dir string) (string, error) {
	logger := ctxlog.From(ctx)

	zipReader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open source zipball")
	}

	roots := map[string]struct{}{}
	var totalSize int64
	for _, file := range zipReader.File {
		if err := t.extractFile(file, dir); err != nil {
			return "", goerr.Wrap(err, "failed to extract file", goerr.V("file", file.Name))
		}
		totalSize += int64(file.UncompressedSize64)
		if top, _, ok := strings.Cut(file.Name, "/"); ok && top != "" {
			roots[top] = struct{}{}
		}
	}

	if len(roots) != 1 {
		return "", goerr.New("source zipball has no single top-level directory",
			goerr.V("roots", len(roots)))
	}
	var root string
	for top := range roots {
		root = filepath.Join(dir, top)
	}

	logger.Debug("Extracted source zipball",
		"dir", dir,
		"source_root", root,
		"file_count", len(zipReader.File),
		"total_size_bytes", totalSize,
	)
	return root, nil
}

// extractFile extracts a single file from the zipball into destDir.
func (t *Toolchain) extractFile(file *zip.File, destDir string) error {
	// Path traversal guard
	destPath := filepath.Join(destDir, file.Name)
	if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return goerr.New("invalid file path in zipball", goerr.V("file", file.Name))
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(destPath, file.FileInfo().Mode())
	}

	rc, err := file.Open()
	if err != nil {
		return goerr.Wrap(err, "failed to open file in zipball")
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create parent directories")
	}

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, file.FileInfo().Mode())
	if err != nil {
		return goerr.Wrap(err, "failed to create destination file")
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, rc); err != nil {
		return goerr.Wrap(err, "failed to copy file content")
	}
	return nil
}

// VerifyRuntime runs `<command> --version` and requires the pinned version
// to appear as a prefix of the reported version. A mismatch fails the run
// before the build step executes.
func (t *Toolchain) VerifyRuntime(ctx context.Context, rt manifest.Runtime) (string, error) {
	out, err := exec.CommandContext(ctx, rt.Command, "--version").CombinedOutput()
	if err != nil {
		return "", goerr.Wrap(err, "runtime is not available",
			goerr.V("command", rt.Command), goerr.V("output", string(out)))
	}

	reported := strings.TrimSpace(string(out))
	version := reported
	// "Python 3.11.9" -> "3.11.9"
	if fields := strings.Fields(reported); len(fields) > 1 {
		version = fields[len(fields)-1]
	}

	if version != rt.Version && !strings.HasPrefix(version, rt.Version+".") {
		return "", goerr.New("runtime version does not match pin",
			goerr.V("command", rt.Command),
			goerr.V("pinned", rt.Version),
			goerr.V("reported", version))
	}
	return version, nil
}

// Build runs the build command in srcDir and collects the artifacts
// matching the manifest glob. Zero artifacts is a build failure.
func (t *Toolchain) Build(ctx context.Context, srcDir string, spec manifest.Build) ([]*model.Artifact, error) {
	logger := ctxlog.From(ctx)

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = srcDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, goerr.Wrap(err, "build command failed",
			goerr.V("command", spec.Command),
			goerr.V("output", tail(string(out), 4096)))
	}

	logger.Debug("Build command completed",
		"command", spec.Command,
		"output_bytes", len(out),
	)

	paths, err := filepath.Glob(filepath.Join(srcDir, spec.Artifacts))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid artifact glob", goerr.V("glob", spec.Artifacts))
	}
	sort.Strings(paths)

	var artifacts []*model.Artifact
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to stat artifact", goerr.V("path", path))
		}
		if info.IsDir() {
			continue
		}
		digest, err := digestFile(path)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &model.Artifact{
			Path:   path,
			Name:   filepath.Base(path),
			Size:   info.Size(),
			SHA256: digest,
		})
	}

	if len(artifacts) == 0 {
		return nil, goerr.New("build produced no artifacts", goerr.V("glob", spec.Artifacts))
	}
	return artifacts, nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to open artifact", goerr.V("path", path))
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", goerr.Wrap(err, "failed to digest artifact", goerr.V("path", path))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
