package interfaces

import (
	"context"

	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/manifest"
)

// SourceFetcher defines operations for retrieving release source code
type SourceFetcher interface {
	// DownloadZipball downloads the source code zipball for a specific commit
	DownloadZipball(ctx context.Context, owner, repo, ref string) ([]byte, error)
}

// Toolchain defines the environment provisioner and build step
type Toolchain interface {
	// Workspace creates an isolated working directory for a run
	Workspace(runID string) (string, error)

	// ExtractSource unpacks a source zipball into dir and returns the
	// source root (the archive's single top-level directory)
	ExtractSource(ctx context.Context, zipData []byte, dir string) (string, error)

	// VerifyRuntime checks the pinned interpreter and returns its reported
	// version string
	VerifyRuntime(ctx context.Context, rt manifest.Runtime) (string, error)

	// Build runs the build command in srcDir and collects the artifacts
	// matching the manifest glob
	Build(ctx context.Context, srcDir string, spec manifest.Build) ([]*model.Artifact, error)
}

// TokenIssuer mints run-scoped identity tokens for trusted publishing
type TokenIssuer interface {
	Issue(ctx context.Context, identity *model.RunIdentity) (*model.IdentityToken, error)
}

// IndexClient defines the package index upload protocol
type IndexClient interface {
	// MintUploadToken exchanges an identity token for an upload token
	MintUploadToken(ctx context.Context, indexURL string, token *model.IdentityToken) (*model.UploadToken, error)

	// Upload publishes one artifact. skipExisting treats an already-present
	// file as success.
	Upload(ctx context.Context, indexURL string, token *model.UploadToken, art *model.Artifact, project, version string, skipExisting bool) error
}

// RunStore persists webhook delivery claims and pipeline run records.
// Implementations never store tokens or other credentials.
type RunStore interface {
	// ClaimDelivery records a webhook delivery ID. It returns false when the
	// ID was already claimed, which suppresses a second pipeline run.
	ClaimDelivery(ctx context.Context, deliveryID string) (bool, error)

	// SaveRun inserts or updates a run record
	SaveRun(ctx context.Context, run *model.PipelineRun) error

	// GetRun returns a run by ID
	GetRun(ctx context.Context, id string) (*model.PipelineRun, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*model.PipelineRun, error)
}
