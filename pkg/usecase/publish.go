package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/interfaces"
	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/domain/types"
	"github.com/slipway-ci/slipway/pkg/manifest"
	"github.com/slipway-ci/slipway/pkg/policy"
)

type publishUseCase struct {
	source    interfaces.SourceFetcher
	toolchain interfaces.Toolchain
	issuer    interfaces.TokenIssuer
	index     interfaces.IndexClient
	store     interfaces.RunStore
	registry  *policy.Registry
}

// NewPublish creates a new instance of PublishUseCase
func NewPublish(
	source interfaces.SourceFetcher,
	toolchain interfaces.Toolchain,
	issuer interfaces.TokenIssuer,
	index interfaces.IndexClient,
	store interfaces.RunStore,
	registry *policy.Registry,
) interfaces.PublishUseCase {
	return &publishUseCase{
		source:    source,
		toolchain: toolchain,
		issuer:    issuer,
		index:     index,
		store:     store,
		registry:  registry,
	}
}

// Run executes the publishing pipeline for one release: checkout source at
// the release commit, provision the pinned runtime, build distribution
// artifacts, publish them with a run-scoped token. Steps run strictly in
// that order and any failure aborts the remaining sequence.
func (uc *publishUseCase) Run(ctx context.Context, rel *model.Release, deliveryID string) (*model.PipelineRun, error) {
	logger := ctxlog.From(ctx)

	run := &model.PipelineRun{
		ID:         uuid.New().String(),
		DeliveryID: deliveryID,
		Repository: rel.Repository(),
		TagName:    rel.TagName,
		Prerelease: rel.Prerelease,
		CommitSHA:  rel.CommitSHA,
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	logger = logger.With("run_id", run.ID, "repository", run.Repository, "tag", run.TagName)
	ctx = ctxlog.With(ctx, logger)

	if err := uc.store.SaveRun(ctx, run); err != nil {
		return run, err
	}

	err := uc.execute(ctx, run, rel)
	if err == nil {
		run.Complete()
		logger.Info("Release published",
			"project", run.Project,
			"prerelease", run.Prerelease,
			"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		)
	} else {
		logger.Error("Pipeline run failed", "error", err)
	}

	if saveErr := uc.store.SaveRun(ctx, run); saveErr != nil {
		logger.Error("Failed to save run record", "error", saveErr)
		if err == nil {
			err = saveErr
		}
	}
	return run, err
}

func (uc *publishUseCase) execute(ctx context.Context, run *model.PipelineRun, rel *model.Release) error {
	logger := ctxlog.From(ctx)

	workdir, err := uc.toolchain.Workspace(run.ID)
	if err != nil {
		idx := run.BeginStep(model.StepCheckout)
		run.EndStep(idx, "", err)
		return err
	}
	defer func() {
		if removeErr := os.RemoveAll(workdir); removeErr != nil {
			logger.Warn("Failed to clean up run workspace",
				"workdir", workdir,
				"error", removeErr,
			)
		}
	}()

	// Checkout
	step := run.BeginStep(model.StepCheckout)
	srcRoot, err := uc.checkout(ctx, rel, workdir)
	if err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.EndStep(step, srcRoot, nil)

	// The manifest lives in the published repository, like the workflow
	// file it replaces. Loading it and checking the publisher policy is
	// recorded as its own step so run history tells a bad manifest apart
	// from a provisioning failure.
	step = run.BeginStep(model.StepManifest)
	m, err := manifest.Load(filepath.Join(srcRoot, types.DefaultManifestName), rel)
	if err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.Project = m.Project

	if err := uc.registry.Authorize(rel.Repository(), m.Project, m.Publish.Environment); err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.EndStep(step, m.Project, nil)

	// Provision
	step = run.BeginStep(model.StepProvision)
	version, err := uc.toolchain.VerifyRuntime(ctx, m.Runtime)
	if err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.EndStep(step, fmt.Sprintf("%s %s", m.Runtime.Command, version), nil)

	// Build
	step = run.BeginStep(model.StepBuild)
	artifacts, err := uc.toolchain.Build(ctx, srcRoot, m.Build)
	if err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.EndStep(step, fmt.Sprintf("%d artifacts", len(artifacts)), nil)

	// Publish
	step = run.BeginStep(model.StepPublish)
	if err := uc.publish(ctx, run, rel, m, artifacts); err != nil {
		run.EndStep(step, "", err)
		return err
	}
	run.EndStep(step, m.Publish.IndexURL, nil)

	return nil
}

func (uc *publishUseCase) checkout(ctx context.Context, rel *model.Release, workdir string) (string, error) {
	logger := ctxlog.From(ctx)

	zipData, err := uc.source.DownloadZipball(ctx, rel.Owner, rel.Repo, rel.CommitSHA)
	if err != nil {
		return "", goerr.Wrap(err, "failed to download release source",
			goerr.V("repository", rel.Repository()), goerr.V("ref", rel.CommitSHA))
	}

	logger.Debug("Downloaded release source",
		"size_bytes", len(zipData),
		"ref", rel.CommitSHA,
	)

	srcRoot, err := uc.toolchain.ExtractSource(ctx, zipData, workdir)
	if err != nil {
		return "", goerr.Wrap(err, "failed to extract release source",
			goerr.V("repository", rel.Repository()))
	}
	return srcRoot, nil
}

// publish mints the run's single identity token, exchanges it for an
// upload token and uploads every artifact. Both tokens stay in memory for
// the duration of this call.
func (uc *publishUseCase) publish(ctx context.Context, run *model.PipelineRun, rel *model.Release, m *manifest.Manifest, artifacts []*model.Artifact) error {
	logger := ctxlog.From(ctx)

	identity, err := uc.issuer.Issue(ctx, &model.RunIdentity{
		RunID:       run.ID,
		Repository:  rel.Repository(),
		Project:     m.Project,
		Environment: m.Publish.Environment,
		Audience:    m.Publish.IndexURL,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to issue identity token")
	}

	uploadToken, err := uc.index.MintUploadToken(ctx, m.Publish.IndexURL, identity)
	if err != nil {
		return goerr.Wrap(err, "failed to exchange identity token")
	}

	logger.Info("Publishing artifacts",
		"project", m.Project,
		"version", rel.Version(),
		"environment", m.Publish.Environment,
		"artifact_count", len(artifacts),
	)

	for _, art := range artifacts {
		if err := uc.index.Upload(ctx, m.Publish.IndexURL, uploadToken, art, m.Project, rel.Version(), m.Publish.SkipExisting); err != nil {
			return goerr.Wrap(err, "failed to upload artifact", goerr.V("file", art.Name))
		}
	}
	return nil
}
