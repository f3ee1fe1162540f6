package usecase

import (
	"context"
	"encoding/json"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/slipway-ci/slipway/pkg/domain/interfaces"
	"github.com/slipway-ci/slipway/pkg/domain/model"
	"github.com/slipway-ci/slipway/pkg/policy"
	"github.com/slipway-ci/slipway/pkg/utils/async"
)

type webhookUseCase struct {
	store     interfaces.RunStore
	publishUC interfaces.PublishUseCase
	registry  *policy.Registry
}

// NewWebhook creates a new instance of WebhookUseCase
func NewWebhook(store interfaces.RunStore, publishUC interfaces.PublishUseCase, registry *policy.Registry) interfaces.WebhookUseCase {
	return &webhookUseCase{
		store:     store,
		publishUC: publishUC,
		registry:  registry,
	}
}

// ProcessEvent qualifies a webhook event and starts at most one pipeline
// run for it. Redelivered or non-qualifying events return nil so the
// platform gets a 200 and does not retry.
func (uc *webhookUseCase) ProcessEvent(ctx context.Context, event *model.WebhookEvent) error {
	logger := ctxlog.From(ctx)

	logger.Info("Processing webhook event",
		"id", event.ID,
		"type", event.Type,
		"action", event.Action,
		"repository", event.Repository,
		"sender", event.Sender,
		"qualifies", event.Qualifies(),
	)

	if !event.Qualifies() {
		logger.Debug("Ignoring non-qualifying event",
			"type", event.Type,
			"action", event.Action,
		)
		return nil
	}

	rel, err := uc.extractRelease(event)
	if err != nil {
		return err
	}

	// Repository-level policy check runs before anything is fetched.
	// Project and environment are re-checked against the manifest later.
	if _, ok := uc.registry.Lookup(rel.Repository()); !ok {
		logger.Warn("Release from untrusted repository rejected",
			"repository", rel.Repository(),
			"tag", rel.TagName,
		)
		return nil
	}

	claimed, err := uc.store.ClaimDelivery(ctx, event.ID)
	if err != nil {
		return goerr.Wrap(err, "failed to claim webhook delivery", goerr.V("delivery_id", event.ID))
	}
	if !claimed {
		logger.Info("Delivery already claimed, skipping",
			"delivery_id", event.ID,
			"repository", rel.Repository(),
		)
		return nil
	}

	deliveryID := event.ID
	async.Dispatch(ctx, func(ctx context.Context) error {
		_, err := uc.publishUC.Run(ctx, rel, deliveryID)
		return err
	})

	return nil
}

// extractRelease pulls release metadata out of the raw payload.
func (uc *webhookUseCase) extractRelease(event *model.WebhookEvent) (*model.Release, error) {
	var payload github.ReleaseEvent
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal release event", goerr.V("delivery_id", event.ID))
	}

	if payload.GetRepo() == nil || payload.GetRelease() == nil {
		return nil, goerr.New("release event misses repository or release", goerr.V("delivery_id", event.ID))
	}

	rel := &model.Release{
		Owner:       payload.GetRepo().GetOwner().GetLogin(),
		Repo:        payload.GetRepo().GetName(),
		CommitSHA:   payload.GetRelease().GetTargetCommitish(),
		TagName:     payload.GetRelease().GetTagName(),
		ReleaseName: payload.GetRelease().GetName(),
		Prerelease:  payload.GetRelease().GetPrerelease(),
	}

	if rel.Owner == "" || rel.Repo == "" || rel.TagName == "" {
		return nil, goerr.New("release event misses required fields",
			goerr.V("owner", rel.Owner), goerr.V("repo", rel.Repo), goerr.V("tag", rel.TagName))
	}
	if rel.CommitSHA == "" {
		// target_commitish may be empty for tag-only releases; the tag
		// itself is a valid ref for the zipball download.
		rel.CommitSHA = rel.TagName
	}
	return rel, nil
}
