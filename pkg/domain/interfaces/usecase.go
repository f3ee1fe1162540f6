package interfaces

import (
	"context"

	"github.com/slipway-ci/slipway/pkg/domain/model"
)

// WebhookUseCase defines the interface for webhook event processing
type WebhookUseCase interface {
	// ProcessEvent qualifies a webhook event and, for a qualifying release,
	// claims its delivery and dispatches a pipeline run.
	ProcessEvent(ctx context.Context, event *model.WebhookEvent) error
}

// PublishUseCase defines the publishing pipeline for one release
type PublishUseCase interface {
	// Run executes checkout, provision, build and publish for the release.
	// It always returns the run record, also when a step failed.
	Run(ctx context.Context, rel *model.Release, deliveryID string) (*model.PipelineRun, error)
}
