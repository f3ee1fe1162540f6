package model

import "time"

// WebhookEventType represents the type of webhook event received
type WebhookEventType string

const (
	EventTypeRelease WebhookEventType = "release"
	EventTypePing    WebhookEventType = "ping"
	EventTypeUnknown WebhookEventType = "unknown"
)

// WebhookEvent represents a webhook event received from GitHub
type WebhookEvent struct {
	ID         string           // Retrieved from X-GitHub-Delivery header
	Type       WebhookEventType // Retrieved from X-GitHub-Event header
	Action     string           // Event action (e.g. published, created)
	Repository string           // Repository full name (owner/repo)
	Sender     string           // Sender username
	ReceivedAt time.Time        // Time when the event was received
	RawPayload []byte           // Raw JSON payload
}

// Qualifies reports whether the event starts a pipeline run. Only the
// "published" action counts; GitHub delivers pre-releases with the same
// action and a prerelease flag in the payload, so they qualify too.
func (e *WebhookEvent) Qualifies() bool {
	return e.Type == EventTypeRelease && e.Action == "published"
}
