package models

// WebhookStatus is the state machine of an async batch callback row:
// pending -> processed | error | cancelled_expired.
type WebhookStatus string

const (
	WebhookStatusPending          WebhookStatus = "pending"
	WebhookStatusProcessed        WebhookStatus = "processed"
	WebhookStatusError            WebhookStatus = "error"
	WebhookStatusCancelledExpired WebhookStatus = "cancelled_expired"
)

// Terminal reports whether the webhook row admits no further transitions.
func (s WebhookStatus) Terminal() bool {
	return s == WebhookStatusProcessed || s == WebhookStatusError || s == WebhookStatusCancelledExpired
}

// WebhookMetadata is the block attached to an outbound batch dispatch and
// echoed back by the provider. Values must serialise as strings upstream.
type WebhookMetadata struct {
	SiteID  string `json:"siteId,omitempty"`
	SiteURL string `json:"siteUrl,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// WebhookEventRow correlates an asynchronous provider callback to the batch
// that dispatched it. Each provider job id has at most one pending
// placeholder, inserted at dispatch time.
type WebhookEventRow struct {
	ID          string          `json:"id,omitempty"`
	JobID       string          `json:"jobId"` // provider batch job id
	EventKind   string          `json:"eventKind,omitempty"`
	Status      WebhookStatus   `json:"status"`
	Metadata    WebhookMetadata `json:"metadata"`
	ReceivedAt  int64           `json:"receivedAt,omitempty"` // epoch ms
	ProcessedAt int64           `json:"processedAt,omitempty"`
	ResultHash  string          `json:"resultHash,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
}

// Webhook event kinds as delivered by the batch provider.
const (
	WebhookEventCompleted      = "completed"
	WebhookEventFailed         = "failed"
	WebhookEventBatchStarted   = "batch_scrape.started"
	WebhookEventBatchPage      = "batch_scrape.page"
	WebhookEventBatchCompleted = "batch_scrape.completed"
	WebhookEventBatchFailed    = "batch_scrape.failed"
)

// TerminalWebhookEvent reports whether the provider event kind ends a batch.
func TerminalWebhookEvent(kind string) bool {
	switch kind {
	case WebhookEventCompleted, WebhookEventFailed,
		WebhookEventBatchCompleted, WebhookEventBatchFailed:
		return true
	}
	return false
}
