package models

// Budgets applied to everything an adapter or the storage adapter emits.
// The hard ceiling is the store's per-record limit; the soft budget bounds
// each activity-style return.
const (
	MaxScrapeRecordBytes  = 8 << 20 // 8 MiB store record ceiling
	SoftPayloadBytes      = 1 << 20 // soft per-return budget
	MaxRequestSnapshotLen = 4000
	MinRawPreviewLen      = 2000
	MaxRawPreviewLen      = 20000

	DefaultMaxRows        = 400
	AggressiveMaxRows     = 100
	AggressiveDescription = 400
)

// ScrapePayload is what a provider adapter returns from a site scrape or a
// detail batch: the fetched fragments, normalized output, discovery, and
// cost accounting. All string fields are pre-trimmed to the size budget.
type ScrapePayload struct {
	SourceURL   string       `json:"sourceUrl"`
	Provider    ProviderKind `json:"provider"`
	StartedAt   int64        `json:"startedAt"` // epoch ms
	CompletedAt int64        `json:"completedAt"`

	Fragments []Fragment   `json:"fragments,omitempty"`
	Rows      []JobRow     `json:"rows,omitempty"`
	Ignored   []IgnoredJob `json:"ignored,omitempty"`

	// Discovery extracted by the site handler from the fragments.
	JobURLs        []string `json:"jobUrls,omitempty"`
	PaginationURLs []string `json:"paginationUrls,omitempty"`

	RequestSnapshot string `json:"requestSnapshot,omitempty"` // trimmed, headers masked
	RawPreview      string `json:"rawPreview,omitempty"`

	CreditsUsed    float64 `json:"creditsUsed,omitempty"`
	CostMicroCents int64   `json:"costMicroCents,omitempty"`

	// Async providers return a queued payload: no rows yet, a provider job
	// id to reconcile on webhook receipt.
	Queued        bool   `json:"queued,omitempty"`
	ProviderJobID string `json:"providerJobId,omitempty"`
}

// ListingResult is the outcome of a greenhouse-listing fetch.
type ListingResult struct {
	RawText     string   `json:"rawText"`
	JobURLs     []string `json:"jobUrls"`
	StartedAt   int64    `json:"startedAt"`
	CompletedAt int64    `json:"completedAt"`
}

// DetailBatchRequest asks an adapter to fetch and normalize a leased batch.
type DetailBatchRequest struct {
	URLs           []string `json:"urls"`
	SourceURL      string   `json:"sourceUrl"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// DetailBatchResult pairs the scrape payload with the count of rows that
// survived normalization.
type DetailBatchResult struct {
	Scrape      ScrapePayload `json:"scrape"`
	JobsScraped int           `json:"jobsScraped"`
}

// ScrapeRecord is the append-only log entry persisted per completed fetch
// cycle. Record size must stay <= 8 MiB; when the untrimmed payload exceeds
// it the record carries Truncated plus a raw preview instead of the body.
type ScrapeRecord struct {
	ID          string       `json:"id,omitempty"`
	SourceURL   string       `json:"sourceUrl"`
	Provider    ProviderKind `json:"provider"`
	StartedAt   int64        `json:"startedAt"`
	CompletedAt int64        `json:"completedAt"`

	RequestSnapshot string   `json:"requestSnapshot,omitempty"`
	RawPreview      string   `json:"rawPreview,omitempty"`
	Rows            []JobRow `json:"rows,omitempty"`
	RowCount        int      `json:"rowCount"`

	CostMicroCents int64 `json:"costMicroCents,omitempty"`
	Truncated      bool  `json:"truncated,omitempty"`
}

// ScrapeError is the append-only parse-failure log entry.
type ScrapeError struct {
	SourceURL string       `json:"sourceUrl"`
	Provider  ProviderKind `json:"provider"`
	Message   string       `json:"message"`
	RawLength int          `json:"rawLength,omitempty"`
	CreatedAt int64        `json:"createdAt,omitempty"`
}

// WorkflowRunRecord is the best-effort telemetry row for one worker run.
// Recording it must never fail the parent work.
type WorkflowRunRecord struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId,omitempty"`
	Kind       string `json:"kind"`
	SiteID     string `json:"siteId,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"startedAt,omitempty"`
	FinishedAt int64  `json:"finishedAt,omitempty"`
}
