package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// SiteStore - site listing and the lease-based lock protocol
type SiteStore interface {
	// ListSites returns sites matching the filter.
	ListSites(ctx context.Context, req models.ListSitesRequest) ([]models.Site, error)

	// LeaseSite atomically claims at most one site that is enabled, not
	// completed, and whose lock has expired (or was never held), stamping
	// lockedBy and lockExpires. Returns nil when nothing is leasable.
	LeaseSite(ctx context.Context, req models.LeaseSiteRequest) (*models.Site, error)

	// CompleteSite clears the lock and bumps the completion counter.
	// Ids that do not look store-native are ignored without error.
	CompleteSite(ctx context.Context, id string) error

	// FailSite clears the lock, bumps the failure counter and records the
	// error. Same id tolerance as CompleteSite.
	FailSite(ctx context.Context, id string, errMsg string) error

	// HeartbeatSite re-stamps lockExpires on a lease still held by workerID
	// so a fetch that outlives the lock window keeps its claim. Heartbeats
	// for unknown ids or leases held elsewhere are ignored without error.
	HeartbeatSite(ctx context.Context, id, workerID string, lockSeconds int) error

	// TriggerSite stamps manualTriggerAt so the next lease pass picks the
	// site up once its lock expires.
	TriggerSite(ctx context.Context, id string) error
}

// URLQueueStore - the two-stage work queue over detail URLs
type URLQueueStore interface {
	// EnqueueScrapeURLs inserts pending rows and returns the subset
	// actually queued; URLs already present in a non-terminal state for
	// the same provider are skipped.
	EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error)

	// LeaseScrapeURLBatch atomically transitions up to Limit pending rows
	// to processing and returns them. Stale processing rows are reclaimed
	// to pending first; rows past the 48 h TTL are failed and excluded.
	LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error)

	// CompleteScrapeURLs terminally transitions the given URLs. Idempotent
	// on rows already terminal.
	CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error

	// ListQueuedScrapeURLs is the dedupe read; Limit caps at 500.
	ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error)
}

// JobStore - ingested jobs, the seen-URL projection, and the ignore log
type JobStore interface {
	// ListSeenJobURLsForSite returns URLs already ingested for a source
	// URL (optionally scoped by pattern).
	ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error)

	// FindExistingJobURLs returns the subset of candidates already present
	// in the jobs table.
	FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error)

	// IngestJobsFromScrape upserts normalized rows keyed by URL.
	IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error

	// InsertIgnoredJob records a dropped candidate. Best-effort.
	InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error
}

// ScrapeStore - append-only scrape and error logs
type ScrapeStore interface {
	InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error
	InsertScrapeError(ctx context.Context, rec models.ScrapeError) error
}

// WebhookStore - async batch callback rows
type WebhookStore interface {
	// InsertWebhookEvent stores the pending placeholder at dispatch time,
	// or the received callback row.
	InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error

	// ListPendingWebhooks returns rows still awaiting a terminal event.
	ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error)

	// GetWebhookStatus returns the row for a provider job id, nil when the
	// id is unknown.
	GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error)

	// MarkWebhookProcessed idempotently transitions the row to a terminal
	// status with the result hash or error.
	MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error
}

// HeuristicStore - enrichment reads, learned regexes, job mutations
type HeuristicStore interface {
	ListPendingJobDetails(ctx context.Context, req models.ListPendingJobDetailsRequest) ([]models.PendingJobDetail, error)
	CountPendingJobDetails(ctx context.Context) (int, error)
	ListJobDetailConfigs(ctx context.Context, domain string) ([]models.HeuristicConfigRow, error)
	RecordJobDetailHeuristic(ctx context.Context, row models.HeuristicConfigRow) error
	UpdateJobWithHeuristic(ctx context.Context, upd models.HeuristicUpdate) error
}

// WorkflowStore - best-effort run telemetry
type WorkflowStore interface {
	// RecordWorkflowRun logs one worker run. Implementations swallow
	// cancellation; this call must never fail the parent work.
	RecordWorkflowRun(ctx context.Context, rec models.WorkflowRunRecord) error
}

// StoreManager - composite interface over all store areas
type StoreManager interface {
	Sites() SiteStore
	URLQueue() URLQueueStore
	Jobs() JobStore
	Scrapes() ScrapeStore
	Webhooks() WebhookStore
	Heuristics() HeuristicStore
	Workflows() WorkflowStore
	Close() error
}
