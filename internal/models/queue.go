package models

// QueueStatus is the lifecycle state of a URL-queue row.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// Valid reports whether the status is a known queue state.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s QueueStatus) Terminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// StaleQueueRowError is the failure reason stamped on rows past the 48 h TTL.
const StaleQueueRowError = "stale (>48h)"

// ScrapeURLRow is one unit of detail-scrape work.
// URLs are unique per (provider, URL) within non-terminal states.
type ScrapeURLRow struct {
	ID        string       `json:"id,omitempty"`
	URL       string       `json:"url"`
	SourceURL string       `json:"sourceUrl"` // the site URL that discovered it
	Pattern   string       `json:"pattern,omitempty"`
	Provider  ProviderKind `json:"provider"`
	Status    QueueStatus  `json:"status"`
	Attempts  int          `json:"attempts"`
	SiteID    string       `json:"siteId,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt int64        `json:"createdAt"` // epoch ms
	UpdatedAt int64        `json:"updatedAt"`
}

// EnqueueScrapeURLsRequest inserts pending rows; URLs already present in a
// non-terminal state for the same provider are no-ops. Empty site id and
// pattern are omitted from the stored row, never written as null.
type EnqueueScrapeURLsRequest struct {
	URLs      []string     `json:"urls"`
	SourceURL string       `json:"sourceUrl"`
	Provider  ProviderKind `json:"provider"`
	SiteID    string       `json:"siteId,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
}

// LeaseScrapeURLBatchRequest atomically claims up to Limit pending rows.
// Rows held in processing longer than ProcessingExpiryMs are reclaimed to
// pending first; rows older than the 48 h TTL are failed and excluded.
type LeaseScrapeURLBatchRequest struct {
	Provider            ProviderKind `json:"provider,omitempty"`
	Limit               int          `json:"limit"`
	ProcessingExpiryMs  int64        `json:"processingExpiryMs,omitempty"`
	MaxPerMinuteDefault int          `json:"maxPerMinuteDefault,omitempty"`
}

// CompleteScrapeURLsRequest is the terminal transition for leased rows.
// Idempotent on rows that are already terminal.
type CompleteScrapeURLsRequest struct {
	URLs     []string     `json:"urls"`
	Provider ProviderKind `json:"provider,omitempty"`
	Status   QueueStatus  `json:"status"` // completed or failed
	Error    string       `json:"error,omitempty"`
}

// ListQueuedScrapeURLsRequest is the read used by discovery to dedupe
// against in-flight work. Limit is capped at 500 by the store.
type ListQueuedScrapeURLsRequest struct {
	Provider ProviderKind `json:"provider,omitempty"`
	Status   QueueStatus  `json:"status,omitempty"`
	SiteID   string       `json:"siteId,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}
