package models

// JobLevel is the normalised seniority enum.
type JobLevel string

const (
	JobLevelJunior JobLevel = "junior"
	JobLevelMid    JobLevel = "mid"
	JobLevelSenior JobLevel = "senior"
	JobLevelStaff  JobLevel = "staff"
	JobLevelIntern JobLevel = "intern"
)

// Valid reports whether the level is one of the normalised values.
func (l JobLevel) Valid() bool {
	switch l {
	case JobLevelJunior, JobLevelMid, JobLevelSenior, JobLevelStaff, JobLevelIntern:
		return true
	}
	return false
}

// MaxDescriptionChars caps job descriptions before storage.
const MaxDescriptionChars = 8000

// JobRow is the canonical normalized output of the pipeline. URL uniquely
// identifies a job; re-ingestion with the same URL is an idempotent upsert.
type JobRow struct {
	URL     string `json:"url"` // primary key; marketing URL preferred
	Title   string `json:"title"`
	Company string `json:"company,omitempty"`

	Description string   `json:"description,omitempty"` // Markdown, <= 8000 chars
	Location    string   `json:"location,omitempty"`
	Locations   []string `json:"locations,omitempty"`
	Country     string   `json:"country,omitempty"`
	Remote      bool     `json:"remote"`
	Level       JobLevel `json:"level,omitempty"`

	// Compensation is the range midpoint in whole currency units.
	// CompensationUnknown carries an explicit flag plus a free-text reason
	// so "no range found" is distinguishable from "range is zero".
	TotalCompensation   int64  `json:"totalCompensation,omitempty"`
	CurrencyCode        string `json:"currencyCode,omitempty"`
	CompensationUnknown bool   `json:"compensationUnknown"`
	CompensationReason  string `json:"compensationReason,omitempty"`

	ApplyURL string `json:"apply_url,omitempty"` // API URL retained when marketing URL is canonical
	PostedAt int64  `json:"postedAt,omitempty"`  // epoch ms

	ScrapedAt   int64        `json:"scrapedAt,omitempty"`
	ScrapedWith ProviderKind `json:"scrapedWith,omitempty"`
	ScrapedCost int64        `json:"scrapedCost,omitempty"` // microcents

	// Heuristic enrichment bookkeeping
	HeuristicAttempts    int      `json:"heuristicAttempts,omitempty"`
	HeuristicVersion     int      `json:"heuristicVersion,omitempty"`
	HeuristicLastTried   int64    `json:"heuristicLastTried,omitempty"`
	LocationStates       []string `json:"locationStates,omitempty"`
	Countries            []string `json:"countries,omitempty"`
	LocationSearchTokens []string `json:"locationSearchTokens,omitempty"`
}

// IgnoredReason classifies why a candidate row was dropped instead of stored.
type IgnoredReason string

const (
	IgnoredMissingKeyword IgnoredReason = "missing_required_keyword"
	IgnoredErrorLanding   IgnoredReason = "error_landing"
	IgnoredListingPage    IgnoredReason = "listing_page"
	IgnoredListingPayload IgnoredReason = "listing_payload"
	IgnoredFiltered       IgnoredReason = "filtered"
)

// IgnoredJob records a dropped candidate. Ignored URLs are not re-queued.
type IgnoredJob struct {
	URL       string        `json:"url"`
	Title     string        `json:"title,omitempty"`
	Reason    IgnoredReason `json:"reason"`
	SourceURL string        `json:"sourceUrl,omitempty"`
	Provider  ProviderKind  `json:"provider,omitempty"`
}

// IngestJobsRequest persists normalized rows, keyed by URL. SourceURL feeds
// the seen-URL projection that discovery dedupes against.
type IngestJobsRequest struct {
	Jobs      []JobRow `json:"jobs"`
	SiteID    string   `json:"siteId,omitempty"`
	SourceURL string   `json:"sourceUrl,omitempty"`
}
