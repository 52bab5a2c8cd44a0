package models

// SiteType identifies the careers-site family a handler serves.
type SiteType string

const (
	SiteTypeGreenhouse    SiteType = "greenhouse"
	SiteTypeAshby         SiteType = "ashby"
	SiteTypeGitHubCareers SiteType = "github-careers"
	SiteTypeAvature       SiteType = "avature"
	SiteTypeWorkday       SiteType = "workday"
	SiteTypeOpenAI        SiteType = "openai"
	SiteTypeNetflix       SiteType = "netflix"
	SiteTypeUber          SiteType = "uber"
	SiteTypeCisco         SiteType = "cisco"
	SiteTypeConfluent     SiteType = "confluent"
	SiteTypeDocusign      SiteType = "docusign"
	SiteTypeNotion        SiteType = "notion"
	SiteTypeGeneric       SiteType = "generic"
)

// Valid reports whether the site type is one of the known families.
func (t SiteType) Valid() bool {
	switch t {
	case SiteTypeGreenhouse, SiteTypeAshby, SiteTypeGitHubCareers, SiteTypeAvature,
		SiteTypeWorkday, SiteTypeOpenAI, SiteTypeNetflix, SiteTypeUber, SiteTypeCisco,
		SiteTypeConfluent, SiteTypeDocusign, SiteTypeNotion, SiteTypeGeneric:
		return true
	}
	return false
}

// Site is a monitored careers endpoint.
// At most one worker holds a non-expired lock on a site at any instant.
type Site struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	URL  string `json:"url"`

	SiteType       SiteType     `json:"siteType"`
	URLPattern     string       `json:"urlPattern,omitempty"`     // glob scoping accepted detail URLs
	ScrapeProvider ProviderKind `json:"scrapeProvider,omitempty"` // preferred provider, may be empty
	Enabled        bool         `json:"enabled"`
	Completed      bool         `json:"completed,omitempty"` // one-shot sites are skipped once done
	Schedule       string       `json:"schedule,omitempty"`  // cron expression reference

	// Lifecycle
	LastRunAt       int64  `json:"lastRunAt,omitempty"` // epoch ms
	LockExpires     int64  `json:"lockExpires,omitempty"`
	LockedBy        string `json:"lockedBy,omitempty"`
	ManualTriggerAt int64  `json:"manualTriggerAt,omitempty"`

	// Counters
	CompletedCount int `json:"completedCount,omitempty"`
	FailedCount    int `json:"failedCount,omitempty"`
}

// LeaseSiteRequest are the arguments of the atomic site lock-acquire.
type LeaseSiteRequest struct {
	WorkerID       string       `json:"workerId"`
	LockSeconds    int          `json:"lockSeconds"`
	SiteType       SiteType     `json:"siteType,omitempty"`
	ScrapeProvider ProviderKind `json:"scrapeProvider,omitempty"`
}

// ListSitesRequest filters the site listing read.
type ListSitesRequest struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	SiteType SiteType `json:"siteType,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}
