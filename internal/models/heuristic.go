package models

// HeuristicVersion identifies the enrichment logic currently deployed. Bump
// it to force re-enrichment of rows processed by older logic.
const HeuristicVersion = 3

// HeuristicField names a job attribute the enricher can learn regexes for.
type HeuristicField string

const (
	HeuristicFieldLocation     HeuristicField = "location"
	HeuristicFieldCompensation HeuristicField = "compensation"
)

// HeuristicConfigRow is a learned per-domain regex. A regex that matched a
// job description is recorded so later runs try it before the hard-coded
// patterns.
type HeuristicConfigRow struct {
	Domain   string         `json:"domain"`
	Field    HeuristicField `json:"field"`
	Regex    string         `json:"regex"`
	HitCount int            `json:"hitCount,omitempty"`
}

// PendingJobDetail is a job row still missing location or compensation and
// below the max-attempts cap, as returned by the pending-details read.
type PendingJobDetail struct {
	URL                 string `json:"url"`
	Description         string `json:"description,omitempty"`
	Location            string `json:"location,omitempty"`
	Remote              bool   `json:"remote,omitempty"`
	TotalCompensation   int64  `json:"totalCompensation,omitempty"`
	CompensationUnknown bool   `json:"compensationUnknown,omitempty"`
	HeuristicAttempts   int    `json:"heuristicAttempts,omitempty"`
}

// HeuristicUpdate is the mutation applied to a job row after an enrichment
// pass, whether or not any field was extracted.
type HeuristicUpdate struct {
	URL                  string   `json:"url"`
	Location             string   `json:"location,omitempty"`
	Locations            []string `json:"locations,omitempty"`
	LocationStates       []string `json:"locationStates,omitempty"`
	Countries            []string `json:"countries,omitempty"`
	LocationSearchTokens []string `json:"locationSearchTokens,omitempty"`
	Country              string   `json:"country,omitempty"`
	TotalCompensation    int64    `json:"totalCompensation,omitempty"`
	CurrencyCode         string   `json:"currencyCode,omitempty"`
	CompensationUnknown  *bool    `json:"compensationUnknown,omitempty"`
	HeuristicAttempts    int      `json:"heuristicAttempts"`
	HeuristicVersion     int      `json:"heuristicVersion"`
	HeuristicLastTried   int64    `json:"heuristicLastTried"`
}

// ListPendingJobDetailsRequest bounds one enricher tick.
type ListPendingJobDetailsRequest struct {
	Limit       int `json:"limit"`
	MaxAttempts int `json:"maxAttempts,omitempty"`
}
