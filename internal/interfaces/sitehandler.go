package interfaces

import "github.com/ternarybob/venari/internal/models"

// SiteHandler - per-site-family strategy converting raw payloads to
// canonical job URLs and fetch hints. Handlers are pure transformations;
// all I/O stays in the provider adapters.
type SiteHandler interface {
	// SiteType names the family this handler serves.
	SiteType() models.SiteType

	// MatchesURL reports whether the handler's host/path predicate accepts
	// the URL. Used when no explicit site type is declared.
	MatchesURL(url string) bool

	// IsListingURL distinguishes a listing page from a detail page.
	IsListingURL(url string) bool

	// BuildListingAPIURL rewrites a marketing listing URL into the
	// canonical listing-API URL, or returns it unchanged when the family
	// has no API surface.
	BuildListingAPIURL(url string) (string, error)

	// ExtractJobURLsFromPayload pulls detail URLs out of a listing
	// response body (JSON or HTML, family-specific).
	ExtractJobURLsFromPayload(payload string, baseURL string) ([]string, error)

	// ExtractPaginationURLs pulls follow-up listing pages out of a
	// response body.
	ExtractPaginationURLs(payload string, baseURL string) ([]string, error)

	// BuildFetchHints returns the provider-facing fetch configuration for
	// a URL of this family.
	BuildFetchHints(url string) models.FetchHints

	// FilterJobURLs drops URLs the family knows are not job postings
	// (login, save-job, listing chrome) and applies the site's pattern.
	FilterJobURLs(urls []string, pattern string) []string
}

// HandlerRegistry - site-handler lookup by declared type or URL predicate.
type HandlerRegistry interface {
	// ForSite resolves the handler for a site, falling back to the URL
	// predicates and finally the generic handler.
	ForSite(site models.Site) SiteHandler

	// ForURL resolves a handler from the URL predicates alone.
	ForURL(url string) SiteHandler
}

// Normalizer - converts one provider fragment into at most one canonical
// job row, or an ignored-reason, or nothing for empty fragments.
type Normalizer interface {
	NormalizeFragment(frag models.Fragment, sourceURL string, provider models.ProviderKind) (*models.JobRow, *models.IgnoredJob, error)

	// FilterListingEntries applies the title-keyword policy to listing
	// payloads that carry titles (greenhouse board JSON). URLs whose board
	// title fails the filter are returned as ignored rows instead of
	// discovery candidates; URLs without a resolvable title pass through.
	FilterListingEntries(payload string, urls []string, sourceURL string, provider models.ProviderKind) ([]string, []models.IgnoredJob)
}
