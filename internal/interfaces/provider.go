package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// Provider - uniform contract over the three scrape backends. Adapters are
// plain structs built from a dependency bag; they never reach into
// scheduling or worker machinery.
type Provider interface {
	// Kind names the backend.
	Kind() models.ProviderKind

	// Configured reports whether the backend credential is present.
	Configured() bool

	// ScrapeSite runs a stage-1 site scrape: fetch the listing surface,
	// extract detail and pagination URLs through the site handler, and
	// return a trimmed payload. skipURLs are already-known URLs the
	// backend may use to prune its crawl.
	ScrapeSite(ctx context.Context, site models.Site, skipURLs []string) (models.ScrapePayload, error)

	// FetchGreenhouseListing fetches a Greenhouse board JSON endpoint and
	// returns the raw text plus the extracted job URLs.
	FetchGreenhouseListing(ctx context.Context, site models.Site) (models.ListingResult, error)

	// ScrapeJobDetails fetches a leased batch of detail URLs and returns
	// the normalized scrape payload with the surviving row count.
	ScrapeJobDetails(ctx context.Context, req models.DetailBatchRequest) (models.DetailBatchResult, error)
}
