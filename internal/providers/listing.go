package providers

import (
	"context"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// usdToMicroCents converts a provider-reported dollar cost to the integer
// minor unit persisted on rows and records.
func usdToMicroCents(usd float64) int64 {
	return int64(math.Round(usd * 100 * 1_000_000))
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// fetchGreenhouseListing is the shared listing fetch behind every adapter's
// FetchGreenhouseListing: a plain HTTPS GET against the board endpoint, with
// extraction delegated to the site handler. The handler already falls back
// to a raw-text URL sweep when the board body is not parseable JSON.
func fetchGreenhouseListing(ctx context.Context, client *http.Client, registry interfaces.HandlerRegistry, site models.Site, provider models.ProviderKind, logger arbor.ILogger) (models.ListingResult, error) {
	started := nowMs()
	handler := registry.ForSite(site)

	listingURL, err := handler.BuildListingAPIURL(site.URL)
	if err != nil {
		logger.Warn().Err(err).Str("url", site.URL).Msg("Listing URL not canonical, fetching as-is")
		listingURL = site.URL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return models.ListingResult{}, &ConfigError{Provider: string(provider), Message: "invalid listing URL " + listingURL}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return models.ListingResult{}, &TransientError{Provider: string(provider), Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ListingResult{}, &TransientError{Provider: string(provider), StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if err := classifyHTTPStatus(string(provider), resp.StatusCode, string(body)); err != nil {
		return models.ListingResult{}, err
	}

	jobURLs, err := handler.ExtractJobURLsFromPayload(string(body), listingURL)
	if err != nil {
		return models.ListingResult{}, &ParseError{
			Provider:  string(provider),
			SourceURL: listingURL,
			Message:   err.Error(),
			RawLength: len(body),
		}
	}
	jobURLs = dedupeURLs(handler.FilterJobURLs(jobURLs, site.URLPattern))

	logger.Debug().
		Str("site", site.Name).
		Str("listing_url", listingURL).
		Int("job_urls", len(jobURLs)).
		Msg("Fetched listing")

	return models.ListingResult{
		RawText:     clampRunes(string(body), models.MaxRawPreviewLen),
		JobURLs:     jobURLs,
		StartedAt:   started,
		CompletedAt: nowMs(),
	}, nil
}
