package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	// DefaultFetchFoxURL is the template-crawl API endpoint.
	DefaultFetchFoxURL = "https://fetchfox.ai"

	fetchFoxCrawlPath  = "/api/v2/crawl"
	fetchFoxScrapePath = "/api/v2/scrape"
	fetchFoxRateLimit  = 2

	// fetchFoxVisitCap is the hard per-crawl page budget. Configuration may
	// lower it, never raise it.
	fetchFoxVisitCap = 20

	fetchFoxMaxDepth = 5
)

// fetchFoxJobTemplate is the extraction schema for the synchronous
// single-URL mode. Field descriptions drive the upstream extractor.
var fetchFoxJobTemplate = map[string]string{
	"title":        "Job posting title",
	"company":      "Company name",
	"location":     "Job location, city and state, or remote",
	"compensation": "Salary or compensation range as written",
	"description":  "Full job description",
	"url":          "Canonical posting URL",
}

type fetchFoxPriority struct {
	Skip []string `json:"skip,omitempty"`
}

type fetchFoxCrawlRequest struct {
	Pattern   string           `json:"pattern"`
	StartURLs []string         `json:"start_urls"`
	MaxDepth  int              `json:"max_depth"`
	MaxVisits int              `json:"max_visits"`
	Priority  fetchFoxPriority `json:"priority"`
}

type fetchFoxScrapeRequest struct {
	URLs     []string          `json:"urls"`
	Template map[string]string `json:"template"`
}

type fetchFoxResponse struct {
	Results struct {
		Hits  []string          `json:"hits"`
		Items []json.RawMessage `json:"items"`
	} `json:"results"`
	Metrics struct {
		Visited int     `json:"visited"`
		CostUSD float64 `json:"cost_usd"`
	} `json:"metrics"`
	Error string `json:"error"`
}

// FetchFoxOptions configures the template-crawl adapter.
type FetchFoxOptions struct {
	APIURL     string
	APIKey     string
	Registry   interfaces.HandlerRegistry
	Normalizer interfaces.Normalizer
	Runtime    *common.RuntimeConfig
	HTTPClient *http.Client
}

// FetchFox crawls a site by URL template within a bounded visit budget, and
// scrapes single URLs synchronously through an extraction template.
type FetchFox struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	registry   interfaces.HandlerRegistry
	normalizer interfaces.Normalizer
	runtime    *common.RuntimeConfig
	logger     arbor.ILogger
}

// NewFetchFox creates the template-crawl adapter.
func NewFetchFox(opts FetchFoxOptions, logger arbor.ILogger) *FetchFox {
	if opts.APIURL == "" {
		opts.APIURL = DefaultFetchFoxURL
	}
	if opts.Runtime == nil {
		opts.Runtime = common.NewDefaultRuntimeConfig()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Runtime.HTTPTimeout()}
	}
	return &FetchFox{
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(fetchFoxRateLimit), fetchFoxRateLimit),
		registry:   opts.Registry,
		normalizer: opts.Normalizer,
		runtime:    opts.Runtime,
		logger:     logger,
	}
}

func (x *FetchFox) Kind() models.ProviderKind { return models.ProviderFetchFox }

func (x *FetchFox) Configured() bool { return x.apiKey != "" }

// maxVisits clamps the configured visit budget to the hard cap.
func (x *FetchFox) maxVisits() int {
	visits := x.runtime.FetchFoxMaxVisits.Int()
	if visits <= 0 || visits > fetchFoxVisitCap {
		return fetchFoxVisitCap
	}
	return visits
}

// crawlPattern derives a template pattern when the site declares none.
func crawlPattern(site models.Site) string {
	if site.URLPattern != "" {
		return site.URLPattern
	}
	u, err := url.Parse(site.URL)
	if err != nil || u.Host == "" {
		return site.URL + "*"
	}
	return u.Scheme + "://" + u.Host + "/*"
}

func (x *FetchFox) post(ctx context.Context, path string, request any) (*fetchFoxResponse, string, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := x.apiURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.apiKey)

	snapshot := snapshotRequest(http.MethodPost, endpoint, req.Header, string(encoded))

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, snapshot, &TransientError{Provider: "fetchfox", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, models.MaxScrapeRecordBytes))
	if err := classifyHTTPStatus("fetchfox", resp.StatusCode, string(body)); err != nil {
		return nil, snapshot, err
	}

	var decoded fetchFoxResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, snapshot, &ParseError{
			Provider:  "fetchfox",
			Message:   "response: " + err.Error(),
			RawLength: len(body),
		}
	}
	if decoded.Error != "" {
		return nil, snapshot, &TransientError{Provider: "fetchfox", Message: decoded.Error}
	}
	return &decoded, snapshot, nil
}

// ScrapeSite submits a bounded template crawl seeded at the site URL.
// skipURLs ride in priority.skip so the crawler spends its visit budget on
// unseen pages.
func (x *FetchFox) ScrapeSite(ctx context.Context, site models.Site, skipURLs []string) (models.ScrapePayload, error) {
	if !x.Configured() {
		return models.ScrapePayload{}, &ConfigError{Provider: "fetchfox", Message: "missing API key"}
	}

	started := nowMs()
	request := fetchFoxCrawlRequest{
		Pattern:   crawlPattern(site),
		StartURLs: []string{site.URL},
		MaxDepth:  fetchFoxMaxDepth,
		MaxVisits: x.maxVisits(),
		Priority:  fetchFoxPriority{Skip: skipURLs},
	}
	response, snapshot, err := x.post(ctx, fetchFoxCrawlPath, request)
	if err != nil {
		return models.ScrapePayload{}, err
	}

	handler := x.registry.ForSite(site)
	jobURLs := handler.FilterJobURLs(response.Results.Hits, site.URLPattern)

	payload := models.ScrapePayload{
		SourceURL:       site.URL,
		Provider:        models.ProviderFetchFox,
		StartedAt:       started,
		CompletedAt:     nowMs(),
		JobURLs:         dedupeURLs(jobURLs),
		RequestSnapshot: snapshot,
		CostMicroCents:  usdToMicroCents(response.Metrics.CostUSD),
	}
	trimPayload(&payload)

	x.logger.Info().
		Str("site", site.Name).
		Str("pattern", request.Pattern).
		Int("visited", response.Metrics.Visited).
		Int("job_urls", len(payload.JobURLs)).
		Msg("Template crawl complete")

	return payload, nil
}

// FetchGreenhouseListing uses the shared plain GET.
func (x *FetchFox) FetchGreenhouseListing(ctx context.Context, site models.Site) (models.ListingResult, error) {
	return fetchGreenhouseListing(ctx, x.httpClient, x.registry, site, models.ProviderFetchFox, x.logger)
}

// ScrapeJobDetails runs the synchronous single-URL mode per leased URL. The
// structured item comes back as a JSON fragment so the normalizer applies
// the same filters as every other provider path.
func (x *FetchFox) ScrapeJobDetails(ctx context.Context, req models.DetailBatchRequest) (models.DetailBatchResult, error) {
	if !x.Configured() {
		return models.DetailBatchResult{}, &ConfigError{Provider: "fetchfox", Message: "missing API key"}
	}

	started := nowMs()
	payload := models.ScrapePayload{
		SourceURL: req.SourceURL,
		Provider:  models.ProviderFetchFox,
		StartedAt: started,
	}

	for _, targetURL := range req.URLs {
		if ctx.Err() != nil {
			return models.DetailBatchResult{}, ctx.Err()
		}

		request := fetchFoxScrapeRequest{
			URLs:     []string{targetURL},
			Template: fetchFoxJobTemplate,
		}
		response, snapshot, err := x.post(ctx, fetchFoxScrapePath, request)
		if err != nil {
			if ctx.Err() != nil {
				return models.DetailBatchResult{}, ctx.Err()
			}
			x.logger.Warn().Err(err).Str("url", targetURL).Msg("Job detail scrape failed")
			continue
		}
		if payload.RequestSnapshot == "" {
			payload.RequestSnapshot = snapshot
		}
		payload.CostMicroCents += usdToMicroCents(response.Metrics.CostUSD)

		if len(response.Results.Items) == 0 {
			x.logger.Warn().Str("url", targetURL).Msg("Scrape returned no items")
			continue
		}
		frag := models.Fragment{
			URL:    targetURL,
			Format: models.FragmentJSON,
			JSON:   response.Results.Items[0],
		}
		row, ignored, err := x.normalizer.NormalizeFragment(frag, req.SourceURL, models.ProviderFetchFox)
		if err != nil {
			x.logger.Warn().Err(err).Str("url", targetURL).Msg("Normalization failed")
			continue
		}
		payload.Fragments = append(payload.Fragments, frag)
		if row != nil {
			payload.Rows = append(payload.Rows, *row)
		}
		if ignored != nil {
			payload.Ignored = append(payload.Ignored, *ignored)
		}
	}

	payload.CompletedAt = nowMs()
	trimPayload(&payload)

	x.logger.Info().
		Str("source_url", req.SourceURL).
		Int("requested", len(req.URLs)).
		Int("rows", len(payload.Rows)).
		Int("ignored", len(payload.Ignored)).
		Msg("Job detail batch complete")

	return models.DetailBatchResult{Scrape: payload, JobsScraped: len(payload.Rows)}, nil
}

var _ interfaces.Provider = (*FetchFox)(nil)
