package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	// DefaultSpiderCloudURL is the streaming API endpoint.
	DefaultSpiderCloudURL = "https://api.spider.cloud"

	spiderCrawlPath = "/crawl"

	// spiderRateLimit bounds requests per second against the API.
	spiderRateLimit = 4

	// spiderMaxLineBytes caps one JSONL event; raw HTML bodies arrive as a
	// single line.
	spiderMaxLineBytes = 10 << 20
)

// captchaMarkers are matched case-insensitively against the aggregated
// response text. A hit means the page is a bot wall, not job content.
var captchaMarkers = []string{
	"vercel security checkpoint",
	"checking your browser",
	"are you human",
	"captcha",
	"security check",
	"robot check",
	"access denied",
}

// detectCaptcha returns the first marker present in text.
func detectCaptcha(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return marker, true
		}
	}
	return "", false
}

// CaptchaError reports a URL that stayed behind a bot wall after every proxy
// retry. It is not a scrape error: callers fail the URL without logging a
// parse failure.
type CaptchaError struct {
	URL    string
	Marker string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("captcha_failed marker=%q url=%s", e.Marker, e.URL)
}

// IsCaptchaError reports whether err is a captcha wall.
func IsCaptchaError(err error) bool {
	var ce *CaptchaError
	return errors.As(err, &ce)
}

// spiderRequest is the crawl request body. One URL per request; the
// response is a JSONL event stream.
type spiderRequest struct {
	URL             string   `json:"url"`
	ReturnFormat    []string `json:"return_format"`
	Request         string   `json:"request,omitempty"`
	PreserveHost    bool     `json:"preserve_host"`
	FollowRedirects bool     `json:"follow_redirects"`
	WaitForSelector string   `json:"wait_for_selector,omitempty"`
	Proxy           string   `json:"proxy,omitempty"`
	Limit           int      `json:"limit"`
	Stream          bool     `json:"stream"`
}

// spiderEvent is one JSONL line of the crawl stream.
type spiderEvent struct {
	URL         string  `json:"url"`
	Markdown    string  `json:"markdown"`
	RawHTML     string  `json:"raw_html"`
	Status      int     `json:"status"`
	Error       string  `json:"error"`
	CreditsUsed float64 `json:"credits_used"`
	CostUSD     float64 `json:"cost_usd"`
}

// SpiderCloudOptions configures the streaming adapter. Registry and
// Normalizer are required; the rest default.
type SpiderCloudOptions struct {
	APIURL     string
	APIKey     string
	Registry   interfaces.HandlerRegistry
	Normalizer interfaces.Normalizer
	Runtime    *common.RuntimeConfig
	HTTPClient *http.Client
}

// SpiderCloud streams page content over an authenticated JSONL crawl API,
// one request per URL, with proxy retries behind captcha walls.
type SpiderCloud struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	registry   interfaces.HandlerRegistry
	normalizer interfaces.Normalizer
	runtime    *common.RuntimeConfig
	logger     arbor.ILogger
}

// NewSpiderCloud creates the streaming adapter.
func NewSpiderCloud(opts SpiderCloudOptions, logger arbor.ILogger) *SpiderCloud {
	if opts.APIURL == "" {
		opts.APIURL = DefaultSpiderCloudURL
	}
	if opts.Runtime == nil {
		opts.Runtime = common.NewDefaultRuntimeConfig()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Runtime.HTTPTimeout()}
	}
	return &SpiderCloud{
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(spiderRateLimit), spiderRateLimit),
		registry:   opts.Registry,
		normalizer: opts.Normalizer,
		runtime:    opts.Runtime,
		logger:     logger,
	}
}

func (s *SpiderCloud) Kind() models.ProviderKind { return models.ProviderSpiderCloud }

func (s *SpiderCloud) Configured() bool { return s.apiKey != "" }

// isGreenhouseAPIURL matches the board API host, whose responses must come
// back as unrendered raw HTML through a full browser profile.
func isGreenhouseAPIURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "boards-api.greenhouse.io" || strings.HasSuffix(host, ".boards-api.greenhouse.io")
}

// forceGreenhouseHints overrides handler hints for greenhouse API URLs. The
// adapter enforces this regardless of what the handler asked for.
func forceGreenhouseHints(rawURL string, hints models.FetchHints) models.FetchHints {
	if !isGreenhouseAPIURL(rawURL) {
		return hints
	}
	hints.ReturnFormat = models.ReturnFormatRawHTML
	hints.RequestProfile = models.RequestProfileChrome
	hints.PreserveHost = false
	return hints
}

func fragmentText(frag models.Fragment) string {
	if frag.Markdown != "" {
		return frag.Markdown
	}
	if frag.RawHTML != "" {
		return frag.RawHTML
	}
	return string(frag.JSON)
}

// fetchURL opens one crawl stream and accumulates its events into a single
// fragment. The returned text is the aggregate used for captcha detection.
func (s *SpiderCloud) fetchURL(ctx context.Context, targetURL string, hints models.FetchHints, proxy models.ProxyKind) (models.Fragment, string, string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Fragment{}, "", "", err
	}

	format := hints.ReturnFormat
	if format == "" {
		format = models.ReturnFormatCommonmark
	}
	body := spiderRequest{
		URL:             targetURL,
		ReturnFormat:    []string{string(format)},
		Request:         string(hints.RequestProfile),
		PreserveHost:    hints.PreserveHost,
		FollowRedirects: hints.FollowRedirects,
		WaitForSelector: hints.WaitForSelector,
		Proxy:           string(proxy),
		Limit:           1,
		Stream:          true,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return models.Fragment{}, "", "", fmt.Errorf("failed to encode crawl request: %w", err)
	}

	endpoint := s.apiURL + spiderCrawlPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return models.Fragment{}, "", "", fmt.Errorf("failed to create crawl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/jsonl")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	snapshot := snapshotRequest(http.MethodPost, endpoint, req.Header, string(encoded))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.Fragment{}, "", snapshot, &TransientError{Provider: "spidercloud", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.Fragment{}, "", snapshot, classifyHTTPStatus("spidercloud", resp.StatusCode, string(errBody))
	}

	frag := models.Fragment{URL: targetURL}
	var markdown, rawHTML strings.Builder
	var streamErr string

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), spiderMaxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event spiderEvent
		if err := json.Unmarshal(line, &event); err != nil {
			s.logger.Warn().Err(err).Str("url", targetURL).Msg("Skipping undecodable stream event")
			continue
		}
		markdown.WriteString(event.Markdown)
		rawHTML.WriteString(event.RawHTML)
		frag.CreditsUsed += event.CreditsUsed
		frag.CostMicroCents += usdToMicroCents(event.CostUSD)
		if event.Error != "" {
			streamErr = event.Error
		}
	}
	if err := scanner.Err(); err != nil {
		return models.Fragment{}, "", snapshot, &TransientError{Provider: "spidercloud", Message: "stream read: " + err.Error()}
	}

	frag.Markdown = markdown.String()
	frag.RawHTML = rawHTML.String()
	switch {
	case frag.Markdown != "":
		frag.Format = models.FragmentMarkdown
	case frag.RawHTML != "":
		frag.Format = models.FragmentHTML
	}

	text := frag.Markdown
	if frag.RawHTML != "" {
		text += "\n" + frag.RawHTML
	}
	if text == "" {
		if streamErr != "" {
			return models.Fragment{}, "", snapshot, &TransientError{Provider: "spidercloud", Message: streamErr}
		}
		return models.Fragment{}, "", snapshot, &ParseError{
			Provider:  "spidercloud",
			SourceURL: targetURL,
			Message:   "crawl stream produced no content",
		}
	}
	return frag, text, snapshot, nil
}

// fetchWithCaptchaRetry fetches a URL, retrying through the proxy sequence
// when the content is a captcha wall.
func (s *SpiderCloud) fetchWithCaptchaRetry(ctx context.Context, targetURL string, hints models.FetchHints) (models.Fragment, string, error) {
	frag, text, snapshot, err := s.fetchURL(ctx, targetURL, hints, "")
	if err != nil {
		return models.Fragment{}, snapshot, err
	}
	marker, hit := detectCaptcha(text)
	if !hit {
		return frag, snapshot, nil
	}

	for _, proxy := range models.CaptchaProxySequence {
		s.logger.Info().
			Str("url", targetURL).
			Str("marker", marker).
			Str("proxy", string(proxy)).
			Msg("Captcha marker detected, retrying through proxy")

		frag, text, _, err = s.fetchURL(ctx, targetURL, hints, proxy)
		if err != nil {
			return models.Fragment{}, snapshot, err
		}
		marker, hit = detectCaptcha(text)
		if !hit {
			return frag, snapshot, nil
		}
	}

	s.logger.Warn().Str("url", targetURL).Str("marker", marker).Msg("captcha_failed")
	return models.Fragment{}, snapshot, &CaptchaError{URL: targetURL, Marker: marker}
}

// ScrapeSite fetches a site's listing page, extracts and filters detail
// URLs, and returns a discovery payload. skipURLs are already-known detail
// URLs that must not be re-emitted.
func (s *SpiderCloud) ScrapeSite(ctx context.Context, site models.Site, skipURLs []string) (models.ScrapePayload, error) {
	if !s.Configured() {
		return models.ScrapePayload{}, &ConfigError{Provider: "spidercloud", Message: "missing API key"}
	}

	started := nowMs()
	handler := s.registry.ForSite(site)
	listingURL, err := handler.BuildListingAPIURL(site.URL)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", site.URL).Msg("Listing URL not canonical, fetching as-is")
		listingURL = site.URL
	}

	hints := forceGreenhouseHints(listingURL, handler.BuildFetchHints(listingURL))
	frag, snapshot, err := s.fetchWithCaptchaRetry(ctx, listingURL, hints)
	if err != nil {
		return models.ScrapePayload{}, err
	}

	text := fragmentText(frag)
	jobURLs, err := handler.ExtractJobURLsFromPayload(text, listingURL)
	if err != nil {
		return models.ScrapePayload{}, &ParseError{
			Provider:  "spidercloud",
			SourceURL: listingURL,
			Message:   err.Error(),
			RawLength: len(text),
		}
	}
	jobURLs = handler.FilterJobURLs(jobURLs, site.URLPattern)
	paginationURLs, _ := handler.ExtractPaginationURLs(text, listingURL)

	skip := make(map[string]bool, len(skipURLs))
	for _, u := range skipURLs {
		skip[u] = true
	}
	fresh := jobURLs[:0:0]
	for _, u := range jobURLs {
		if !skip[u] {
			fresh = append(fresh, u)
		}
	}
	fresh, ignored := s.normalizer.FilterListingEntries(text, fresh, listingURL, models.ProviderSpiderCloud)

	payload := models.ScrapePayload{
		SourceURL:       site.URL,
		Provider:        models.ProviderSpiderCloud,
		StartedAt:       started,
		CompletedAt:     nowMs(),
		Fragments:       []models.Fragment{frag},
		Ignored:         ignored,
		JobURLs:         fresh,
		PaginationURLs:  paginationURLs,
		RequestSnapshot: snapshot,
		RawPreview:      rawPreview(text),
		CreditsUsed:     frag.CreditsUsed,
		CostMicroCents:  frag.CostMicroCents,
	}
	trimPayload(&payload)

	s.logger.Info().
		Str("site", site.Name).
		Str("listing_url", listingURL).
		Int("job_urls", len(fresh)).
		Int("ignored", len(ignored)).
		Int("skipped", len(jobURLs)-len(fresh)-len(ignored)).
		Int("pagination_urls", len(paginationURLs)).
		Float64("credits_used", payload.CreditsUsed).
		Msg("Site scrape complete")

	return payload, nil
}

// FetchGreenhouseListing fetches the board JSON with a plain GET; no crawl
// credits are spent on listing polls.
func (s *SpiderCloud) FetchGreenhouseListing(ctx context.Context, site models.Site) (models.ListingResult, error) {
	return fetchGreenhouseListing(ctx, s.httpClient, s.registry, site, models.ProviderSpiderCloud, s.logger)
}

// ScrapeJobDetails fetches and normalizes a leased batch of detail URLs.
// Per-URL failures are isolated: a URL that fails fetch or normalization is
// logged and omitted, and the rest of the batch proceeds. Callers detect
// missing URLs by diffing the returned fragments.
func (s *SpiderCloud) ScrapeJobDetails(ctx context.Context, req models.DetailBatchRequest) (models.DetailBatchResult, error) {
	if !s.Configured() {
		return models.DetailBatchResult{}, &ConfigError{Provider: "spidercloud", Message: "missing API key"}
	}

	started := nowMs()
	concurrency := s.runtime.SpiderCloudJobDetailsConcurrency.Int()
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu        sync.Mutex
		fragments []models.Fragment
		rows      []models.JobRow
		ignored   []models.IgnoredJob
		credits   float64
		cost      int64
		snapshot  string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, rawURL := range req.URLs {
		targetURL := rawURL
		g.Go(func() error {
			handler := s.registry.ForURL(targetURL)
			hints := forceGreenhouseHints(targetURL, handler.BuildFetchHints(targetURL))

			frag, snap, err := s.fetchWithCaptchaRetry(gctx, targetURL, hints)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if !IsCaptchaError(err) {
					s.logger.Warn().Err(err).Str("url", targetURL).Msg("Job detail fetch failed")
				}
				return nil
			}

			row, ign, nerr := s.normalizer.NormalizeFragment(frag, req.SourceURL, models.ProviderSpiderCloud)

			mu.Lock()
			defer mu.Unlock()
			if snapshot == "" {
				snapshot = snap
			}
			credits += frag.CreditsUsed
			cost += frag.CostMicroCents
			// The normalizer consumed the raw body; keep the lean form.
			frag.RawHTML = ""
			frag.JSON = nil
			fragments = append(fragments, frag)

			if nerr != nil {
				s.logger.Warn().Err(nerr).Str("url", targetURL).Msg("Normalization failed")
				return nil
			}
			if row != nil {
				rows = append(rows, *row)
			}
			if ign != nil {
				ignored = append(ignored, *ign)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.DetailBatchResult{}, err
	}

	payload := models.ScrapePayload{
		SourceURL:       req.SourceURL,
		Provider:        models.ProviderSpiderCloud,
		StartedAt:       started,
		CompletedAt:     nowMs(),
		Fragments:       fragments,
		Rows:            rows,
		Ignored:         ignored,
		RequestSnapshot: snapshot,
		CreditsUsed:     credits,
		CostMicroCents:  cost,
	}
	trimPayload(&payload)

	s.logger.Info().
		Str("source_url", req.SourceURL).
		Int("requested", len(req.URLs)).
		Int("fetched", len(fragments)).
		Int("rows", len(rows)).
		Int("ignored", len(ignored)).
		Msg("Job detail batch complete")

	return models.DetailBatchResult{Scrape: payload, JobsScraped: len(rows)}, nil
}

var _ interfaces.Provider = (*SpiderCloud)(nil)
