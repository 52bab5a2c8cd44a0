package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	// DefaultFirecrawlURL is the batch API endpoint.
	DefaultFirecrawlURL = "https://api.firecrawl.dev"

	firecrawlBatchPath   = "/v1/batch/scrape"
	firecrawlWebhookPath = "api/firecrawl/webhook"
	firecrawlRateLimit   = 4

	// firecrawlMaxResultPages bounds the next-link walk when materialising
	// a large batch.
	firecrawlMaxResultPages = 10
)

// Batch dispatch kinds carried in webhook metadata so the reconciler knows
// how to process materialised documents.
const (
	BatchKindSite    = "site"
	BatchKindDetails = "details"
)

// ErrBatchNotFound reports a provider job id the status API no longer
// recognises. The reconciler treats aged batches in this state as expired.
var ErrBatchNotFound = errors.New("batch job not found")

type firecrawlWebhook struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type firecrawlBatchRequest struct {
	URLs    []string          `json:"urls"`
	Formats []string          `json:"formats,omitempty"`
	Webhook *firecrawlWebhook `json:"webhook,omitempty"`
}

type firecrawlBatchResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// FirecrawlDocument is one scraped page in a batch status response.
type FirecrawlDocument struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Metadata struct {
		SourceURL  string `json:"sourceURL"`
		StatusCode int    `json:"statusCode"`
		Title      string `json:"title"`
	} `json:"metadata"`
}

// BatchStatus is the reconciler-facing view of an asynchronous batch.
type BatchStatus struct {
	Status    string              `json:"status"`
	Completed int                 `json:"completed"`
	Total     int                 `json:"total"`
	Next      string              `json:"next"`
	Data      []FirecrawlDocument `json:"data"`
}

// Done reports whether the batch finished with results to materialise.
func (s *BatchStatus) Done() bool { return s.Status == "completed" }

// Failed reports whether the batch ended without results.
func (s *BatchStatus) Failed() bool { return s.Status == "failed" || s.Status == "cancelled" }

// cleanWebhookMetadata prepares an outbound metadata block: nil values are
// dropped because the upstream API rejects nulls, and non-string values are
// JSON-stringified.
func cleanWebhookMetadata(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			if v == "" {
				continue
			}
			out[key] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FirecrawlOptions configures the batch-async adapter. Webhooks is required;
// WebhookBase empty means batches are dispatched without a callback and only
// the reconciler sweep completes them.
type FirecrawlOptions struct {
	APIURL      string
	APIKey      string
	WebhookBase string
	Registry    interfaces.HandlerRegistry
	Normalizer  interfaces.Normalizer
	Webhooks    interfaces.WebhookStore
	Runtime     *common.RuntimeConfig
	HTTPClient  *http.Client
}

// Firecrawl dispatches asynchronous scrape batches and leaves completion to
// the webhook reconciler. Scrape calls return queued payloads carrying the
// provider job id.
type Firecrawl struct {
	apiURL      string
	apiKey      string
	webhookBase string
	httpClient  *http.Client
	limiter     *rate.Limiter
	registry    interfaces.HandlerRegistry
	normalizer  interfaces.Normalizer
	webhooks    interfaces.WebhookStore
	logger      arbor.ILogger
}

// NewFirecrawl creates the batch-async adapter.
func NewFirecrawl(opts FirecrawlOptions, logger arbor.ILogger) *Firecrawl {
	if opts.APIURL == "" {
		opts.APIURL = DefaultFirecrawlURL
	}
	if opts.Runtime == nil {
		opts.Runtime = common.NewDefaultRuntimeConfig()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Runtime.HTTPTimeout()}
	}
	return &Firecrawl{
		apiURL:      strings.TrimRight(opts.APIURL, "/"),
		apiKey:      opts.APIKey,
		webhookBase: opts.WebhookBase,
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(firecrawlRateLimit), firecrawlRateLimit),
		registry:    opts.Registry,
		normalizer:  opts.Normalizer,
		webhooks:    opts.Webhooks,
		logger:      logger,
	}
}

func (f *Firecrawl) Kind() models.ProviderKind { return models.ProviderFirecrawl }

func (f *Firecrawl) Configured() bool { return f.apiKey != "" }

// WebhookConfigured reports whether dispatches carry a callback URL.
func (f *Firecrawl) WebhookConfigured() bool { return f.webhookBase != "" }

func (f *Firecrawl) webhookURL() string {
	if f.webhookBase == "" {
		return ""
	}
	return common.JoinPath(f.webhookBase, firecrawlWebhookPath)
}

// dispatchBatch enqueues a batch upstream and returns the provider job id.
func (f *Firecrawl) dispatchBatch(ctx context.Context, urls []string, meta models.WebhookMetadata, idempotencyKey string) (string, string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", "", err
	}

	request := firecrawlBatchRequest{
		URLs:    urls,
		Formats: []string{"markdown", "html"},
	}
	if callback := f.webhookURL(); callback != "" {
		request.Webhook = &firecrawlWebhook{
			URL: callback,
			Metadata: cleanWebhookMetadata(map[string]any{
				"siteId":  meta.SiteID,
				"siteUrl": meta.SiteURL,
				"kind":    meta.Kind,
				"pattern": meta.Pattern,
			}),
		}
	}

	encoded, err := json.Marshal(request)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode batch request: %w", err)
	}

	endpoint := f.apiURL + firecrawlBatchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", "", fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	snapshot := snapshotRequest(http.MethodPost, endpoint, req.Header, string(encoded))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", snapshot, &TransientError{Provider: "firecrawl", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := classifyHTTPStatus("firecrawl", resp.StatusCode, string(body)); err != nil {
		return "", snapshot, err
	}

	var decoded firecrawlBatchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", snapshot, &ParseError{
			Provider:  "firecrawl",
			SourceURL: urls[0],
			Message:   "batch response: " + err.Error(),
			RawLength: len(body),
		}
	}
	if !decoded.Success || decoded.ID == "" {
		return "", snapshot, &TransientError{Provider: "firecrawl", Message: "batch rejected: " + decoded.Error}
	}
	return decoded.ID, snapshot, nil
}

// recordPending stores the dispatch placeholder the reconciler keys on.
func (f *Firecrawl) recordPending(ctx context.Context, jobID string, meta models.WebhookMetadata) error {
	return f.webhooks.InsertWebhookEvent(ctx, models.WebhookEventRow{
		JobID:     jobID,
		Status:    models.WebhookStatusPending,
		Metadata:  meta,
		CreatedAt: nowMs(),
	})
}

// ScrapeSite enqueues the site's listing URL as a one-page batch and returns
// a queued payload. Discovery happens when the reconciler materialises the
// batch; skipURLs are applied at that point via the stored pattern.
func (f *Firecrawl) ScrapeSite(ctx context.Context, site models.Site, skipURLs []string) (models.ScrapePayload, error) {
	if !f.Configured() {
		return models.ScrapePayload{}, &ConfigError{Provider: "firecrawl", Message: "missing API key"}
	}

	started := nowMs()
	handler := f.registry.ForSite(site)
	listingURL, err := handler.BuildListingAPIURL(site.URL)
	if err != nil {
		listingURL = site.URL
	}

	meta := models.WebhookMetadata{
		SiteID:  site.ID,
		SiteURL: site.URL,
		Kind:    BatchKindSite,
		Pattern: site.URLPattern,
	}
	jobID, snapshot, err := f.dispatchBatch(ctx, []string{listingURL}, meta, "")
	if err != nil {
		return models.ScrapePayload{}, err
	}
	if err := f.recordPending(ctx, jobID, meta); err != nil {
		return models.ScrapePayload{}, fmt.Errorf("batch %s dispatched but placeholder insert failed: %w", jobID, err)
	}

	f.logger.Info().
		Str("site", site.Name).
		Str("job_id", jobID).
		Str("listing_url", listingURL).
		Msg("Batch dispatched")

	return models.ScrapePayload{
		SourceURL:       site.URL,
		Provider:        models.ProviderFirecrawl,
		StartedAt:       started,
		CompletedAt:     nowMs(),
		RequestSnapshot: snapshot,
		Queued:          true,
		ProviderJobID:   jobID,
	}, nil
}

// FetchGreenhouseListing uses the shared plain GET; listing polls never go
// through the batch queue.
func (f *Firecrawl) FetchGreenhouseListing(ctx context.Context, site models.Site) (models.ListingResult, error) {
	return fetchGreenhouseListing(ctx, f.httpClient, f.registry, site, models.ProviderFirecrawl, f.logger)
}

// ScrapeJobDetails enqueues the leased URLs as one batch and returns a
// queued result with zero rows. Rows are ingested when the batch
// materialises.
func (f *Firecrawl) ScrapeJobDetails(ctx context.Context, req models.DetailBatchRequest) (models.DetailBatchResult, error) {
	if !f.Configured() {
		return models.DetailBatchResult{}, &ConfigError{Provider: "firecrawl", Message: "missing API key"}
	}
	if len(req.URLs) == 0 {
		return models.DetailBatchResult{}, nil
	}

	started := nowMs()
	meta := models.WebhookMetadata{
		SiteURL: req.SourceURL,
		Kind:    BatchKindDetails,
	}
	jobID, snapshot, err := f.dispatchBatch(ctx, req.URLs, meta, req.IdempotencyKey)
	if err != nil {
		return models.DetailBatchResult{}, err
	}
	if err := f.recordPending(ctx, jobID, meta); err != nil {
		return models.DetailBatchResult{}, fmt.Errorf("batch %s dispatched but placeholder insert failed: %w", jobID, err)
	}

	f.logger.Info().
		Str("source_url", req.SourceURL).
		Str("job_id", jobID).
		Int("urls", len(req.URLs)).
		Msg("Detail batch dispatched")

	return models.DetailBatchResult{
		Scrape: models.ScrapePayload{
			SourceURL:       req.SourceURL,
			Provider:        models.ProviderFirecrawl,
			StartedAt:       started,
			CompletedAt:     nowMs(),
			RequestSnapshot: snapshot,
			Queued:          true,
			ProviderJobID:   jobID,
		},
	}, nil
}

// GetBatchStatus fetches the batch state, walking result pages. A 404 or a
// "no such method" body maps to ErrBatchNotFound so the reconciler can
// expire aged jobs.
func (f *Firecrawl) GetBatchStatus(ctx context.Context, jobID string) (*BatchStatus, error) {
	if !f.Configured() {
		return nil, &ConfigError{Provider: "firecrawl", Message: "missing API key"}
	}

	status := &BatchStatus{}
	endpoint := f.apiURL + firecrawlBatchPath + "/" + jobID
	for page := 0; page < firecrawlMaxResultPages; page++ {
		var pageStatus BatchStatus
		if err := f.getStatusPage(ctx, endpoint, &pageStatus); err != nil {
			return nil, err
		}
		status.Status = pageStatus.Status
		status.Completed = pageStatus.Completed
		status.Total = pageStatus.Total
		status.Data = append(status.Data, pageStatus.Data...)
		if pageStatus.Next == "" {
			break
		}
		endpoint = pageStatus.Next
	}
	return status, nil
}

func (f *Firecrawl) getStatusPage(ctx context.Context, endpoint string, out *BatchStatus) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &TransientError{Provider: "firecrawl", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, models.MaxScrapeRecordBytes))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: HTTP 404", ErrBatchNotFound)
	}
	if strings.Contains(strings.ToLower(string(body)), "no such method") {
		return fmt.Errorf("%w: no such method", ErrBatchNotFound)
	}
	if err := classifyHTTPStatus("firecrawl", resp.StatusCode, string(body)); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ParseError{Provider: "firecrawl", Message: "status response: " + err.Error(), RawLength: len(body)}
	}
	return nil
}

// MaterializeBatch converts fetched batch documents into the payload shape
// the synchronous adapters return, using the metadata recorded at dispatch.
func (f *Firecrawl) MaterializeBatch(status *BatchStatus, meta models.WebhookMetadata) models.ScrapePayload {
	payload := models.ScrapePayload{
		SourceURL:   meta.SiteURL,
		Provider:    models.ProviderFirecrawl,
		CompletedAt: nowMs(),
	}

	var jobURLs, paginationURLs []string
	for _, doc := range status.Data {
		frag := models.Fragment{
			URL:      doc.Metadata.SourceURL,
			Markdown: doc.Markdown,
			RawHTML:  doc.HTML,
		}
		switch {
		case frag.Markdown != "":
			frag.Format = models.FragmentMarkdown
		case frag.RawHTML != "":
			frag.Format = models.FragmentHTML
		}

		if meta.Kind == BatchKindDetails {
			row, ignored, err := f.normalizer.NormalizeFragment(frag, meta.SiteURL, models.ProviderFirecrawl)
			if err != nil {
				f.logger.Warn().Err(err).Str("url", frag.URL).Msg("Normalization failed")
			} else {
				if row != nil {
					payload.Rows = append(payload.Rows, *row)
				}
				if ignored != nil {
					payload.Ignored = append(payload.Ignored, *ignored)
				}
			}
		} else {
			handler := f.registry.ForURL(frag.URL)
			text := fragmentText(frag)
			if urls, err := handler.ExtractJobURLsFromPayload(text, frag.URL); err == nil {
				urls = handler.FilterJobURLs(urls, meta.Pattern)
				kept, ignored := f.normalizer.FilterListingEntries(text, urls, frag.URL, models.ProviderFirecrawl)
				jobURLs = append(jobURLs, kept...)
				payload.Ignored = append(payload.Ignored, ignored...)
			} else {
				f.logger.Warn().Err(err).Str("url", frag.URL).Msg("Listing extraction failed")
			}
			if urls, err := handler.ExtractPaginationURLs(text, frag.URL); err == nil {
				paginationURLs = append(paginationURLs, urls...)
			}
			if payload.RawPreview == "" {
				payload.RawPreview = rawPreview(text)
			}
		}

		frag.RawHTML = ""
		payload.Fragments = append(payload.Fragments, frag)
	}

	payload.JobURLs = dedupeURLs(jobURLs)
	payload.PaginationURLs = dedupeURLs(paginationURLs)
	trimPayload(&payload)
	return payload
}

var _ interfaces.Provider = (*Firecrawl)(nil)
