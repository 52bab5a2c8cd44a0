package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/sites"
)

func newTestFirecrawl(apiURL, webhookBase string, store *stubWebhookStore) *Firecrawl {
	return NewFirecrawl(FirecrawlOptions{
		APIURL:      apiURL,
		APIKey:      "test-key",
		WebhookBase: webhookBase,
		Registry:    sites.NewRegistry(),
		Normalizer:  stubNormalizer{},
		Webhooks:    store,
	}, arbor.NewLogger())
}

func TestCleanWebhookMetadata(t *testing.T) {
	out := cleanWebhookMetadata(map[string]any{
		"siteId":  "site-1",
		"dropped": nil,
		"empty":   "",
		"count":   42,
		"nested":  map[string]string{"a": "b"},
	})
	assert.Equal(t, "site-1", out["siteId"])
	assert.NotContains(t, out, "dropped")
	assert.NotContains(t, out, "empty")
	assert.Equal(t, "42", out["count"])
	assert.Equal(t, `{"a":"b"}`, out["nested"])

	assert.Nil(t, cleanWebhookMetadata(nil))
	assert.Nil(t, cleanWebhookMetadata(map[string]any{"only": nil}))
}

func TestFirecrawlScrapeSiteDispatchesBatch(t *testing.T) {
	var gotRequest firecrawlBatchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		json.NewEncoder(w).Encode(firecrawlBatchResponse{Success: true, ID: "batch-1"})
	}))
	defer ts.Close()

	store := &stubWebhookStore{}
	adapter := newTestFirecrawl(ts.URL, "https://ingress.example.com", store)

	site := models.Site{
		ID:       "site-1",
		Name:     "acme",
		URL:      "https://careers.example.com/jobs",
		SiteType: models.SiteTypeGeneric,
	}
	payload, err := adapter.ScrapeSite(context.Background(), site, nil)
	require.NoError(t, err)

	assert.True(t, payload.Queued)
	assert.Equal(t, "batch-1", payload.ProviderJobID)
	assert.Empty(t, payload.Rows)

	require.NotNil(t, gotRequest.Webhook)
	assert.Equal(t, "https://ingress.example.com/api/firecrawl/webhook", gotRequest.Webhook.URL)
	assert.Equal(t, "site-1", gotRequest.Webhook.Metadata["siteId"])
	assert.Equal(t, BatchKindSite, gotRequest.Webhook.Metadata["kind"])
	assert.NotContains(t, gotRequest.Webhook.Metadata, "pattern", "empty metadata values are stripped")

	require.Len(t, store.rows, 1)
	assert.Equal(t, "batch-1", store.rows[0].JobID)
	assert.Equal(t, models.WebhookStatusPending, store.rows[0].Status)
	assert.Equal(t, "site-1", store.rows[0].Metadata.SiteID)
}

func TestFirecrawlDetailBatchCarriesIdempotencyKey(t *testing.T) {
	var gotIdempotency string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdempotency = r.Header.Get("X-Idempotency-Key")
		json.NewEncoder(w).Encode(firecrawlBatchResponse{Success: true, ID: "batch-2"})
	}))
	defer ts.Close()

	store := &stubWebhookStore{}
	adapter := newTestFirecrawl(ts.URL, "https://ingress.example.com", store)

	result, err := adapter.ScrapeJobDetails(context.Background(), models.DetailBatchRequest{
		URLs:           []string{"https://careers.example.com/jobs/1", "https://careers.example.com/jobs/2"},
		SourceURL:      "https://careers.example.com/jobs",
		IdempotencyKey: "lease-abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "lease-abc", gotIdempotency)
	assert.True(t, result.Scrape.Queued)
	assert.Equal(t, "batch-2", result.Scrape.ProviderJobID)
	assert.Zero(t, result.JobsScraped)
	require.Len(t, store.rows, 1)
	assert.Equal(t, BatchKindDetails, store.rows[0].Metadata.Kind)
}

func TestFirecrawlNoWebhookBaseOmitsCallback(t *testing.T) {
	var gotRequest firecrawlBatchRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		json.NewEncoder(w).Encode(firecrawlBatchResponse{Success: true, ID: "batch-3"})
	}))
	defer ts.Close()

	adapter := newTestFirecrawl(ts.URL, "", &stubWebhookStore{})
	assert.False(t, adapter.WebhookConfigured())

	_, err := adapter.ScrapeSite(context.Background(), models.Site{Name: "acme", URL: "https://careers.example.com/jobs"}, nil)
	require.NoError(t, err)
	assert.Nil(t, gotRequest.Webhook)
}

func TestFirecrawlGetBatchStatusPagination(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := BatchStatus{Status: "completed", Completed: 2, Total: 2}
		if r.URL.Query().Get("page") == "" {
			page.Data = []FirecrawlDocument{{Markdown: "# First"}}
			page.Next = ts.URL + r.URL.Path + "?page=2"
		} else {
			page.Data = []FirecrawlDocument{{Markdown: "# Second"}}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer ts.Close()

	adapter := newTestFirecrawl(ts.URL, "", &stubWebhookStore{})
	status, err := adapter.GetBatchStatus(context.Background(), "batch-1")
	require.NoError(t, err)
	assert.True(t, status.Done())
	require.Len(t, status.Data, 2)
	assert.Equal(t, "# First", status.Data[0].Markdown)
	assert.Equal(t, "# Second", status.Data[1].Markdown)
}

func TestFirecrawlGetBatchStatusGone(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer notFound.Close()

	adapter := newTestFirecrawl(notFound.URL, "", &stubWebhookStore{})
	_, err := adapter.GetBatchStatus(context.Background(), "batch-old")
	assert.True(t, errors.Is(err, ErrBatchNotFound))

	noMethod := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"no such method"}`))
	}))
	defer noMethod.Close()

	adapter = newTestFirecrawl(noMethod.URL, "", &stubWebhookStore{})
	_, err = adapter.GetBatchStatus(context.Background(), "batch-old")
	assert.True(t, errors.Is(err, ErrBatchNotFound))
}

func TestFirecrawlMaterializeBatchDetails(t *testing.T) {
	adapter := newTestFirecrawl("https://unused.example.com", "", &stubWebhookStore{})

	status := &BatchStatus{Status: "completed", Data: []FirecrawlDocument{
		{Markdown: "# Software Engineer"},
		{Markdown: "# Staff Engineer"},
	}}
	status.Data[0].Metadata.SourceURL = "https://careers.example.com/jobs/1"
	status.Data[1].Metadata.SourceURL = "https://careers.example.com/jobs/2"

	payload := adapter.MaterializeBatch(status, models.WebhookMetadata{
		SiteURL: "https://careers.example.com/jobs",
		Kind:    BatchKindDetails,
	})
	assert.Len(t, payload.Rows, 2)
	assert.Len(t, payload.Fragments, 2)
	assert.Empty(t, payload.JobURLs)
	assert.Equal(t, models.ProviderFirecrawl, payload.Provider)
}

func TestFirecrawlMaterializeBatchSite(t *testing.T) {
	adapter := newTestFirecrawl("https://unused.example.com", "", &stubWebhookStore{})

	board := `{"jobs":[{"id":7,"absolute_url":"https://boards.greenhouse.io/acme/jobs/7","title":"Software Engineer"}]}`
	status := &BatchStatus{Status: "completed", Data: []FirecrawlDocument{{Markdown: board}}}
	status.Data[0].Metadata.SourceURL = "https://boards-api.greenhouse.io/v1/boards/acme/jobs"

	payload := adapter.MaterializeBatch(status, models.WebhookMetadata{
		SiteID:  "site-1",
		SiteURL: "https://boards.greenhouse.io/acme",
		Kind:    BatchKindSite,
	})
	assert.Equal(t, []string{"https://boards-api.greenhouse.io/v1/boards/acme/jobs/7"}, payload.JobURLs)
	assert.Empty(t, payload.Rows)
	assert.NotEmpty(t, payload.RawPreview)
}
