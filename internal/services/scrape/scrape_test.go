package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/services/dedup"
	"github.com/ternarybob/venari/internal/services/ingest"
	"github.com/ternarybob/venari/internal/sites"
)

// memStore is an in-memory StoreManager that records every mutating call so
// tests can assert leases are settled.
type memStore struct {
	mu sync.Mutex

	leasableSites []*models.Site
	leaseErr      error
	completedIDs  []string
	failedIDs     map[string]string
	heartbeats    []string

	leaseRows   []models.ScrapeURLRow
	completions []models.CompleteScrapeURLsRequest

	webhookRows []models.WebhookEventRow
	runs        []models.WorkflowRunRecord
	records     []models.ScrapeRecord
	scrapeErrs  []models.ScrapeError
}

func newMemStore() *memStore {
	return &memStore{failedIDs: make(map[string]string)}
}

func (m *memStore) Sites() interfaces.SiteStore           { return m }
func (m *memStore) URLQueue() interfaces.URLQueueStore    { return m }
func (m *memStore) Jobs() interfaces.JobStore             { return m }
func (m *memStore) Scrapes() interfaces.ScrapeStore       { return m }
func (m *memStore) Webhooks() interfaces.WebhookStore     { return m }
func (m *memStore) Heuristics() interfaces.HeuristicStore { return nil }
func (m *memStore) Workflows() interfaces.WorkflowStore   { return m }
func (m *memStore) Close() error                          { return nil }

func (m *memStore) ListSites(ctx context.Context, req models.ListSitesRequest) ([]models.Site, error) {
	return nil, nil
}

func (m *memStore) LeaseSite(ctx context.Context, req models.LeaseSiteRequest) (*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leaseErr != nil {
		return nil, m.leaseErr
	}
	if len(m.leasableSites) == 0 {
		return nil, nil
	}
	site := m.leasableSites[0]
	m.leasableSites = m.leasableSites[1:]
	return site, nil
}

func (m *memStore) CompleteSite(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedIDs = append(m.completedIDs, id)
	return nil
}

func (m *memStore) FailSite(ctx context.Context, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedIDs[id] = errMsg
	return nil
}

func (m *memStore) HeartbeatSite(ctx context.Context, id, workerID string, lockSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, id)
	return nil
}

func (m *memStore) heartbeatCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heartbeats)
}

func (m *memStore) TriggerSite(ctx context.Context, id string) error { return nil }

func (m *memStore) EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error) {
	return req.URLs, nil
}

func (m *memStore) LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.leaseRows
	m.leaseRows = nil
	return rows, nil
}

func (m *memStore) CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, req)
	return nil
}

func (m *memStore) ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error) {
	return nil, nil
}

func (m *memStore) ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error) {
	return nil, nil
}

func (m *memStore) FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error) {
	return nil, nil
}

func (m *memStore) IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error {
	return nil
}

func (m *memStore) InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error { return nil }

func (m *memStore) InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) InsertScrapeError(ctx context.Context, rec models.ScrapeError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrapeErrs = append(m.scrapeErrs, rec)
	return nil
}

func (m *memStore) InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookRows = append(m.webhookRows, row)
	return nil
}

func (m *memStore) ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error) {
	return nil, nil
}

func (m *memStore) GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error) {
	return nil, nil
}

func (m *memStore) MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error {
	return nil
}

func (m *memStore) RecordWorkflowRun(ctx context.Context, rec models.WorkflowRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

// completionsFor splits the recorded terminal transitions by status.
func (m *memStore) completionsFor(status models.QueueStatus) []models.CompleteScrapeURLsRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CompleteScrapeURLsRequest
	for _, c := range m.completions {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

type nopNormalizer struct{}

func (nopNormalizer) NormalizeFragment(frag models.Fragment, sourceURL string, provider models.ProviderKind) (*models.JobRow, *models.IgnoredJob, error) {
	return &models.JobRow{URL: frag.URL, Title: "Software Engineer", ScrapedWith: provider}, nil, nil
}

func (nopNormalizer) FilterListingEntries(payload string, urls []string, sourceURL string, provider models.ProviderKind) ([]string, []models.IgnoredJob) {
	return urls, nil
}

// batchAPIServer answers the async batch dispatch with a fixed job id.
func batchAPIServer(t *testing.T, jobID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/batch/scrape") {
			w.Write([]byte(`{"success":true,"id":"` + jobID + `"}`))
			return
		}
		http.NotFound(w, r)
	}))
}

func newTestService(t *testing.T, store *memStore, apiURL string) *Service {
	t.Helper()
	logger := arbor.NewLogger()
	registry := sites.NewRegistry()

	spider := providers.NewSpiderCloud(providers.SpiderCloudOptions{Registry: registry, Normalizer: nopNormalizer{}}, logger)
	firecrawl := providers.NewFirecrawl(providers.FirecrawlOptions{
		APIURL:      apiURL,
		APIKey:      "fc-key",
		WebhookBase: "https://ingress.example.com",
		Registry:    registry,
		Normalizer:  nopNormalizer{},
		Webhooks:    store,
	}, logger)
	fetchfox := providers.NewFetchFox(providers.FetchFoxOptions{Registry: registry, Normalizer: nopNormalizer{}}, logger)
	selector := providers.NewSelector(spider, firecrawl, fetchfox, logger)

	dedupSvc := dedup.NewService(store, logger)
	ingestSvc := ingest.NewService(store, dedupSvc, logger)
	return NewService(store, selector, ingestSvc, dedupSvc, nil, nil, logger)
}

func TestGroupLeasedRows(t *testing.T) {
	rows := []models.ScrapeURLRow{
		{URL: "https://a/1", SourceURL: "https://a", Provider: models.ProviderFirecrawl},
		{URL: "https://b/1", SourceURL: "https://b", Provider: models.ProviderSpiderCloud, Pattern: "*/jobs/*"},
		{URL: "https://a/2", SourceURL: "https://a", Provider: models.ProviderFirecrawl, SiteID: "site-1"},
		{URL: "https://b/2", SourceURL: "https://b", Provider: models.ProviderSpiderCloud},
	}

	groups := groupLeasedRows(rows)
	require.Len(t, groups, 2)

	// Key order is deterministic: firecrawl sorts before spidercloud.
	assert.Equal(t, models.ProviderFirecrawl, groups[0].provider)
	assert.Equal(t, []string{"https://a/1", "https://a/2"}, groups[0].urls)
	// Pattern and site id backfill from whichever row carries them.
	assert.Equal(t, "site-1", groups[0].siteID)

	assert.Equal(t, models.ProviderSpiderCloud, groups[1].provider)
	assert.Equal(t, "*/jobs/*", groups[1].pattern)
	assert.Equal(t, []string{"https://b/1", "https://b/2"}, groups[1].urls)
}

func TestLeaseLedger(t *testing.T) {
	rows := []models.ScrapeURLRow{
		{URL: "https://a/1", Provider: models.ProviderSpiderCloud},
		{URL: "https://a/2", Provider: models.ProviderSpiderCloud},
		{URL: "https://b/1", Provider: models.ProviderFetchFox},
	}
	ledger := newLeaseLedger(rows)

	failed := ledger.settle(models.ProviderSpiderCloud, []string{"https://a/1", "https://a/2"}, []string{"https://a/1"})
	assert.Equal(t, []string{"https://a/2"}, failed)

	remaining := ledger.remaining()
	require.Len(t, remaining, 1)
	assert.Equal(t, []string{"https://b/1"}, remaining[models.ProviderFetchFox])

	ledger.settle(models.ProviderFetchFox, []string{"https://b/1"}, []string{"https://b/1"})
	assert.Empty(t, ledger.remaining())
}

func TestFetchedURLs(t *testing.T) {
	group := detailGroup{urls: []string{"https://a/1", "https://a/2", "https://a/3"}}

	// Fragments name what the adapter fetched; the diff is the failure set.
	got := fetchedURLs(group, models.ScrapePayload{Fragments: []models.Fragment{
		{URL: "https://a/1"}, {URL: "https://a/3"},
	}})
	assert.Equal(t, []string{"https://a/1", "https://a/3"}, got)

	// Trimmed fragments with surviving rows count as fully fetched.
	got = fetchedURLs(group, models.ScrapePayload{Rows: []models.JobRow{{URL: "https://a/1"}}})
	assert.Equal(t, group.urls, got)

	// Nothing at all means nothing fetched.
	assert.Nil(t, fetchedURLs(group, models.ScrapePayload{}))
}

func TestRunSiteNoWork(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, "http://127.0.0.1:0")

	worked, err := svc.RunSite(context.Background(), "worker_test")
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Empty(t, store.runs)
}

func TestRunSiteQueuedDispatch(t *testing.T) {
	ts := batchAPIServer(t, "batch-42")
	defer ts.Close()

	store := newMemStore()
	store.leasableSites = []*models.Site{{
		ID:             "site-9",
		Name:           "acme",
		URL:            "https://careers.acme.example",
		SiteType:       models.SiteTypeGeneric,
		ScrapeProvider: models.ProviderFirecrawl,
		Enabled:        true,
	}}
	svc := newTestService(t, store, ts.URL)

	worked, err := svc.RunSite(context.Background(), "worker_test")
	require.NoError(t, err)
	assert.True(t, worked)

	// The lease is released as completed and the run records queued.
	assert.Equal(t, []string{"site-9"}, store.completedIDs)
	require.Len(t, store.runs, 1)
	assert.Equal(t, "queued", store.runs[0].Status)
	assert.Equal(t, "site-scrape", store.runs[0].Kind)
	assert.Equal(t, "site-9", store.runs[0].SiteID)

	// Dispatch left a pending placeholder, not a scrape record.
	require.Len(t, store.webhookRows, 1)
	assert.Equal(t, "batch-42", store.webhookRows[0].JobID)
	assert.Equal(t, models.WebhookStatusPending, store.webhookRows[0].Status)
	assert.Equal(t, "site", store.webhookRows[0].Metadata.Kind)
	assert.Empty(t, store.records)
}

func TestRunSiteProviderFailureReleasesLease(t *testing.T) {
	store := newMemStore()
	store.leasableSites = []*models.Site{{
		ID:             "site-3",
		Name:           "acme",
		URL:            "https://careers.acme.example",
		SiteType:       models.SiteTypeGeneric,
		ScrapeProvider: models.ProviderFetchFox, // no credential in the fixture
		Enabled:        true,
	}}
	svc := newTestService(t, store, "http://127.0.0.1:0")

	worked, err := svc.RunSite(context.Background(), "worker_test")
	assert.True(t, worked)
	require.Error(t, err)

	assert.Empty(t, store.completedIDs)
	assert.Contains(t, store.failedIDs["site-3"], "no credential configured")
	require.Len(t, store.runs, 1)
	assert.Equal(t, "failed", store.runs[0].Status)
}

func TestRunSiteHeartbeatsDuringLongFetch(t *testing.T) {
	// The dispatch answers only after the one-second lock window below has
	// elapsed, so the lease survives the fetch only if heartbeats fire.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/batch/scrape") {
			time.Sleep(1500 * time.Millisecond)
			w.Write([]byte(`{"success":true,"id":"batch-slow"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	store := newMemStore()
	store.leasableSites = []*models.Site{{
		ID:             "site-5",
		Name:           "acme",
		URL:            "https://careers.acme.example",
		SiteType:       models.SiteTypeGeneric,
		ScrapeProvider: models.ProviderFirecrawl,
		Enabled:        true,
	}}

	logger := arbor.NewLogger()
	registry := sites.NewRegistry()
	spider := providers.NewSpiderCloud(providers.SpiderCloudOptions{Registry: registry, Normalizer: nopNormalizer{}}, logger)
	firecrawl := providers.NewFirecrawl(providers.FirecrawlOptions{
		APIURL:      ts.URL,
		APIKey:      "fc-key",
		WebhookBase: "https://ingress.example.com",
		Registry:    registry,
		Normalizer:  nopNormalizer{},
		Webhooks:    store,
	}, logger)
	fetchfox := providers.NewFetchFox(providers.FetchFoxOptions{Registry: registry, Normalizer: nopNormalizer{}}, logger)
	selector := providers.NewSelector(spider, firecrawl, fetchfox, logger)
	dedupSvc := dedup.NewService(store, logger)
	ingestSvc := ingest.NewService(store, dedupSvc, logger)

	cfg := &common.Config{Scheduler: common.SchedulerConfig{LockSeconds: 1}}
	svc := NewService(store, selector, ingestSvc, dedupSvc, nil, cfg, logger)

	worked, err := svc.RunSite(context.Background(), "worker_test")
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, []string{"site-5"}, store.completedIDs)

	beats := store.heartbeatCount()
	require.GreaterOrEqual(t, beats, 1, "fetch outlived the lock window without a heartbeat")
	assert.Equal(t, "site-5", store.heartbeats[0])

	// The refresher stops with the run; a released lock must not be
	// re-stamped afterwards.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, beats, store.heartbeatCount())
}

func TestRunDetailBatchEmptyQueue(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, "http://127.0.0.1:0")

	leased, err := svc.RunDetailBatch(context.Background(), "worker_test")
	require.NoError(t, err)
	assert.Zero(t, leased)
	assert.Empty(t, store.runs, "an empty lease is not a run")
}

func TestRunDetailBatchQueuedDispatchCompletesRows(t *testing.T) {
	ts := batchAPIServer(t, "batch-7")
	defer ts.Close()

	store := newMemStore()
	store.leaseRows = []models.ScrapeURLRow{
		{URL: "https://a/jobs/1", SourceURL: "https://a", Provider: models.ProviderFirecrawl, Status: models.QueueStatusProcessing},
		{URL: "https://a/jobs/2", SourceURL: "https://a", Provider: models.ProviderFirecrawl, Status: models.QueueStatusProcessing},
	}
	svc := newTestService(t, store, ts.URL)

	leased, err := svc.RunDetailBatch(context.Background(), "worker_test")
	require.NoError(t, err)
	assert.Equal(t, 2, leased)

	// Queued dispatch: the webhook row owns the work, the queue rows are done.
	completed := store.completionsFor(models.QueueStatusCompleted)
	require.Len(t, completed, 1)
	assert.ElementsMatch(t, []string{"https://a/jobs/1", "https://a/jobs/2"}, completed[0].URLs)
	assert.Empty(t, store.completionsFor(models.QueueStatusFailed))

	require.Len(t, store.webhookRows, 1)
	assert.Equal(t, "details", store.webhookRows[0].Metadata.Kind)

	require.Len(t, store.runs, 1)
	assert.Equal(t, "completed", store.runs[0].Status)
	assert.Equal(t, "job-details", store.runs[0].Kind)
}

func TestRunDetailBatchUnknownProviderFailsRows(t *testing.T) {
	store := newMemStore()
	store.leaseRows = []models.ScrapeURLRow{
		{URL: "https://a/jobs/1", SourceURL: "https://a", Provider: models.ProviderKind("surfer")},
		{URL: "https://a/jobs/2", SourceURL: "https://a", Provider: models.ProviderKind("surfer")},
	}
	svc := newTestService(t, store, "http://127.0.0.1:0")

	leased, err := svc.RunDetailBatch(context.Background(), "worker_test")
	require.NoError(t, err, "group failures degrade the run, they do not abort it")
	assert.Equal(t, 2, leased)

	failed := store.completionsFor(models.QueueStatusFailed)
	require.Len(t, failed, 1)
	assert.ElementsMatch(t, []string{"https://a/jobs/1", "https://a/jobs/2"}, failed[0].URLs)
	assert.Contains(t, failed[0].Error, "unknown provider kind")
	assert.Empty(t, store.completionsFor(models.QueueStatusCompleted))

	require.Len(t, store.runs, 1)
	assert.Equal(t, "completed_with_errors", store.runs[0].Status)
}

func TestRunDetailBatchCancelledFailsOutstanding(t *testing.T) {
	store := newMemStore()
	store.leaseRows = []models.ScrapeURLRow{
		{URL: "https://a/jobs/1", SourceURL: "https://a", Provider: models.ProviderFirecrawl},
	}
	svc := newTestService(t, store, "http://127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	leased, err := svc.RunDetailBatch(ctx, "worker_test")
	assert.Equal(t, 1, leased)
	assert.ErrorIs(t, err, context.Canceled)

	// The deferred sweep terminally fails what the run never reached.
	failed := store.completionsFor(models.QueueStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, []string{"https://a/jobs/1"}, failed[0].URLs)
	assert.Contains(t, failed[0].Error, "cancelled")

	require.Len(t, store.runs, 1)
	assert.Equal(t, "failed", store.runs[0].Status)
}
