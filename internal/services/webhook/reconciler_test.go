package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/services/dedup"
	"github.com/ternarybob/venari/internal/services/ingest"
	"github.com/ternarybob/venari/internal/sites"
)

// mark is one terminal transition recorded by the stub store.
type mark struct {
	status     models.WebhookStatus
	resultHash string
	errMsg     string
}

// stubStore is an in-memory StoreManager tracking webhook rows and ingest
// writes.
type stubStore struct {
	mu       sync.Mutex
	rows     map[string]*models.WebhookEventRow
	inserts  []models.WebhookEventRow
	marks    map[string][]mark
	records  []models.ScrapeRecord
	ingested []models.IngestJobsRequest
}

func newStubStore() *stubStore {
	return &stubStore{
		rows:  make(map[string]*models.WebhookEventRow),
		marks: make(map[string][]mark),
	}
}

func (s *stubStore) Sites() interfaces.SiteStore           { return nil }
func (s *stubStore) URLQueue() interfaces.URLQueueStore    { return s }
func (s *stubStore) Jobs() interfaces.JobStore             { return s }
func (s *stubStore) Scrapes() interfaces.ScrapeStore       { return s }
func (s *stubStore) Webhooks() interfaces.WebhookStore     { return s }
func (s *stubStore) Heuristics() interfaces.HeuristicStore { return nil }
func (s *stubStore) Workflows() interfaces.WorkflowStore   { return nil }
func (s *stubStore) Close() error                          { return nil }

func (s *stubStore) InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts = append(s.inserts, row)
	if existing, ok := s.rows[row.JobID]; ok {
		existing.EventKind = row.EventKind
		existing.ReceivedAt = row.ReceivedAt
		return nil
	}
	copied := row
	s.rows[row.JobID] = &copied
	return nil
}

func (s *stubStore) ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WebhookEventRow
	for _, row := range s.rows {
		if row.Status == models.WebhookStatusPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *stubStore) GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[jobID]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *stubStore) MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[jobID] = append(s.marks[jobID], mark{status: status, resultHash: resultHash, errMsg: errMsg})
	if row, ok := s.rows[jobID]; ok {
		row.Status = status
	}
	return nil
}

func (s *stubStore) EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error) {
	return req.URLs, nil
}

func (s *stubStore) LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error) {
	return nil, nil
}

func (s *stubStore) CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error {
	return nil
}

func (s *stubStore) ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error) {
	return nil, nil
}

func (s *stubStore) ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error) {
	return nil, nil
}

func (s *stubStore) FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error) {
	return nil, nil
}

func (s *stubStore) IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested = append(s.ingested, req)
	return nil
}

func (s *stubStore) InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error { return nil }

func (s *stubStore) InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *stubStore) InsertScrapeError(ctx context.Context, rec models.ScrapeError) error { return nil }

func (s *stubStore) lastMark(jobID string) (mark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.marks[jobID]
	if len(ms) == 0 {
		return mark{}, false
	}
	return ms[len(ms)-1], true
}

type rowNormalizer struct{}

func (rowNormalizer) NormalizeFragment(frag models.Fragment, sourceURL string, provider models.ProviderKind) (*models.JobRow, *models.IgnoredJob, error) {
	return &models.JobRow{URL: frag.URL, Title: "Software Engineer", ScrapedWith: provider}, nil, nil
}

func (rowNormalizer) FilterListingEntries(payload string, urls []string, sourceURL string, provider models.ProviderKind) ([]string, []models.IgnoredJob) {
	return urls, nil
}

// statusServer serves per-job batch status documents and counts requests.
type statusServer struct {
	ts       *httptest.Server
	mu       sync.Mutex
	statuses map[string]providers.BatchStatus
	requests int
}

func newStatusServer(t *testing.T) *statusServer {
	t.Helper()
	s := &statusServer{statuses: make(map[string]providers.BatchStatus)}
	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		jobID := r.URL.Path[len("/v1/batch/scrape/"):]
		status, ok := s.statuses[jobID]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(status)
	}))
	t.Cleanup(s.ts.Close)
	return s
}

func (s *statusServer) set(jobID string, status providers.BatchStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[jobID] = status
}

func (s *statusServer) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func newTestReconciler(store *stubStore, apiURL string) *Reconciler {
	logger := arbor.NewLogger()
	firecrawl := providers.NewFirecrawl(providers.FirecrawlOptions{
		APIURL:     apiURL,
		APIKey:     "test-key",
		Registry:   sites.NewRegistry(),
		Normalizer: rowNormalizer{},
		Webhooks:   store,
	}, logger)
	ingestSvc := ingest.NewService(store, dedup.NewService(store, logger), logger)
	return NewReconciler(store, firecrawl, ingestSvc, logger)
}

func pendingRow(jobID string, age time.Duration) models.WebhookEventRow {
	return models.WebhookEventRow{
		JobID:  jobID,
		Status: models.WebhookStatusPending,
		Metadata: models.WebhookMetadata{
			SiteURL: "https://careers.example.com/jobs",
			Kind:    providers.BatchKindDetails,
		},
		CreatedAt: time.Now().Add(-age).UnixMilli(),
	}
}

func seedRow(t *testing.T, store *stubStore, row models.WebhookEventRow) {
	t.Helper()
	require.NoError(t, store.InsertWebhookEvent(context.Background(), row))
	store.mu.Lock()
	store.inserts = nil
	store.mu.Unlock()
}

func completedBatch(urls ...string) providers.BatchStatus {
	status := providers.BatchStatus{Status: "completed", Completed: len(urls), Total: len(urls)}
	for _, u := range urls {
		doc := providers.FirecrawlDocument{Markdown: "# Software Engineer"}
		doc.Metadata.SourceURL = u
		status.Data = append(status.Data, doc)
	}
	return status
}

func TestHandleEventMissingJobID(t *testing.T) {
	r := newTestReconciler(newStubStore(), "http://127.0.0.1:0")
	err := r.HandleEvent(context.Background(), IngressEvent{Kind: models.WebhookEventBatchCompleted})
	assert.Error(t, err)
}

func TestHandleEventTerminalRowIsNoOp(t *testing.T) {
	store := newStubStore()
	row := pendingRow("batch-1", time.Minute)
	row.Status = models.WebhookStatusProcessed
	seedRow(t, store, row)

	srv := newStatusServer(t)
	r := newTestReconciler(store, srv.ts.URL)

	err := r.HandleEvent(context.Background(), IngressEvent{JobID: "batch-1", Kind: models.WebhookEventBatchCompleted})
	require.NoError(t, err)

	assert.Empty(t, store.inserts, "terminal rows are never refreshed")
	_, marked := store.lastMark("batch-1")
	assert.False(t, marked)
	assert.Zero(t, srv.hits(), "repeat deliveries never re-poll the provider")
}

func TestHandleEventProgressLeavesRowPending(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-2", time.Minute))

	srv := newStatusServer(t)
	r := newTestReconciler(store, srv.ts.URL)

	err := r.HandleEvent(context.Background(), IngressEvent{JobID: "batch-2", Kind: models.WebhookEventBatchPage})
	require.NoError(t, err)

	require.Len(t, store.inserts, 1)
	assert.Equal(t, models.WebhookEventBatchPage, store.inserts[0].EventKind)
	_, marked := store.lastMark("batch-2")
	assert.False(t, marked, "progress events are not terminal")
	assert.Zero(t, srv.hits())
}

func TestHandleEventFailedMarksError(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-3", time.Minute))
	r := newTestReconciler(store, "http://127.0.0.1:0")

	err := r.HandleEvent(context.Background(), IngressEvent{
		JobID: "batch-3",
		Kind:  models.WebhookEventBatchFailed,
		Error: "target unreachable",
	})
	require.NoError(t, err)

	m, marked := store.lastMark("batch-3")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusError, m.status)
	assert.Equal(t, "target unreachable", m.errMsg)

	// A bare failure event still records a reason.
	seedRow(t, store, pendingRow("batch-4", time.Minute))
	require.NoError(t, r.HandleEvent(context.Background(), IngressEvent{JobID: "batch-4", Kind: models.WebhookEventFailed}))
	m, _ = store.lastMark("batch-4")
	assert.Equal(t, "provider reported failure", m.errMsg)
}

func TestHandleEventCompletedReconciles(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-5", time.Minute))

	srv := newStatusServer(t)
	srv.set("batch-5", completedBatch("https://careers.example.com/jobs/1", "https://careers.example.com/jobs/2"))
	r := newTestReconciler(store, srv.ts.URL)

	err := r.HandleEvent(context.Background(), IngressEvent{JobID: "batch-5", Kind: models.WebhookEventBatchCompleted})
	require.NoError(t, err)

	m, marked := store.lastMark("batch-5")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusProcessed, m.status)
	assert.NotEmpty(t, m.resultHash)

	require.Len(t, store.records, 1, "materialised batch persists a scrape record")
	require.Len(t, store.ingested, 1)
	assert.Len(t, store.ingested[0].Jobs, 2)
}

func TestHandleEventUnknownJobRebuildsFromMetadata(t *testing.T) {
	store := newStubStore()
	srv := newStatusServer(t)
	srv.set("batch-6", completedBatch("https://careers.example.com/jobs/9"))
	r := newTestReconciler(store, srv.ts.URL)

	// No placeholder: the provider echo is the only metadata source.
	err := r.HandleEvent(context.Background(), IngressEvent{
		JobID: "batch-6",
		Kind:  models.WebhookEventBatchCompleted,
		Metadata: models.WebhookMetadata{
			SiteURL: "https://careers.example.com/jobs",
			Kind:    providers.BatchKindDetails,
		},
	})
	require.NoError(t, err)

	m, marked := store.lastMark("batch-6")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusProcessed, m.status)
	require.Len(t, store.ingested, 1)
	assert.Equal(t, "https://careers.example.com/jobs", store.ingested[0].SourceURL)
}

func TestHandleEventStillRunningLeavesPending(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-7", time.Minute))

	srv := newStatusServer(t)
	srv.set("batch-7", providers.BatchStatus{Status: "scraping", Completed: 3, Total: 10})
	r := newTestReconciler(store, srv.ts.URL)

	err := r.HandleEvent(context.Background(), IngressEvent{JobID: "batch-7", Kind: models.WebhookEventBatchCompleted})
	require.NoError(t, err)

	_, marked := store.lastMark("batch-7")
	assert.False(t, marked, "a batch the provider still reports running stays pending for the sweep")
}

func TestSweepExpiresWithoutStatusCall(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-old", 25*time.Hour))

	srv := newStatusServer(t)
	r := newTestReconciler(store, srv.ts.URL)

	require.NoError(t, r.Sweep(context.Background()))

	m, marked := store.lastMark("batch-old")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusCancelledExpired, m.status)
	assert.Contains(t, m.errMsg, "expired after 24h")
	assert.Zero(t, srv.hits(), "rows past the deadline expire without spending a status call")
}

func TestSweepRetriesAgedRows(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-aged", 23*time.Hour+30*time.Minute))

	srv := newStatusServer(t)
	srv.set("batch-aged", completedBatch("https://careers.example.com/jobs/5"))
	r := newTestReconciler(store, srv.ts.URL)

	require.NoError(t, r.Sweep(context.Background()))

	m, marked := store.lastMark("batch-aged")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusProcessed, m.status)
	assert.Positive(t, srv.hits())
	require.Len(t, store.ingested, 1)
}

func TestSweepExpiresForgottenJobID(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-gone", 23*time.Hour+30*time.Minute))

	// The status server knows nothing about the job: 404 on every poll.
	srv := newStatusServer(t)
	r := newTestReconciler(store, srv.ts.URL)

	require.NoError(t, r.Sweep(context.Background()))

	m, marked := store.lastMark("batch-gone")
	require.True(t, marked)
	assert.Equal(t, models.WebhookStatusCancelledExpired, m.status)
	assert.Contains(t, m.errMsg, "no longer knows")
}

func TestSweepLeavesFreshRowsAlone(t *testing.T) {
	store := newStubStore()
	seedRow(t, store, pendingRow("batch-fresh", time.Hour))

	srv := newStatusServer(t)
	r := newTestReconciler(store, srv.ts.URL)

	require.NoError(t, r.Sweep(context.Background()))
	_, marked := store.lastMark("batch-fresh")
	assert.False(t, marked)
	assert.Zero(t, srv.hits())
}

func TestResultHashFingerprint(t *testing.T) {
	a := completedBatch("https://a/1", "https://a/2")
	b := completedBatch("https://a/1", "https://a/2")
	c := completedBatch("https://a/1")

	assert.Equal(t, resultHash(&a), resultHash(&b))
	assert.NotEqual(t, resultHash(&a), resultHash(&c))
}
