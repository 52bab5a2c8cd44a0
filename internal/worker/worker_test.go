package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/providers"
	"github.com/ternarybob/venari/internal/services/dedup"
	"github.com/ternarybob/venari/internal/services/ingest"
	"github.com/ternarybob/venari/internal/services/scrape"
	"github.com/ternarybob/venari/internal/sites"
)

// fleetStore is a thread-safe StoreManager fake: workers race it, so every
// mutation is mutexed.
type fleetStore struct {
	mu sync.Mutex

	leasableSites []*models.Site
	leaseErr      error
	completedIDs  []string
	failedIDs     map[string]string

	leaseRows   []models.ScrapeURLRow
	completions []models.CompleteScrapeURLsRequest

	runs []models.WorkflowRunRecord
}

func newFleetStore() *fleetStore {
	return &fleetStore{failedIDs: make(map[string]string)}
}

func (f *fleetStore) Sites() interfaces.SiteStore           { return f }
func (f *fleetStore) URLQueue() interfaces.URLQueueStore    { return f }
func (f *fleetStore) Jobs() interfaces.JobStore             { return f }
func (f *fleetStore) Scrapes() interfaces.ScrapeStore       { return f }
func (f *fleetStore) Webhooks() interfaces.WebhookStore     { return f }
func (f *fleetStore) Heuristics() interfaces.HeuristicStore { return nil }
func (f *fleetStore) Workflows() interfaces.WorkflowStore   { return f }
func (f *fleetStore) Close() error                          { return nil }

func (f *fleetStore) ListSites(ctx context.Context, req models.ListSitesRequest) ([]models.Site, error) {
	return nil, nil
}

func (f *fleetStore) LeaseSite(ctx context.Context, req models.LeaseSiteRequest) (*models.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaseErr != nil {
		return nil, f.leaseErr
	}
	if len(f.leasableSites) == 0 {
		return nil, nil
	}
	site := f.leasableSites[0]
	f.leasableSites = f.leasableSites[1:]
	return site, nil
}

func (f *fleetStore) CompleteSite(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedIDs = append(f.completedIDs, id)
	return nil
}

func (f *fleetStore) FailSite(ctx context.Context, id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedIDs[id] = errMsg
	return nil
}

func (f *fleetStore) HeartbeatSite(ctx context.Context, id, workerID string, lockSeconds int) error {
	return nil
}

func (f *fleetStore) TriggerSite(ctx context.Context, id string) error { return nil }

func (f *fleetStore) EnqueueScrapeURLs(ctx context.Context, req models.EnqueueScrapeURLsRequest) ([]string, error) {
	return req.URLs, nil
}

func (f *fleetStore) LeaseScrapeURLBatch(ctx context.Context, req models.LeaseScrapeURLBatchRequest) ([]models.ScrapeURLRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.leaseRows
	f.leaseRows = nil
	return rows, nil
}

func (f *fleetStore) CompleteScrapeURLs(ctx context.Context, req models.CompleteScrapeURLsRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, req)
	return nil
}

func (f *fleetStore) ListQueuedScrapeURLs(ctx context.Context, req models.ListQueuedScrapeURLsRequest) ([]models.ScrapeURLRow, error) {
	return nil, nil
}

func (f *fleetStore) ListSeenJobURLsForSite(ctx context.Context, sourceURL, pattern string) ([]string, error) {
	return nil, nil
}

func (f *fleetStore) FindExistingJobURLs(ctx context.Context, urls []string) ([]string, error) {
	return nil, nil
}

func (f *fleetStore) IngestJobsFromScrape(ctx context.Context, req models.IngestJobsRequest) error {
	return nil
}

func (f *fleetStore) InsertIgnoredJob(ctx context.Context, row models.IgnoredJob) error { return nil }

func (f *fleetStore) InsertScrapeRecord(ctx context.Context, rec models.ScrapeRecord) error {
	return nil
}

func (f *fleetStore) InsertScrapeError(ctx context.Context, rec models.ScrapeError) error { return nil }

func (f *fleetStore) InsertWebhookEvent(ctx context.Context, row models.WebhookEventRow) error {
	return nil
}

func (f *fleetStore) ListPendingWebhooks(ctx context.Context, limit int) ([]models.WebhookEventRow, error) {
	return nil, nil
}

func (f *fleetStore) GetWebhookStatus(ctx context.Context, jobID string) (*models.WebhookEventRow, error) {
	return nil, nil
}

func (f *fleetStore) MarkWebhookProcessed(ctx context.Context, jobID string, status models.WebhookStatus, resultHash, errMsg string) error {
	return nil
}

func (f *fleetStore) RecordWorkflowRun(ctx context.Context, rec models.WorkflowRunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, rec)
	return nil
}

func (f *fleetStore) completed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completedIDs...)
}

type passNormalizer struct{}

func (passNormalizer) NormalizeFragment(frag models.Fragment, sourceURL string, provider models.ProviderKind) (*models.JobRow, *models.IgnoredJob, error) {
	return &models.JobRow{URL: frag.URL, Title: "Software Engineer", ScrapedWith: provider}, nil, nil
}

func (passNormalizer) FilterListingEntries(payload string, urls []string, sourceURL string, provider models.ProviderKind) ([]string, []models.IgnoredJob) {
	return urls, nil
}

// newScrapeService wires a real orchestrator over the fake store, with the
// async provider pointed at a stub batch API.
func newScrapeService(t *testing.T, store *fleetStore) *scrape.Service {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/batch/scrape") {
			w.Write([]byte(`{"success":true,"id":"batch-1"}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(ts.Close)

	logger := arbor.NewLogger()
	registry := sites.NewRegistry()
	spider := providers.NewSpiderCloud(providers.SpiderCloudOptions{Registry: registry, Normalizer: passNormalizer{}}, logger)
	firecrawl := providers.NewFirecrawl(providers.FirecrawlOptions{
		APIURL:      ts.URL,
		APIKey:      "fc-key",
		WebhookBase: "https://ingress.example.com",
		Registry:    registry,
		Normalizer:  passNormalizer{},
		Webhooks:    store,
	}, logger)
	fetchfox := providers.NewFetchFox(providers.FetchFoxOptions{Registry: registry, Normalizer: passNormalizer{}}, logger)
	selector := providers.NewSelector(spider, firecrawl, fetchfox, logger)

	dedupSvc := dedup.NewService(store, logger)
	ingestSvc := ingest.NewService(store, dedupSvc, logger)
	return scrape.NewService(store, selector, ingestSvc, dedupSvc, nil, nil, logger)
}

func leasableSites(n int) []*models.Site {
	out := make([]*models.Site, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &models.Site{
			ID:             fmt.Sprintf("site-%d", i),
			Name:           "acme",
			URL:            "https://careers.acme.example",
			SiteType:       models.SiteTypeGeneric,
			ScrapeProvider: models.ProviderFirecrawl,
			Enabled:        true,
		})
	}
	return out
}

func TestPoolRunsAllJobs(t *testing.T) {
	pool := NewPool(context.Background(), 3, arbor.NewLogger())
	pool.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	pool.Wait()

	assert.Equal(t, int32(10), ran.Load())
	assert.Empty(t, pool.Errors())
}

func TestPoolCollectsJobErrors(t *testing.T) {
	pool := NewPool(context.Background(), 2, arbor.NewLogger())
	pool.Start()

	require.NoError(t, pool.Submit(func(ctx context.Context) error { return nil }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return errors.New("first failure") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return errors.New("second failure") }))
	pool.Wait()

	errs := pool.Errors()
	require.Len(t, errs, 2)
	joined := errors.Join(errs...).Error()
	assert.Contains(t, joined, "first failure")
	assert.Contains(t, joined, "second failure")
}

func TestPoolSubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1, arbor.NewLogger())

	// fill the buffer without starting workers, then cancel: the next
	// submit has nowhere to go and must take the shutdown branch
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return nil }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { return nil }))
	cancel()

	err := pool.Submit(func(ctx context.Context) error { return nil })
	assert.EqualError(t, err, "worker pool is shutting down")
}

func TestPoolShutdownCancelsInFlight(t *testing.T) {
	pool := NewPool(context.Background(), 1, arbor.NewLogger())
	pool.Start()

	started := make(chan struct{})
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started
	pool.Shutdown()

	errs := pool.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestPoolSurvivesPanickingJob(t *testing.T) {
	pool := NewPool(context.Background(), 2, arbor.NewLogger())
	pool.Start()

	var ran atomic.Int32
	require.NoError(t, pool.Submit(func(ctx context.Context) error {
		panic("bad page")
	}))
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	pool.Wait()

	// The panicking job kills one worker; the other drains the queue and
	// Wait still returns.
	assert.Equal(t, int32(4), ran.Load())
}

func TestRunPassDrainsSiteQueue(t *testing.T) {
	store := newFleetStore()
	store.leasableSites = leasableSites(3)
	w := New(RoleGeneral, newScrapeService(t, store), arbor.NewLogger())

	assert.True(t, strings.HasPrefix(w.ID(), "worker_"))
	require.NoError(t, w.RunPass(context.Background()))
	assert.Len(t, store.completed(), 3)
	assert.Empty(t, store.leasableSites)
}

func TestRunPassIterationCap(t *testing.T) {
	store := newFleetStore()
	store.leasableSites = leasableSites(25)
	w := New(RoleGeneral, newScrapeService(t, store), arbor.NewLogger())

	// the pass stops at the cap; leftover sites wait for the next tick
	require.NoError(t, w.RunPass(context.Background()))
	assert.Len(t, store.completed(), maxPassIterations)
	assert.Len(t, store.leasableSites, 25-maxPassIterations)
}

func TestRunPassDetailRole(t *testing.T) {
	store := newFleetStore()
	store.leaseRows = []models.ScrapeURLRow{
		{URL: "https://a/jobs/1", SourceURL: "https://a", Provider: models.ProviderFirecrawl},
		{URL: "https://a/jobs/2", SourceURL: "https://a", Provider: models.ProviderFirecrawl},
	}
	w := New(RoleJobDetails, newScrapeService(t, store), arbor.NewLogger())

	require.NoError(t, w.RunPass(context.Background()))
	require.Len(t, store.completions, 1)
	assert.ElementsMatch(t, []string{"https://a/jobs/1", "https://a/jobs/2"}, store.completions[0].URLs)
	assert.Equal(t, models.QueueStatusCompleted, store.completions[0].Status)
}

func TestRunPassCancelledContext(t *testing.T) {
	store := newFleetStore()
	store.leasableSites = leasableSites(1)
	w := New(RoleGeneral, newScrapeService(t, store), arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.RunPass(ctx), context.Canceled)
	assert.Empty(t, store.completed(), "no lease is taken after cancellation")
}

func TestFleetRunPassJoinsWorkerErrors(t *testing.T) {
	store := newFleetStore()
	store.leaseErr = errors.New("store offline")
	fleet := NewFleet(newScrapeService(t, store), &common.RuntimeConfig{GeneralWorkerCount: 3}, arbor.NewLogger())

	err := fleet.RunPass(context.Background(), RoleGeneral)
	require.Error(t, err)
	assert.Equal(t, 3, strings.Count(err.Error(), "store offline"), "every worker's failure survives the join")
}

func TestFleetRunPassCompletesAllSites(t *testing.T) {
	store := newFleetStore()
	store.leasableSites = leasableSites(3)
	fleet := NewFleet(newScrapeService(t, store), &common.RuntimeConfig{GeneralWorkerCount: 2}, arbor.NewLogger())

	require.NoError(t, fleet.RunPass(context.Background(), RoleGeneral))
	assert.Len(t, store.completed(), 3)
}

func TestFleetRunPassZeroWorkers(t *testing.T) {
	store := newFleetStore()
	store.leasableSites = leasableSites(1)
	fleet := NewFleet(newScrapeService(t, store), &common.RuntimeConfig{}, arbor.NewLogger())

	require.NoError(t, fleet.RunPass(context.Background(), RoleGeneral))
	assert.Empty(t, store.completed())
}
