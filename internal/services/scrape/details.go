package scrape

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/ingest"
)

// detailGroup is one provider dispatch: the leased rows sharing a provider
// and source URL, fetched together as a single batch request.
type detailGroup struct {
	provider  models.ProviderKind
	sourceURL string
	pattern   string
	siteID    string
	urls      []string
}

// RunDetailBatch leases up to one batch of queued detail URLs and drives
// each (provider, source-URL) group through its adapter. Returns the number
// of rows leased; zero means the queue had no work.
//
// Every leased row is terminally transitioned before return: per-group
// results settle their own URLs, and a deferred sweep fails whatever is
// left when the run is cancelled or panics mid-batch.
func (s *Service) RunDetailBatch(ctx context.Context, workerID string) (int, error) {
	limit := s.runtime.SpiderCloudJobDetailsBatchSize.Int()
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.store.URLQueue().LeaseScrapeURLBatch(ctx, models.LeaseScrapeURLBatchRequest{
		Limit:              limit,
		ProcessingExpiryMs: s.runtime.ProcessingExpiry().Milliseconds(),
	})
	if err != nil {
		return 0, fmt.Errorf("lease url batch: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	s.logger.Info().
		Str("worker_id", workerID).
		Int("urls", len(rows)).
		Msg("Leased detail batch")

	started := nowMs()
	outstanding := newLeaseLedger(rows)
	defer func() {
		s.failOutstanding(ctx, outstanding)
	}()

	var (
		jobsScraped  int
		groupsFailed int
	)
	for _, group := range groupLeasedRows(rows) {
		if ctx.Err() != nil {
			break
		}
		scraped, err := s.runDetailGroup(ctx, group, outstanding)
		jobsScraped += scraped
		if err != nil {
			groupsFailed++
			s.logger.Warn().Err(err).
				Str("provider", string(group.provider)).
				Str("source_url", group.sourceURL).
				Int("urls", len(group.urls)).
				Msg("Detail group failed")
		}
	}

	status := "completed"
	var runErr error
	switch {
	case ctx.Err() != nil:
		status = "failed"
		runErr = ctx.Err()
	case groupsFailed > 0:
		status = "completed_with_errors"
	}

	s.recordRun(ctx, models.WorkflowRunRecord{
		WorkflowID: workerID,
		RunID:      common.NewRunID(),
		Kind:       runKindJobDetails,
		Status:     status,
		Error:      errString(runErr),
		StartedAt:  started,
		FinishedAt: nowMs(),
	})

	s.logger.Info().
		Str("worker_id", workerID).
		Int("urls", len(rows)).
		Int("jobs_scraped", jobsScraped).
		Int("groups_failed", groupsFailed).
		Msg("Detail batch finished")

	return len(rows), runErr
}

// runDetailGroup dispatches one group and settles its queue rows.
func (s *Service) runDetailGroup(ctx context.Context, group detailGroup, ledger *leaseLedger) (int, error) {
	provider, err := s.selector.ByKind(group.provider)
	if err != nil {
		s.settleGroup(ctx, group, ledger, nil, err.Error())
		return 0, err
	}

	tctx, cancel := context.WithTimeout(ctx, s.runtime.JobDetailsTimeout())
	res, err := provider.ScrapeJobDetails(tctx, models.DetailBatchRequest{
		URLs:           group.urls,
		SourceURL:      group.sourceURL,
		IdempotencyKey: common.NewIdempotencyKey(),
	})
	cancel()
	if err != nil {
		s.logParseFailure(ctx, group.provider, group.sourceURL, err)
		s.settleGroup(ctx, group, ledger, nil, err.Error())
		return 0, err
	}

	// Async dispatch: results arrive over the webhook, and the pending
	// webhook row carries the work from here. The queue rows are done
	// from the queue's point of view; re-marking them failed later would
	// double-fetch whatever the batch returns.
	if res.Scrape.Queued {
		s.logger.Info().
			Str("provider", string(group.provider)).
			Str("provider_job_id", res.Scrape.ProviderJobID).
			Int("urls", len(group.urls)).
			Msg("Detail batch dispatched; awaiting webhook")
		s.settleGroup(ctx, group, ledger, group.urls, "")
		return 0, nil
	}

	if _, err := s.ingest.PersistScrape(ctx, ingest.Request{
		Payload: res.Scrape,
		SiteID:  group.siteID,
		Pattern: group.pattern,
	}); err != nil {
		s.settleGroup(ctx, group, ledger, nil, fmt.Sprintf("persist scrape: %v", err))
		return 0, fmt.Errorf("persist scrape: %w", err)
	}

	s.settleGroup(ctx, group, ledger, fetchedURLs(group, res.Scrape), "")
	return res.JobsScraped, nil
}

// fetchedURLs returns the subset of the group's URLs the adapter actually
// produced output for. Adapters isolate per-URL failures by omitting the
// fragment, so the diff against the request is the failure set. A payload
// whose fragments were trimmed away but that still carries rows or ignored
// entries counts as fully fetched.
func fetchedURLs(group detailGroup, payload models.ScrapePayload) []string {
	if len(payload.Fragments) == 0 {
		if len(payload.Rows) > 0 || len(payload.Ignored) > 0 {
			return group.urls
		}
		return nil
	}
	got := make(map[string]bool, len(payload.Fragments))
	for _, frag := range payload.Fragments {
		got[frag.URL] = true
	}
	fetched := make([]string, 0, len(group.urls))
	for _, u := range group.urls {
		if got[u] {
			fetched = append(fetched, u)
		}
	}
	return fetched
}

// settleGroup terminally transitions a group's rows: fetched URLs complete,
// the remainder fail with the given (or a default) reason.
func (s *Service) settleGroup(ctx context.Context, group detailGroup, ledger *leaseLedger, fetched []string, errMsg string) {
	failed := ledger.settle(group.provider, group.urls, fetched)

	s.completeURLs(ctx, group.provider, fetched, models.QueueStatusCompleted, "")
	if len(failed) > 0 {
		if errMsg == "" {
			errMsg = "fetch or normalization failed"
		}
		s.completeURLs(ctx, group.provider, failed, models.QueueStatusFailed, errMsg)
	}
}

// failOutstanding sweeps rows the run never settled, marking them failed so
// cancellation cannot strand processing rows.
func (s *Service) failOutstanding(ctx context.Context, ledger *leaseLedger) {
	for provider, urls := range ledger.remaining() {
		s.logger.Warn().
			Str("provider", string(provider)).
			Int("urls", len(urls)).
			Msg("Failing leased URLs left unprocessed")
		s.completeURLs(ctx, provider, urls, models.QueueStatusFailed, "worker cancelled before processing")
	}
}

// groupLeasedRows buckets leased rows by (provider, source URL), preserving
// a deterministic dispatch order.
func groupLeasedRows(rows []models.ScrapeURLRow) []detailGroup {
	byKey := make(map[string]*detailGroup)
	keys := make([]string, 0)
	for _, row := range rows {
		key := string(row.Provider) + "\x00" + row.SourceURL
		g, ok := byKey[key]
		if !ok {
			g = &detailGroup{
				provider:  row.Provider,
				sourceURL: row.SourceURL,
				pattern:   row.Pattern,
				siteID:    row.SiteID,
				urls:      nil,
			}
			byKey[key] = g
			keys = append(keys, key)
		}
		if g.pattern == "" {
			g.pattern = row.Pattern
		}
		if g.siteID == "" {
			g.siteID = row.SiteID
		}
		g.urls = append(g.urls, row.URL)
	}
	sort.Strings(keys)

	groups := make([]detailGroup, 0, len(byKey))
	for _, key := range keys {
		groups = append(groups, *byKey[key])
	}
	return groups
}

// leaseLedger tracks which leased URLs still await a terminal transition.
type leaseLedger struct {
	pending map[models.ProviderKind]map[string]bool
}

func newLeaseLedger(rows []models.ScrapeURLRow) *leaseLedger {
	l := &leaseLedger{pending: make(map[models.ProviderKind]map[string]bool)}
	for _, row := range rows {
		urls, ok := l.pending[row.Provider]
		if !ok {
			urls = make(map[string]bool)
			l.pending[row.Provider] = urls
		}
		urls[row.URL] = true
	}
	return l
}

// settle removes the group's URLs from the ledger and returns the subset
// that was requested but not fetched.
func (l *leaseLedger) settle(provider models.ProviderKind, requested, fetched []string) []string {
	got := make(map[string]bool, len(fetched))
	for _, u := range fetched {
		got[u] = true
	}
	var failed []string
	for _, u := range requested {
		delete(l.pending[provider], u)
		if !got[u] {
			failed = append(failed, u)
		}
	}
	return failed
}

// remaining returns the not-yet-settled URLs per provider.
func (l *leaseLedger) remaining() map[models.ProviderKind][]string {
	out := make(map[models.ProviderKind][]string)
	for provider, urls := range l.pending {
		if len(urls) == 0 {
			continue
		}
		list := make([]string, 0, len(urls))
		for u := range urls {
			list = append(list, u)
		}
		sort.Strings(list)
		out[provider] = list
	}
	return out
}
